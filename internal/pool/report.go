package pool

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

// ResolveRequest closes a report, optionally rotating the account secret
type ResolveRequest struct {
	NewSecret *string
	Note      string
	Operator  string
}

// ReportAccount flags the whole account as having a problem. Profile state is
// left untouched.
func (s *Service) ReportAccount(ctx context.Context, accountID uuid.UUID, reason, operator string) (model.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Report{}, fmt.Errorf("reason is required: %w", model.ErrInvalidRequest)
	}
	rep, err := s.store.Reports().Create(ctx, model.Report{
		AccountID:    accountID,
		Reason:       reason,
		ReportedAt:   s.now(),
		OperatorName: operator,
	})
	if err != nil {
		return model.Report{}, err
	}

	s.logger.Info("account reported", "account_id", accountID, "report_id", rep.ID, "operator", operator)
	s.record(operator, "report",
		fmt.Sprintf("%s reported account %s: %s", operator, accountID, reason),
		map[string]any{"account_id": accountID.String(), "report_id": rep.ID.String()})
	return rep, nil
}

// ResolveReport marks the report resolved. The account stays flagged while any
// other report on it is unresolved.
func (s *Service) ResolveReport(ctx context.Context, reportID uuid.UUID, req ResolveRequest) (model.Report, error) {
	params := repo.ResolveParams{
		ReportID: reportID,
		Note:     strings.TrimSpace(req.Note),
		At:       s.now(),
	}
	if req.NewSecret != nil {
		if *req.NewSecret == "" {
			return model.Report{}, fmt.Errorf("new secret must not be empty: %w", model.ErrInvalidRequest)
		}
		sealedSecret, err := s.box.Seal(*req.NewSecret)
		if err != nil {
			return model.Report{}, fmt.Errorf("seal secret: %w", err)
		}
		params.NewSecret = &sealedSecret
	}

	rep, err := s.store.Reports().Resolve(ctx, params)
	if err != nil {
		return model.Report{}, err
	}

	s.logger.Info("report resolved",
		"report_id", rep.ID, "account_id", rep.AccountID, "secret_rotated", rep.SecretRotated, "operator", req.Operator)
	msg := fmt.Sprintf("%s resolved report on account %s", req.Operator, rep.AccountID)
	if rep.SecretRotated {
		msg += " and rotated the secret"
	}
	s.record(req.Operator, "resolve", msg,
		map[string]any{"account_id": rep.AccountID.String(), "report_id": rep.ID.String()})
	return rep, nil
}

// ListReports returns reports newest first
func (s *Service) ListReports(ctx context.Context, unresolvedOnly bool) ([]model.Report, error) {
	return s.store.Reports().List(ctx, unresolvedOnly)
}
