package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

type assignmentRepo struct {
	db *sqlx.DB
}

type assignmentRow struct {
	ID           string         `db:"id"`
	AccountID    string         `db:"account_id"`
	ProfileName  string         `db:"profile_name"`
	Customer     string         `db:"customer"`
	OperatorName string         `db:"operator_name"`
	ChannelRef   sql.NullString `db:"channel_ref"`
	AssignedAt   int64          `db:"assigned_at"`
}

func (row assignmentRow) toModel() (model.Assignment, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("parse assignment ID: %w", err)
	}
	accountID, err := uuid.Parse(row.AccountID)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("parse account ID: %w", err)
	}
	a := model.Assignment{
		ID:                 id,
		AccountID:          accountID,
		ProfileName:        row.ProfileName,
		CustomerIdentifier: row.Customer,
		OperatorName:       row.OperatorName,
		AssignedAt:         time.UnixMilli(row.AssignedAt).UTC(),
	}
	if row.ChannelRef.Valid {
		ref := row.ChannelRef.String
		a.ChannelRef = &ref
	}
	return a, nil
}

const assignmentColumns = `id, account_id, profile_name, customer, operator_name, channel_ref, assigned_at`

func (r *assignmentRepo) Claim(ctx context.Context, p repo.ClaimParams) (model.Assignment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE profiles SET used = 1
		WHERE account_id = ? AND name = ? AND used = 0
	`, p.AccountID.String(), p.ProfileName)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("claim profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return model.Assignment{}, fmt.Errorf("claim profile: %w", err)
	}
	if n == 0 {
		var count int
		err := tx.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM profiles WHERE account_id = ? AND name = ?
		`, p.AccountID.String(), p.ProfileName)
		if err != nil {
			return model.Assignment{}, fmt.Errorf("recheck profile: %w", err)
		}
		if count == 0 {
			return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileNotFound)
		}
		return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileTaken)
	}

	a := model.Assignment{
		ID:                 uuid.New(),
		AccountID:          p.AccountID,
		ProfileName:        p.ProfileName,
		CustomerIdentifier: p.Customer,
		AssignedAt:         time.UnixMilli(p.At.UnixMilli()).UTC(),
		OperatorName:       p.Operator,
		ChannelRef:         p.ChannelRef,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (id, account_id, profile_name, customer, customer_key, operator_name, channel_ref, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.AccountID.String(), a.ProfileName, a.CustomerIdentifier, p.CustomerKey,
		a.OperatorName, a.ChannelRef, a.AssignedAt.UnixMilli())
	if err != nil {
		switch {
		case isUniqueViolation(err, "customer_key"):
			return model.Assignment{}, fmt.Errorf("customer %q: %w", p.Customer, model.ErrDuplicateCustomer)
		case isUniqueViolation(err, "profile_name"):
			return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileTaken)
		}
		return model.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Assignment{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

func (r *assignmentRepo) GetByCustomer(ctx context.Context, customerKey string) (model.Assignment, error) {
	var row assignmentRow
	err := r.db.GetContext(ctx, &row, `SELECT `+assignmentColumns+` FROM assignments WHERE customer_key = ?`, customerKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Assignment{}, fmt.Errorf("customer %q: %w", customerKey, model.ErrAssignmentNotFound)
		}
		return model.Assignment{}, fmt.Errorf("get assignment: %w", err)
	}
	return row.toModel()
}

func (r *assignmentRepo) List(ctx context.Context, limit int) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []assignmentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+assignmentColumns+` FROM assignments ORDER BY assigned_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return toAssignments(rows)
}

func (r *assignmentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Assignment, error) {
	var rows []assignmentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+assignmentColumns+` FROM assignments WHERE account_id = ? ORDER BY assigned_at, id
	`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("list account assignments: %w", err)
	}
	return toAssignments(rows)
}

func toAssignments(rows []assignmentRow) ([]model.Assignment, error) {
	out := make([]model.Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
