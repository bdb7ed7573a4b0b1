// Package notify turns stock levels and open reports into operator warnings
// and optionally mails them as a digest. It only reads engine state.
package notify

import (
	"context"
	"fmt"

	"github.com/slotkeeper/server/internal/model"
)

const (
	KindLowStock         = "low_stock"
	KindUnresolvedReport = "unresolved_report"
)

// Source is the read side of the engine the warnings are computed from
type Source interface {
	Summary(ctx context.Context) ([]model.StockLine, error)
	ListReports(ctx context.Context, unresolvedOnly bool) ([]model.Report, error)
}

// Warning is one line shown on the operator dashboard
type Warning struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Platform  model.Platform `json:"platform,omitempty"`
	Tier      model.Tier     `json:"tier,omitempty"`
	Available *int           `json:"available,omitempty"`
	ReportID  string         `json:"report_id,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
}

func (w Warning) key() string {
	if w.Kind == KindLowStock {
		return fmt.Sprintf("%s:%s/%s:%d", w.Kind, w.Platform, w.Tier, *w.Available)
	}
	return w.Kind + ":" + w.ReportID
}

// Checker computes warnings from a Source
type Checker struct {
	source    Source
	threshold int
}

// NewChecker flags every platform/tier whose available count is at or below threshold
func NewChecker(source Source, threshold int) *Checker {
	return &Checker{source: source, threshold: threshold}
}

// Warnings returns low-stock warnings (in summary order) followed by one
// warning per unresolved report (newest first).
func (c *Checker) Warnings(ctx context.Context) ([]Warning, error) {
	lines, err := c.source.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}
	reports, err := c.source.ListReports(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	out := make([]Warning, 0)
	for _, line := range lines {
		if line.Available > c.threshold {
			continue
		}
		available := line.Available
		msg := fmt.Sprintf("%s/%s is low on stock: %d profiles left", line.Platform, line.Tier, available)
		if available == 0 {
			msg = fmt.Sprintf("%s/%s is out of stock", line.Platform, line.Tier)
		}
		out = append(out, Warning{
			Kind:      KindLowStock,
			Message:   msg,
			Platform:  line.Platform,
			Tier:      line.Tier,
			Available: &available,
		})
	}
	for _, rep := range reports {
		out = append(out, Warning{
			Kind:      KindUnresolvedReport,
			Message:   fmt.Sprintf("account %s reported by %s: %s", rep.AccountID, rep.OperatorName, rep.Reason),
			ReportID:  rep.ID.String(),
			AccountID: rep.AccountID.String(),
		})
	}
	return out, nil
}
