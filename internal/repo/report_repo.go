package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/slotkeeper/server/internal/model"
)

type reportRepo struct {
	db *sql.DB
}

// NewReportRepo creates a new ReportRepo instance
func NewReportRepo(db *sql.DB) ReportRepo {
	return &reportRepo{db: db}
}

// Create flags the account as reported and appends the report
func (r *reportRepo) Create(ctx context.Context, rep model.Report) (model.Report, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE accounts SET reported = TRUE WHERE id = $1`, rep.AccountID)
	if err != nil {
		return model.Report{}, fmt.Errorf("flag account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.Report{}, fmt.Errorf("account %s: %w", rep.AccountID, model.ErrAccountNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, account_id, reason, operator_name, reported_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rep.ID, rep.AccountID, rep.Reason, rep.OperatorName, rep.ReportedAt)
	if err != nil {
		return model.Report{}, fmt.Errorf("insert report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Report{}, fmt.Errorf("commit: %w", err)
	}
	rep.Resolved = false
	rep.ResolvedAt = nil
	return rep, nil
}

// Resolve closes the report, optionally rotating the account secret. The
// reported flag is recomputed from the remaining unresolved reports.
func (r *reportRepo) Resolve(ctx context.Context, p ResolveParams) (model.Report, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		accountID uuid.UUID
		resolved  bool
	)
	err = tx.QueryRowContext(ctx, `SELECT account_id FROM reports WHERE id = $1`, p.ReportID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("get report: %w", err)
	}

	// Account row first, same order as Delete. Concurrent resolves on one
	// account queue here, so the reported recompute below sees their commits.
	var locked uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("lock account: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT resolved FROM reports WHERE id = $1 FOR UPDATE
	`, p.ReportID).Scan(&resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("lock report: %w", err)
	}
	if resolved {
		return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportAlreadyResolved)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reports
		SET resolved = TRUE, resolved_at = $2, resolution_note = $3, secret_rotated = $4
		WHERE id = $1
	`, p.ReportID, p.At, p.Note, p.NewSecret != nil)
	if err != nil {
		return model.Report{}, fmt.Errorf("resolve report: %w", err)
	}

	if p.NewSecret != nil {
		_, err = tx.ExecContext(ctx, `UPDATE accounts SET credential_secret = $2 WHERE id = $1`, accountID, *p.NewSecret)
		if err != nil {
			return model.Report{}, fmt.Errorf("rotate secret: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET reported = EXISTS (SELECT 1 FROM reports WHERE account_id = $1 AND NOT resolved)
		WHERE id = $1
	`, accountID)
	if err != nil {
		return model.Report{}, fmt.Errorf("refresh reported flag: %w", err)
	}

	rep, err := scanReport(tx.QueryRowContext(ctx, reportSelect+` WHERE id = $1`, p.ReportID))
	if err != nil {
		return model.Report{}, fmt.Errorf("reload report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Report{}, fmt.Errorf("commit: %w", err)
	}
	return rep, nil
}

// GetByID returns one report
func (r *reportRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Report, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx, reportSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", id, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("query report: %w", err)
	}
	return rep, nil
}

// List returns reports newest first
func (r *reportRepo) List(ctx context.Context, unresolvedOnly bool) ([]model.Report, error) {
	query := reportSelect
	if unresolvedOnly {
		query += ` WHERE NOT resolved`
	}
	query += ` ORDER BY reported_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

const reportSelect = `
		SELECT id, account_id, reason, reported_at, operator_name, resolved, resolved_at, resolution_note, secret_rotated
		FROM reports`

func scanReport(row rowScanner) (model.Report, error) {
	var (
		rep  model.Report
		note sql.NullString
	)
	err := row.Scan(
		&rep.ID,
		&rep.AccountID,
		&rep.Reason,
		&rep.ReportedAt,
		&rep.OperatorName,
		&rep.Resolved,
		&rep.ResolvedAt,
		&note,
		&rep.SecretRotated,
	)
	if err != nil {
		return model.Report{}, err
	}
	rep.ResolutionNote = note.String
	return rep, nil
}
