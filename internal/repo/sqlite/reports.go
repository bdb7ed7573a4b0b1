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

type reportRepo struct {
	db *sqlx.DB
}

type reportRow struct {
	ID             string        `db:"id"`
	AccountID      string        `db:"account_id"`
	Reason         string        `db:"reason"`
	OperatorName   string        `db:"operator_name"`
	ReportedAt     int64         `db:"reported_at"`
	Resolved       bool          `db:"resolved"`
	ResolvedAt     sql.NullInt64 `db:"resolved_at"`
	ResolutionNote string        `db:"resolution_note"`
	SecretRotated  bool          `db:"secret_rotated"`
}

func (row reportRow) toModel() (model.Report, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return model.Report{}, fmt.Errorf("parse report ID: %w", err)
	}
	accountID, err := uuid.Parse(row.AccountID)
	if err != nil {
		return model.Report{}, fmt.Errorf("parse account ID: %w", err)
	}
	rep := model.Report{
		ID:             id,
		AccountID:      accountID,
		Reason:         row.Reason,
		OperatorName:   row.OperatorName,
		ReportedAt:     time.UnixMilli(row.ReportedAt).UTC(),
		Resolved:       row.Resolved,
		ResolutionNote: row.ResolutionNote,
		SecretRotated:  row.SecretRotated,
	}
	if row.ResolvedAt.Valid {
		at := time.UnixMilli(row.ResolvedAt.Int64).UTC()
		rep.ResolvedAt = &at
	}
	return rep, nil
}

const reportColumns = `id, account_id, reason, operator_name, reported_at, resolved, resolved_at, resolution_note, secret_rotated`

func (r *reportRepo) Create(ctx context.Context, rep model.Report) (model.Report, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE accounts SET reported = 1 WHERE id = ?`, rep.AccountID.String())
	if err != nil {
		return model.Report{}, fmt.Errorf("flag account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.Report{}, fmt.Errorf("account %s: %w", rep.AccountID, model.ErrAccountNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, account_id, reason, operator_name, reported_at)
		VALUES (?, ?, ?, ?, ?)
	`, rep.ID.String(), rep.AccountID.String(), rep.Reason, rep.OperatorName, rep.ReportedAt.UnixMilli())
	if err != nil {
		return model.Report{}, fmt.Errorf("insert report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Report{}, fmt.Errorf("commit: %w", err)
	}

	rep.ReportedAt = time.UnixMilli(rep.ReportedAt.UnixMilli()).UTC()
	rep.Resolved = false
	rep.ResolvedAt = nil
	return rep, nil
}

func (r *reportRepo) Resolve(ctx context.Context, p repo.ResolveParams) (model.Report, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Report{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row reportRow
	err = tx.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, p.ReportID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("get report: %w", err)
	}
	if row.Resolved {
		return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportAlreadyResolved)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reports SET resolved = 1, resolved_at = ?, resolution_note = ?, secret_rotated = ?
		WHERE id = ?
	`, p.At.UnixMilli(), p.Note, p.NewSecret != nil, p.ReportID.String())
	if err != nil {
		return model.Report{}, fmt.Errorf("resolve report: %w", err)
	}

	if p.NewSecret != nil {
		_, err = tx.ExecContext(ctx, `UPDATE accounts SET credential_secret = ? WHERE id = ?`, *p.NewSecret, row.AccountID)
		if err != nil {
			return model.Report{}, fmt.Errorf("rotate secret: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET reported = EXISTS (SELECT 1 FROM reports WHERE account_id = ? AND resolved = 0)
		WHERE id = ?
	`, row.AccountID, row.AccountID)
	if err != nil {
		return model.Report{}, fmt.Errorf("refresh reported flag: %w", err)
	}

	if err := tx.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, p.ReportID.String()); err != nil {
		return model.Report{}, fmt.Errorf("reload report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Report{}, fmt.Errorf("commit: %w", err)
	}
	return row.toModel()
}

func (r *reportRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Report, error) {
	var row reportRow
	err := r.db.GetContext(ctx, &row, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, fmt.Errorf("report %s: %w", id, model.ErrReportNotFound)
		}
		return model.Report{}, fmt.Errorf("get report: %w", err)
	}
	return row.toModel()
}

func (r *reportRepo) List(ctx context.Context, unresolvedOnly bool) ([]model.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	if unresolvedOnly {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY reported_at DESC, id`

	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]model.Report, 0, len(rows))
	for _, row := range rows {
		rep, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}
