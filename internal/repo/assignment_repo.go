package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/slotkeeper/server/internal/model"
)

type assignmentRepo struct {
	db *sql.DB
}

// NewAssignmentRepo creates a new AssignmentRepo instance
func NewAssignmentRepo(db *sql.DB) AssignmentRepo {
	return &assignmentRepo{db: db}
}

// Claim performs the conditional profile update and the ledger insert in one
// transaction. The UPDATE takes the profile row lock, so a concurrent claimer
// of the same profile blocks and then re-evaluates `NOT used` against the
// committed row. The unique index on customer_key re-verifies the duplicate
// customer check inside the transaction.
func (r *assignmentRepo) Claim(ctx context.Context, p ClaimParams) (model.Assignment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE profiles
		SET used = TRUE
		WHERE account_id = $1 AND name = $2 AND NOT used
	`, p.AccountID, p.ProfileName)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("claim profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return model.Assignment{}, fmt.Errorf("claim profile: %w", err)
	}
	if n == 0 {
		var used bool
		err := tx.QueryRowContext(ctx, `
			SELECT used FROM profiles WHERE account_id = $1 AND name = $2
		`, p.AccountID, p.ProfileName).Scan(&used)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileNotFound)
		}
		if err != nil {
			return model.Assignment{}, fmt.Errorf("recheck profile: %w", err)
		}
		return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileTaken)
	}

	a := model.Assignment{
		ID:                 uuid.New(),
		AccountID:          p.AccountID,
		ProfileName:        p.ProfileName,
		CustomerIdentifier: p.Customer,
		AssignedAt:         p.At,
		OperatorName:       p.Operator,
		ChannelRef:         p.ChannelRef,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (id, account_id, profile_name, customer, customer_key, operator_name, channel_ref, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.AccountID, a.ProfileName, a.CustomerIdentifier, p.CustomerKey, a.OperatorName, a.ChannelRef, a.AssignedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintAssignmentCustomer):
			return model.Assignment{}, fmt.Errorf("customer %q: %w", p.Customer, model.ErrDuplicateCustomer)
		case isUniqueViolation(err, constraintAssignmentProfile):
			return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileTaken)
		case isForeignKeyViolation(err):
			// account deleted after the profile was claimed
			return model.Assignment{}, fmt.Errorf("account %s: %w", p.AccountID, model.ErrAccountNotFound)
		}
		return model.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Assignment{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// GetByCustomer returns the assignment recorded for a normalized customer key
func (r *assignmentRepo) GetByCustomer(ctx context.Context, customerKey string) (model.Assignment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, profile_name, customer, operator_name, channel_ref, assigned_at
		FROM assignments
		WHERE customer_key = $1
	`, customerKey)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Assignment{}, fmt.Errorf("customer %q: %w", customerKey, model.ErrAssignmentNotFound)
		}
		return model.Assignment{}, fmt.Errorf("query assignment: %w", err)
	}
	return a, nil
}

// List returns the most recent assignments, newest first
func (r *assignmentRepo) List(ctx context.Context, limit int) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, profile_name, customer, operator_name, channel_ref, assigned_at
		FROM assignments
		ORDER BY assigned_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return collectAssignments(rows)
}

// ListByAccount returns every assignment against one account, oldest first
func (r *assignmentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, profile_name, customer, operator_name, channel_ref, assigned_at
		FROM assignments
		WHERE account_id = $1
		ORDER BY assigned_at, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account assignments: %w", err)
	}
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var (
		a          model.Assignment
		channelRef sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.AccountID,
		&a.ProfileName,
		&a.CustomerIdentifier,
		&a.OperatorName,
		&channelRef,
		&a.AssignedAt,
	)
	if err != nil {
		return model.Assignment{}, err
	}
	if channelRef.Valid {
		ref := channelRef.String
		a.ChannelRef = &ref
	}
	return a, nil
}
