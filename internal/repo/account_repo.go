package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/slotkeeper/server/internal/model"
)

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

// Create inserts the account row and bulk-copies its profiles in one transaction
func (r *accountRepo) Create(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (id, platform, tier, credential_email, email_key, credential_secret, expires_at, reported)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, acc.ID, acc.Platform, acc.Tier, acc.CredentialEmail, model.NormalizeEmail(acc.CredentialEmail),
		acc.CredentialSecret, acc.ExpiresAt, acc.Reported).Scan(&acc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, constraintAccountEmail) {
			return model.Account{}, fmt.Errorf("create account %s: %w", acc.CredentialEmail, model.ErrDuplicateEmail)
		}
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("profiles", "account_id", "name", "pin", "used", "position"))
	if err != nil {
		return model.Account{}, fmt.Errorf("prepare profile copy: %w", err)
	}
	for i, p := range acc.Profiles {
		acc.Profiles[i].Position = i
		if _, err := stmt.ExecContext(ctx, acc.ID, p.Name, p.Pin, p.Used, i); err != nil {
			_ = stmt.Close()
			return model.Account{}, fmt.Errorf("copy profile %q: %w", p.Name, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return model.Account{}, fmt.Errorf("flush profile copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return model.Account{}, fmt.Errorf("close profile copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Account{}, fmt.Errorf("commit: %w", err)
	}
	return acc, nil
}

// EmailExists reports whether an account with this email exists (case-insensitive)
func (r *accountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE email_key = $1)
	`, model.NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// GetByID returns the account with its full profile pool
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform, tier, credential_email, credential_secret, expires_at, reported, created_at
		FROM accounts
		WHERE id = $1
	`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
		}
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}

	pools, err := r.loadProfiles(ctx, []uuid.UUID{acc.ID})
	if err != nil {
		return model.Account{}, err
	}
	acc.Profiles = pools[acc.ID]
	return acc, nil
}

// List returns accounts matching the filter, oldest first, with their pools
func (r *accountRepo) List(ctx context.Context, filter AccountFilter) ([]model.Account, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		conds = append(conds, fmt.Sprintf("a.platform = $%d", len(args)))
	}
	if filter.Tier != "" {
		args = append(args, filter.Tier)
		conds = append(conds, fmt.Sprintf("a.tier = $%d", len(args)))
	}
	if filter.InStock {
		conds = append(conds, "EXISTS (SELECT 1 FROM profiles p WHERE p.account_id = a.id AND NOT p.used)")
	}

	query := `
		SELECT a.id, a.platform, a.tier, a.credential_email, a.credential_secret, a.expires_at, a.reported, a.created_at
		FROM accounts a`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY a.created_at, a.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var (
		out []model.Account
		ids []uuid.UUID
	)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, acc)
		ids = append(ids, acc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	pools, err := r.loadProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Profiles = pools[out[i].ID]
	}
	return out, nil
}

// CountAvailable sums unused profiles across accounts of the tier (and platform, if set)
func (r *accountRepo) CountAvailable(ctx context.Context, platform model.Platform, tier model.Tier) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM profiles p
		JOIN accounts a ON a.id = p.account_id
		WHERE a.tier = $1
		  AND ($2 = '' OR a.platform = $2)
		  AND NOT p.used
	`, tier, platform).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return count, nil
}

// StockSummary returns unused-profile counts for every platform and tier that has accounts
func (r *accountRepo) StockSummary(ctx context.Context) ([]model.StockLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.platform, a.tier,
		       COUNT(DISTINCT a.id),
		       COUNT(p.name) FILTER (WHERE NOT p.used)
		FROM accounts a
		LEFT JOIN profiles p ON p.account_id = a.id
		GROUP BY a.platform, a.tier
		ORDER BY a.platform, a.tier
	`)
	if err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}
	defer rows.Close()

	var out []model.StockLine
	for rows.Next() {
		var line model.StockLine
		if err := rows.Scan(&line.Platform, &line.Tier, &line.Accounts, &line.Available); err != nil {
			return nil, fmt.Errorf("scan stock line: %w", err)
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}
	return out, nil
}

// Delete removes an account that no assignment references. The account row is
// locked first so a concurrent claim cannot slip an assignment in between.
func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
		}
		return fmt.Errorf("lock account: %w", err)
	}

	var inUse bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM assignments WHERE account_id = $1)
	`, id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("check assignments: %w", err)
	}
	if inUse {
		return fmt.Errorf("account %s: %w", id, model.ErrAccountInUse)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// loadProfiles fetches the pools of the given accounts keyed by account ID
func (r *accountRepo) loadProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.Profile, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT account_id, name, pin, used, position
		FROM profiles
		WHERE account_id = ANY($1::uuid[])
		ORDER BY account_id, position
	`, pq.Array(strIDs))
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.Profile, len(ids))
	for rows.Next() {
		var (
			accountID uuid.UUID
			p         model.Profile
		)
		if err := rows.Scan(&accountID, &p.Name, &p.Pin, &p.Used, &p.Position); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[accountID] = append(out[accountID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var acc model.Account
	err := row.Scan(
		&acc.ID,
		&acc.Platform,
		&acc.Tier,
		&acc.CredentialEmail,
		&acc.CredentialSecret,
		&acc.ExpiresAt,
		&acc.Reported,
		&acc.CreatedAt,
	)
	return acc, err
}
