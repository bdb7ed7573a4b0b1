package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

type accountRepo struct {
	db *sqlx.DB
}

// accountRow maps the accounts table
type accountRow struct {
	ID               string `db:"id"`
	Platform         string `db:"platform"`
	Tier             string `db:"tier"`
	CredentialEmail  string `db:"credential_email"`
	CredentialSecret string `db:"credential_secret"`
	ExpiresAt        int64  `db:"expires_at"`
	Reported         bool   `db:"reported"`
	CreatedAt        int64  `db:"created_at"`
}

// profileRow maps the profiles table
type profileRow struct {
	AccountID string `db:"account_id"`
	Name      string `db:"name"`
	Pin       string `db:"pin"`
	Used      bool   `db:"used"`
	Position  int    `db:"position"`
}

func (row accountRow) toModel() (model.Account, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account ID: %w", err)
	}
	return model.Account{
		ID:               id,
		Platform:         model.Platform(row.Platform),
		Tier:             model.Tier(row.Tier),
		CredentialEmail:  row.CredentialEmail,
		CredentialSecret: row.CredentialSecret,
		ExpiresAt:        time.UnixMilli(row.ExpiresAt).UTC(),
		Reported:         row.Reported,
		CreatedAt:        time.UnixMilli(row.CreatedAt).UTC(),
	}, nil
}

const accountColumns = `id, platform, tier, credential_email, credential_secret, expires_at, reported, created_at`

func (r *accountRepo) Create(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO accounts (id, platform, tier, credential_email, email_key, credential_secret, expires_at, reported, created_at)
		VALUES (:id, :platform, :tier, :credential_email, :email_key, :credential_secret, :expires_at, :reported, :created_at)
	`, map[string]any{
		"id":                acc.ID.String(),
		"platform":          string(acc.Platform),
		"tier":              string(acc.Tier),
		"credential_email":  acc.CredentialEmail,
		"email_key":         model.NormalizeEmail(acc.CredentialEmail),
		"credential_secret": acc.CredentialSecret,
		"expires_at":        acc.ExpiresAt.UnixMilli(),
		"reported":          acc.Reported,
		"created_at":        acc.CreatedAt.UnixMilli(),
	})
	if err != nil {
		if isUniqueViolation(err, "email_key") {
			return model.Account{}, fmt.Errorf("create account %s: %w", acc.CredentialEmail, model.ErrDuplicateEmail)
		}
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}

	for i, p := range acc.Profiles {
		acc.Profiles[i].Position = i
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (account_id, name, pin, used, position) VALUES (?, ?, ?, ?, ?)
		`, acc.ID.String(), p.Name, p.Pin, p.Used, i)
		if err != nil {
			return model.Account{}, fmt.Errorf("insert profile %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Account{}, fmt.Errorf("commit: %w", err)
	}
	acc.CreatedAt = time.UnixMilli(acc.CreatedAt.UnixMilli()).UTC()
	return acc, nil
}

func (r *accountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE email_key = ?`, model.NormalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	var row accountRow
	err := r.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
		}
		return model.Account{}, fmt.Errorf("get account: %w", err)
	}
	acc, err := row.toModel()
	if err != nil {
		return model.Account{}, err
	}
	pools, err := r.loadProfiles(ctx, []string{row.ID})
	if err != nil {
		return model.Account{}, err
	}
	acc.Profiles = pools[row.ID]
	return acc, nil
}

func (r *accountRepo) List(ctx context.Context, filter repo.AccountFilter) ([]model.Account, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Platform != "" {
		conds = append(conds, "a.platform = ?")
		args = append(args, string(filter.Platform))
	}
	if filter.Tier != "" {
		conds = append(conds, "a.tier = ?")
		args = append(args, string(filter.Tier))
	}
	if filter.InStock {
		conds = append(conds, "EXISTS (SELECT 1 FROM profiles p WHERE p.account_id = a.id AND p.used = 0)")
	}

	query := `SELECT a.id, a.platform, a.tier, a.credential_email, a.credential_secret, a.expires_at, a.reported, a.created_at FROM accounts a`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.created_at, a.id"

	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	pools, err := r.loadProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Account, 0, len(rows))
	for _, row := range rows {
		acc, err := row.toModel()
		if err != nil {
			return nil, err
		}
		acc.Profiles = pools[row.ID]
		out = append(out, acc)
	}
	return out, nil
}

func (r *accountRepo) CountAvailable(ctx context.Context, platform model.Platform, tier model.Tier) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM profiles p
		JOIN accounts a ON a.id = p.account_id
		WHERE a.tier = ? AND (? = '' OR a.platform = ?) AND p.used = 0
	`, string(tier), string(platform), string(platform))
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}
	return n, nil
}

func (r *accountRepo) StockSummary(ctx context.Context) ([]model.StockLine, error) {
	var rows []struct {
		Platform  string `db:"platform"`
		Tier      string `db:"tier"`
		Accounts  int    `db:"accounts"`
		Available int    `db:"available"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT a.platform AS platform, a.tier AS tier,
		       COUNT(DISTINCT a.id) AS accounts,
		       COALESCE(SUM(CASE WHEN p.used = 0 THEN 1 ELSE 0 END), 0) AS available
		FROM accounts a
		LEFT JOIN profiles p ON p.account_id = a.id
		GROUP BY a.platform, a.tier
		ORDER BY a.platform, a.tier
	`)
	if err != nil {
		return nil, fmt.Errorf("stock summary: %w", err)
	}
	out := make([]model.StockLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.StockLine{
			Platform:  model.Platform(row.Platform),
			Tier:      model.Tier(row.Tier),
			Accounts:  row.Accounts,
			Available: row.Available,
		})
	}
	return out, nil
}

func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
	}
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM assignments WHERE account_id = ?`, id.String()); err != nil {
		return fmt.Errorf("check assignments: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("account %s: %w", id, model.ErrAccountInUse)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return tx.Commit()
}

func (r *accountRepo) loadProfiles(ctx context.Context, ids []string) (map[string][]model.Profile, error) {
	query, args, err := sqlx.In(`
		SELECT account_id, name, pin, used, position
		FROM profiles
		WHERE account_id IN (?)
		ORDER BY account_id, position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("build profile query: %w", err)
	}

	var rows []profileRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}

	out := make(map[string][]model.Profile, len(ids))
	for _, row := range rows {
		out[row.AccountID] = append(out[row.AccountID], model.Profile{
			Name:     row.Name,
			Pin:      row.Pin,
			Used:     row.Used,
			Position: row.Position,
		})
	}
	return out, nil
}
