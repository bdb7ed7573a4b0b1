package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/model"
)

// pinCycle is the repeating pin sequence handed to new profiles
var pinCycle = [...]string{"1111", "2222", "3333", "4444", "5555", "6666", "7777", "8888", "9999", "0000"}

// AccountEntry is one account to provision
type AccountEntry struct {
	Email    string `json:"email"`
	Secret   string `json:"secret"`
	Platform string `json:"platform"`
	Tier     string `json:"tier"`
}

// CreateAccountsRequest is a provisioning batch
type CreateAccountsRequest struct {
	Entries   []AccountEntry
	ExpiresAt time.Time
	// ProfileCount overrides the tier's default pool size when set.
	ProfileCount *int
	Operator     string
}

// EntryFailure describes an entry that was not created
type EntryFailure struct {
	Index int    `json:"index"`
	Email string `json:"email"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// CreateResult summarizes a provisioning batch
type CreateResult struct {
	Created    int             `json:"created"`
	Duplicates int             `json:"duplicates"`
	Failures   []EntryFailure  `json:"failures,omitempty"`
	Accounts   []model.Account `json:"accounts,omitempty"`
}

func (r *CreateResult) fail(index int, email string, err error) {
	r.Failures = append(r.Failures, EntryFailure{
		Index: index,
		Email: email,
		Kind:  model.Kind(err),
		Error: err.Error(),
	})
}

// ProfileName returns the display name of the i-th profile (0-based):
// Profile A..Profile Z, then Profile AA, Profile AB and so on.
func ProfileName(i int) string {
	var letters []byte
	for n := i; ; n = n/26 - 1 {
		letters = append([]byte{byte('A' + n%26)}, letters...)
		if n < 26 {
			break
		}
	}
	return "Profile " + string(letters)
}

// MaxProfileCount caps the profile count override of CreateAccounts.
const MaxProfileCount = 500

func checkProfileCount(n int) error {
	switch {
	case n <= 0:
		return fmt.Errorf("profile count must be positive: %w", model.ErrInvalidRequest)
	case n > MaxProfileCount:
		return fmt.Errorf("profile count %d exceeds %d: %w", n, MaxProfileCount, model.ErrInvalidRequest)
	}
	return nil
}

// NewProfilePool builds count unused profiles with sequential names and
// cycling pins, shuffled with intn.
func NewProfilePool(count int, intn func(n int) int) []model.Profile {
	profiles := make([]model.Profile, count)
	for i := range profiles {
		profiles[i] = model.Profile{
			Name: ProfileName(i),
			Pin:  pinCycle[i%len(pinCycle)],
		}
	}
	for i := len(profiles) - 1; i > 0; i-- {
		j := intn(i + 1)
		profiles[i], profiles[j] = profiles[j], profiles[i]
	}
	for i := range profiles {
		profiles[i].Position = i
	}
	return profiles
}

// CreateAccounts provisions every entry of the batch. Malformed entries and
// emails that already exist (including repeats inside the batch) are
// reported per entry and never stop the batch. Only a store failure aborts,
// returning the partial result with the error.
func (s *Service) CreateAccounts(ctx context.Context, req CreateAccountsRequest) (CreateResult, error) {
	var res CreateResult
	if req.ExpiresAt.IsZero() {
		return res, fmt.Errorf("expires_at is required: %w", model.ErrInvalidRequest)
	}

	seen := make(map[string]struct{}, len(req.Entries))
	for i, entry := range req.Entries {
		platform, tier, err := validateEntry(entry.Email, entry.Secret, entry.Platform, entry.Tier)
		if err == nil && req.ProfileCount != nil {
			err = checkProfileCount(*req.ProfileCount)
		}
		if err != nil {
			res.fail(i, entry.Email, err)
			continue
		}

		count := tier.DefaultProfileCount()
		if req.ProfileCount != nil {
			count = *req.ProfileCount
		}
		acc := model.Account{
			Platform:         platform,
			Tier:             tier,
			CredentialEmail:  strings.TrimSpace(entry.Email),
			CredentialSecret: entry.Secret,
			ExpiresAt:        req.ExpiresAt.UTC(),
			Profiles:         NewProfilePool(count, s.intn),
		}

		created, dup, err := s.createOne(ctx, acc, seen)
		if err != nil {
			return res, err
		}
		if dup {
			res.Duplicates++
			continue
		}
		res.Created++
		res.Accounts = append(res.Accounts, created)
	}

	s.logger.Info("accounts provisioned",
		"operator", req.Operator,
		"created", res.Created,
		"duplicates", res.Duplicates,
		"failures", len(res.Failures),
	)
	s.record(req.Operator, "provision",
		fmt.Sprintf("%s created %d accounts (%d duplicates, %d failed)", req.Operator, res.Created, res.Duplicates, len(res.Failures)),
		nil)
	return res, nil
}

// LegacyAccount is an account exported by the previous system, whose profile
// pool is a JSON array of {"name","pin","used"} objects.
type LegacyAccount struct {
	Email     string          `json:"email"`
	Secret    string          `json:"secret"`
	Platform  string          `json:"platform"`
	Tier      string          `json:"tier"`
	ExpiresAt time.Time       `json:"expires_at"`
	Reported  bool            `json:"reported"`
	Profiles  json.RawMessage `json:"profiles"`
}

type legacyProfile struct {
	Name string `json:"name"`
	Pin  string `json:"pin"`
	Used bool   `json:"used"`
}

// ParseLegacyPool decodes and validates a legacy profile blob. Any problem is
// reported as model.ErrInvalidPoolState.
func ParseLegacyPool(blob []byte) ([]model.Profile, error) {
	var raw []legacyProfile
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPoolState, err)
	}
	profiles := make([]model.Profile, len(raw))
	for i, p := range raw {
		profiles[i] = model.Profile{Name: p.Name, Pin: p.Pin, Used: p.Used, Position: i}
	}
	if err := model.ValidatePool(profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ImportLegacy stores accounts from the previous system, keeping their pool
// order and used flags. Entries with an invalid pool are reported per entry.
func (s *Service) ImportLegacy(ctx context.Context, entries []LegacyAccount, operator string) (CreateResult, error) {
	var res CreateResult
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		platform, tier, err := validateEntry(entry.Email, entry.Secret, entry.Platform, entry.Tier)
		if err == nil && entry.ExpiresAt.IsZero() {
			err = fmt.Errorf("expires_at is required: %w", model.ErrInvalidRequest)
		}
		if err != nil {
			res.fail(i, entry.Email, err)
			continue
		}
		profiles, err := ParseLegacyPool(entry.Profiles)
		if err != nil {
			s.logger.Warn("legacy pool rejected", "email", entry.Email, "error", err)
			res.fail(i, entry.Email, err)
			continue
		}

		acc := model.Account{
			Platform:         platform,
			Tier:             tier,
			CredentialEmail:  strings.TrimSpace(entry.Email),
			CredentialSecret: entry.Secret,
			ExpiresAt:        entry.ExpiresAt.UTC(),
			Reported:         entry.Reported,
			Profiles:         profiles,
		}
		created, dup, err := s.createOne(ctx, acc, seen)
		if err != nil {
			return res, err
		}
		if dup {
			res.Duplicates++
			continue
		}
		res.Created++
		res.Accounts = append(res.Accounts, created)
	}

	s.logger.Info("legacy accounts imported",
		"operator", operator, "created", res.Created, "duplicates", res.Duplicates, "failures", len(res.Failures))
	s.record(operator, "import",
		fmt.Sprintf("%s imported %d legacy accounts (%d duplicates, %d failed)", operator, res.Created, res.Duplicates, len(res.Failures)),
		nil)
	return res, nil
}

// DeleteAccount removes an account that no assignment references
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID, operator string) error {
	acc, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Accounts().Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", "account_id", id, "operator", operator)
	s.record(operator, "delete",
		fmt.Sprintf("%s deleted %s (%s/%s)", operator, acc.CredentialEmail, acc.Platform, acc.Tier),
		map[string]any{"account_id": id.String()})
	return nil
}

// createOne stores acc unless its email was seen in this batch or already
// exists. The returned account carries the plaintext secret.
func (s *Service) createOne(ctx context.Context, acc model.Account, seen map[string]struct{}) (model.Account, bool, error) {
	key := model.NormalizeEmail(acc.CredentialEmail)
	if _, dup := seen[key]; dup {
		return model.Account{}, true, nil
	}
	seen[key] = struct{}{}

	exists, err := s.store.Accounts().EmailExists(ctx, acc.CredentialEmail)
	if err != nil {
		return model.Account{}, false, err
	}
	if exists {
		return model.Account{}, true, nil
	}

	plaintext := acc.CredentialSecret
	if acc.CredentialSecret, err = s.box.Seal(plaintext); err != nil {
		return model.Account{}, false, fmt.Errorf("seal secret: %w", err)
	}

	created, err := s.store.Accounts().Create(ctx, acc)
	if errors.Is(err, model.ErrDuplicateEmail) {
		return model.Account{}, true, nil
	}
	if err != nil {
		return model.Account{}, false, err
	}
	created.CredentialSecret = plaintext
	return created, false, nil
}

func validateEntry(email, secret, platform, tier string) (model.Platform, model.Tier, error) {
	if strings.TrimSpace(email) == "" {
		return "", "", fmt.Errorf("email is required: %w", model.ErrInvalidRequest)
	}
	if secret == "" {
		return "", "", fmt.Errorf("secret is required: %w", model.ErrInvalidRequest)
	}
	p, ok := model.ParsePlatform(platform)
	if !ok {
		return "", "", fmt.Errorf("platform %q: %w", platform, model.ErrInvalidRequest)
	}
	t, ok := model.ParseTier(tier)
	if !ok {
		return "", "", fmt.Errorf("tier %q: %w", tier, model.ErrInvalidRequest)
	}
	return p, t, nil
}
