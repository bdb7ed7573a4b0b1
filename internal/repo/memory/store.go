// Package memory is a process-local storage backend. Each account carries its
// own mutex, so claims against different accounts never contend; customer
// uniqueness is enforced through an atomic LoadOrStore on the ledger index.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

type accountEntry struct {
	mu       sync.Mutex
	acc      model.Account
	assigned int
	deleted  bool
}

// Store implements repo.Store in memory
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*accountEntry
	emails   map[string]uuid.UUID

	customers sync.Map // customer key -> model.Assignment

	ledgerMu sync.RWMutex
	ledger   []model.Assignment

	reportsMu sync.RWMutex
	reports   map[uuid.UUID]model.Report
}

var _ repo.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]*accountEntry),
		emails:   make(map[string]uuid.UUID),
		reports:  make(map[uuid.UUID]model.Report),
	}
}

func (s *Store) Accounts() repo.AccountRepo       { return accountRepo{s} }
func (s *Store) Assignments() repo.AssignmentRepo { return assignmentRepo{s} }
func (s *Store) Reports() repo.ReportRepo         { return reportRepo{s} }
func (s *Store) Close() error                     { return nil }

func (s *Store) entry(id uuid.UUID) (*accountEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[id]
	return e, ok
}

func (s *Store) entries() []*accountEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*accountEntry, 0, len(s.accounts))
	for _, e := range s.accounts {
		out = append(out, e)
	}
	return out
}

func cloneAccount(acc model.Account) model.Account {
	out := acc
	out.Profiles = make([]model.Profile, len(acc.Profiles))
	copy(out.Profiles, acc.Profiles)
	return out
}

type accountRepo struct{ s *Store }

func (r accountRepo) Create(ctx context.Context, acc model.Account) (model.Account, error) {
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	for i := range acc.Profiles {
		acc.Profiles[i].Position = i
	}

	key := model.NormalizeEmail(acc.CredentialEmail)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.emails[key]; exists {
		return model.Account{}, fmt.Errorf("create account %s: %w", acc.CredentialEmail, model.ErrDuplicateEmail)
	}
	r.s.emails[key] = acc.ID
	r.s.accounts[acc.ID] = &accountEntry{acc: cloneAccount(acc)}
	return cloneAccount(acc), nil
}

func (r accountRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.emails[model.NormalizeEmail(email)]
	return ok, nil
}

func (r accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	e, ok := r.s.entry(id)
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAccount(e.acc), nil
}

func (r accountRepo) List(ctx context.Context, filter repo.AccountFilter) ([]model.Account, error) {
	var out []model.Account
	for _, e := range r.s.entries() {
		e.mu.Lock()
		acc := cloneAccount(e.acc)
		e.mu.Unlock()

		if filter.Platform != "" && acc.Platform != filter.Platform {
			continue
		}
		if filter.Tier != "" && acc.Tier != filter.Tier {
			continue
		}
		if filter.InStock && acc.Available() == 0 {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r accountRepo) CountAvailable(ctx context.Context, platform model.Platform, tier model.Tier) (int, error) {
	total := 0
	for _, e := range r.s.entries() {
		e.mu.Lock()
		if e.acc.Tier == tier && (platform == "" || e.acc.Platform == platform) {
			total += e.acc.Available()
		}
		e.mu.Unlock()
	}
	return total, nil
}

func (r accountRepo) StockSummary(ctx context.Context) ([]model.StockLine, error) {
	type key struct {
		platform model.Platform
		tier     model.Tier
	}
	lines := make(map[key]*model.StockLine)
	for _, e := range r.s.entries() {
		e.mu.Lock()
		k := key{e.acc.Platform, e.acc.Tier}
		available := e.acc.Available()
		e.mu.Unlock()

		line, ok := lines[k]
		if !ok {
			line = &model.StockLine{Platform: k.platform, Tier: k.tier}
			lines[k] = line
		}
		line.Accounts++
		line.Available += available
	}

	out := make([]model.StockLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}

func (r accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, model.ErrAccountNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.assigned > 0 {
		return fmt.Errorf("account %s: %w", id, model.ErrAccountInUse)
	}
	e.deleted = true
	delete(r.s.accounts, id)
	delete(r.s.emails, model.NormalizeEmail(e.acc.CredentialEmail))

	r.s.reportsMu.Lock()
	for rid, rep := range r.s.reports {
		if rep.AccountID == id {
			delete(r.s.reports, rid)
		}
	}
	r.s.reportsMu.Unlock()
	return nil
}

type assignmentRepo struct{ s *Store }

// Claim holds the account's mutex for the whole check-and-set. The customer key
// is reserved with LoadOrStore after every other check has passed, so nothing
// can fail once the reservation is made.
func (r assignmentRepo) Claim(ctx context.Context, p repo.ClaimParams) (model.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return model.Assignment{}, err
	}
	e, ok := r.s.entry(p.AccountID)
	if !ok {
		return model.Assignment{}, fmt.Errorf("account %s: %w", p.AccountID, model.ErrAccountNotFound)
	}
	return r.claim(e, p)
}

// claim runs the check-and-set on an entry looked up earlier. A Delete may
// have detached the entry since the lookup.
func (r assignmentRepo) claim(e *accountEntry, p repo.ClaimParams) (model.Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return model.Assignment{}, fmt.Errorf("account %s: %w", p.AccountID, model.ErrAccountNotFound)
	}

	idx := -1
	for i, prof := range e.acc.Profiles {
		if prof.Name == p.ProfileName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Assignment{}, fmt.Errorf("%s/%s: %w", p.AccountID, p.ProfileName, model.ErrProfileNotFound)
	}
	if e.acc.Profiles[idx].Used {
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
	if _, loaded := r.s.customers.LoadOrStore(p.CustomerKey, a); loaded {
		return model.Assignment{}, fmt.Errorf("customer %q: %w", p.Customer, model.ErrDuplicateCustomer)
	}

	e.acc.Profiles[idx].Used = true
	e.assigned++

	r.s.ledgerMu.Lock()
	r.s.ledger = append(r.s.ledger, a)
	r.s.ledgerMu.Unlock()
	return a, nil
}

func (r assignmentRepo) GetByCustomer(ctx context.Context, customerKey string) (model.Assignment, error) {
	v, ok := r.s.customers.Load(customerKey)
	if !ok {
		return model.Assignment{}, fmt.Errorf("customer %q: %w", customerKey, model.ErrAssignmentNotFound)
	}
	return v.(model.Assignment), nil
}

func (r assignmentRepo) List(ctx context.Context, limit int) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.ledgerMu.RLock()
	defer r.s.ledgerMu.RUnlock()
	out := make([]model.Assignment, 0, min(limit, len(r.s.ledger)))
	for i := len(r.s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.s.ledger[i])
	}
	return out, nil
}

func (r assignmentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Assignment, error) {
	r.s.ledgerMu.RLock()
	defer r.s.ledgerMu.RUnlock()
	var out []model.Assignment
	for _, a := range r.s.ledger {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

type reportRepo struct{ s *Store }

// Lock order: account entry, then reportsMu.

func (r reportRepo) Create(ctx context.Context, rep model.Report) (model.Report, error) {
	e, ok := r.s.entry(rep.AccountID)
	if !ok {
		return model.Report{}, fmt.Errorf("account %s: %w", rep.AccountID, model.ErrAccountNotFound)
	}
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	rep.Resolved = false
	rep.ResolvedAt = nil

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return model.Report{}, fmt.Errorf("account %s: %w", rep.AccountID, model.ErrAccountNotFound)
	}
	e.acc.Reported = true

	r.s.reportsMu.Lock()
	r.s.reports[rep.ID] = rep
	r.s.reportsMu.Unlock()
	return rep, nil
}

func (r reportRepo) Resolve(ctx context.Context, p repo.ResolveParams) (model.Report, error) {
	current, err := r.GetByID(ctx, p.ReportID)
	if err != nil {
		return model.Report{}, err
	}
	e, ok := r.s.entry(current.AccountID)
	if !ok {
		return model.Report{}, fmt.Errorf("account %s: %w", current.AccountID, model.ErrAccountNotFound)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	r.s.reportsMu.Lock()
	defer r.s.reportsMu.Unlock()

	rep, ok := r.s.reports[p.ReportID]
	if !ok {
		return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportNotFound)
	}
	if rep.Resolved {
		return model.Report{}, fmt.Errorf("report %s: %w", p.ReportID, model.ErrReportAlreadyResolved)
	}

	at := p.At
	rep.Resolved = true
	rep.ResolvedAt = &at
	rep.ResolutionNote = p.Note
	rep.SecretRotated = p.NewSecret != nil
	r.s.reports[rep.ID] = rep

	if p.NewSecret != nil {
		e.acc.CredentialSecret = *p.NewSecret
	}
	stillReported := false
	for _, other := range r.s.reports {
		if other.AccountID == rep.AccountID && !other.Resolved {
			stillReported = true
			break
		}
	}
	e.acc.Reported = stillReported
	return rep, nil
}

func (r reportRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Report, error) {
	r.s.reportsMu.RLock()
	defer r.s.reportsMu.RUnlock()
	rep, ok := r.s.reports[id]
	if !ok {
		return model.Report{}, fmt.Errorf("report %s: %w", id, model.ErrReportNotFound)
	}
	return rep, nil
}

func (r reportRepo) List(ctx context.Context, unresolvedOnly bool) ([]model.Report, error) {
	r.s.reportsMu.RLock()
	out := make([]model.Report, 0, len(r.s.reports))
	for _, rep := range r.s.reports {
		if unresolvedOnly && rep.Resolved {
			continue
		}
		out = append(out, rep)
	}
	r.s.reportsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReportedAt.Equal(out[j].ReportedAt) {
			return out[i].ReportedAt.After(out[j].ReportedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
