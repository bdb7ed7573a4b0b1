// Package pool is the credential pool allocation engine: stock counts, the
// allocator, the assignment ledger, provisioning and problem reports, all on
// top of a repo.Store.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
	"github.com/slotkeeper/server/internal/sealed"
)

// DefaultMaxAttempts bounds the claim retry loop when no option overrides it.
const DefaultMaxAttempts = 4

// ChannelLookup resolves a channel ID to a channel
type ChannelLookup interface {
	Get(id string) (model.Channel, error)
}

// Service orchestrates every engine operation
type Service struct {
	store       repo.Store
	channels    ChannelLookup
	sink        activity.Sink
	box         *sealed.Box
	logger      *slog.Logger
	maxAttempts int
	intn        func(n int) int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithChannels sets the channel registry. Without it every channel reference
// is rejected.
func WithChannels(c ChannelLookup) Option {
	return func(s *Service) { s.channels = c }
}

// WithActivity sets the sink receiving operator activity lines.
func WithActivity(sink activity.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithSealing sets the box used to seal credential secrets at rest.
func WithSealing(box *sealed.Box) Option {
	return func(s *Service) { s.box = box }
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxAttempts sets how many claims Allocate tries before giving up with
// model.ErrAllocationConflict. Values below 1 keep the default.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the engine on top of store
func NewService(store repo.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		sink:        activity.Discard{},
		box:         &sealed.Box{},
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		intn:        rand.Intn,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAccount returns one account with its secret opened
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error) {
	acc, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return s.openAccount(acc)
}

// ListAccounts returns the accounts matching filter with their secrets opened
func (s *Service) ListAccounts(ctx context.Context, filter repo.AccountFilter) ([]model.Account, error) {
	accounts, err := s.store.Accounts().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i], err = s.openAccount(accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

func (s *Service) openAccount(acc model.Account) (model.Account, error) {
	secret, err := s.box.Open(acc.CredentialSecret)
	if err != nil {
		return model.Account{}, fmt.Errorf("open secret of account %s: %w", acc.ID, err)
	}
	acc.CredentialSecret = secret
	return acc, nil
}

func (s *Service) record(operator, action, message string, fields map[string]any) {
	s.sink.Record(activity.Entry{
		At:       s.now(),
		Operator: operator,
		Action:   action,
		Message:  message,
		Fields:   fields,
	})
}
