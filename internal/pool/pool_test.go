package pool

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
	"github.com/slotkeeper/server/internal/repo/memory"
	"github.com/slotkeeper/server/internal/repo/sqlite"
)

var expiry = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

// forEachStore runs fn against every embedded backend
func forEachStore(t *testing.T, fn func(t *testing.T, store repo.Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, memory.New())
	})
	t.Run("sqlite", func(t *testing.T) {
		store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "pool.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		fn(t, store)
	})
}

// provision creates one account per email with count profiles
func provision(t *testing.T, svc *Service, platform model.Platform, tier model.Tier, count int, emails ...string) []model.Account {
	t.Helper()
	entries := make([]AccountEntry, len(emails))
	for i, email := range emails {
		entries[i] = AccountEntry{Email: email, Secret: "pw-" + email, Platform: string(platform), Tier: string(tier)}
	}
	res, err := svc.CreateAccounts(context.Background(), CreateAccountsRequest{
		Entries:      entries,
		ExpiresAt:    expiry,
		ProfileCount: &count,
		Operator:     "admin",
	})
	require.NoError(t, err)
	require.Equal(t, len(emails), res.Created, "failures: %+v", res.Failures)
	return res.Accounts
}

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSink) Record(e activity.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e.Message)
}

func (r *recordingSink) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// flakyAssignments loses the first fail claims as if a concurrent request won them
type flakyAssignments struct {
	repo.AssignmentRepo
	mu     sync.Mutex
	fail   int
	claims []repo.ClaimParams
}

func (f *flakyAssignments) Claim(ctx context.Context, p repo.ClaimParams) (model.Assignment, error) {
	f.mu.Lock()
	f.claims = append(f.claims, p)
	lose := f.fail > 0
	if lose {
		f.fail--
	}
	f.mu.Unlock()
	if lose {
		return model.Assignment{}, model.ErrProfileTaken
	}
	return f.AssignmentRepo.Claim(ctx, p)
}

type flakyStore struct {
	repo.Store
	assignments *flakyAssignments
}

func (f *flakyStore) Assignments() repo.AssignmentRepo { return f.assignments }

func withFlakyClaims(store repo.Store, fail int) *flakyStore {
	return &flakyStore{
		Store:       store,
		assignments: &flakyAssignments{AssignmentRepo: store.Assignments(), fail: fail},
	}
}

func memoryStore() repo.Store { return memory.New() }
