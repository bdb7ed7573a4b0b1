package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotkeeper/server/internal/channel"
	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

func TestAllocateScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		sink := &recordingSink{}
		svc := NewService(store, WithActivity(sink))
		accounts := provision(t, svc, model.PlatformNetflix, model.TierSharing, 2, "x@example.com")

		var (
			wg      sync.WaitGroup
			results = make([]Allocation, 2)
			errs    = make([]error, 2)
		)
		for i, customer := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(i int, customer string) {
				defer wg.Done()
				results[i], errs[i] = svc.Allocate(ctx, AllocateRequest{
					Platform: model.PlatformNetflix,
					Tier:     model.TierSharing,
					Customer: customer,
					Operator: fmt.Sprintf("op%d", i),
				})
			}(i, customer)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, accounts[0].ID, results[0].Account.ID)
		assert.Equal(t, accounts[0].ID, results[1].Account.ID)
		assert.NotEqual(t, results[0].Profile.Name, results[1].Profile.Name)
		assert.True(t, results[0].Profile.Used)
		assert.Equal(t, "pw-x@example.com", results[0].Account.CredentialSecret)

		_, err := svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformNetflix, Tier: model.TierSharing, Customer: "carol", Operator: "op0"})
		assert.ErrorIs(t, err, model.ErrStockDepleted)

		_, err = svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformNetflix, Tier: model.TierSharing, Customer: "alice", Operator: "op1"})
		assert.ErrorIs(t, err, model.ErrDuplicateCustomer)

		allocs := 0
		for _, msg := range sink.messages() {
			if strings.Contains(msg, " allocated ") {
				allocs++
			}
		}
		assert.Equal(t, 2, allocs, "one activity line per successful allocation")
	})
}

func TestAllocateBoundedCapacity(t *testing.T) {
	cases := []struct {
		name     string
		requests int
		accounts int
		profiles int
	}{
		{"more requests than stock", 24, 2, 3},
		{"fewer requests than stock", 5, 3, 4},
		{"exact fit", 6, 3, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			forEachStore(t, func(t *testing.T, store repo.Store) {
				ctx := context.Background()
				stock := tc.accounts * tc.profiles
				svc := NewService(store, WithMaxAttempts(stock+1))

				emails := make([]string, tc.accounts)
				for i := range emails {
					emails[i] = fmt.Sprintf("acct%d@example.com", i)
				}
				provision(t, svc, model.PlatformDisney, model.TierPrivate, tc.profiles, emails...)
				// a different tier must not be touched
				provision(t, svc, model.PlatformDisney, model.TierVIP, 2, "vip@example.com")

				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int
				)
				for i := 0; i < tc.requests; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := svc.Allocate(ctx, AllocateRequest{
							Platform: model.PlatformDisney,
							Tier:     model.TierPrivate,
							Customer: fmt.Sprintf("customer-%d", i),
							Operator: "op",
						})
						mu.Lock()
						defer mu.Unlock()
						if err == nil {
							successes++
							return
						}
						if !errors.Is(err, model.ErrStockDepleted) && !errors.Is(err, model.ErrAllocationConflict) {
							t.Errorf("unexpected error: %v", err)
						}
					}(i)
				}
				wg.Wait()

				assert.Equal(t, min(tc.requests, stock), successes)
				assertLedgerMatchesPools(t, svc)

				vip, err := svc.AvailableCountFor(ctx, model.PlatformDisney, model.TierVIP)
				require.NoError(t, err)
				assert.Equal(t, 2, vip)
			})
		})
	}
}

// assertLedgerMatchesPools checks that a profile is used iff exactly one
// assignment references it.
func assertLedgerMatchesPools(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	accounts, err := svc.ListAccounts(ctx, repo.AccountFilter{})
	require.NoError(t, err)

	for _, acc := range accounts {
		assignments, err := svc.AccountAssignments(ctx, acc.ID)
		require.NoError(t, err)
		refs := make(map[string]int)
		for _, a := range assignments {
			refs[a.ProfileName]++
		}
		for _, p := range acc.Profiles {
			if p.Used {
				assert.Equal(t, 1, refs[p.Name], "used profile %s/%s", acc.CredentialEmail, p.Name)
			} else {
				assert.Zero(t, refs[p.Name], "unused profile %s/%s has an assignment", acc.CredentialEmail, p.Name)
			}
		}
	}
}

func TestAllocateDuplicateCustomerConcurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		svc := NewService(store, WithMaxAttempts(10))
		provision(t, svc, model.PlatformPrime, model.TierSharing, 20, "p@example.com")

		spellings := []string{"Alice", "alice", " ALICE ", "alice\t", "aLiCe"}
		const workers = 12
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dups      int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Allocate(ctx, AllocateRequest{
					Platform: model.PlatformPrime,
					Tier:     model.TierSharing,
					Customer: spellings[i%len(spellings)],
					Operator: "op",
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, model.ErrDuplicateCustomer):
					dups++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, dups)

		n, err := svc.AvailableCountFor(ctx, model.PlatformPrime, model.TierSharing)
		require.NoError(t, err)
		assert.Equal(t, 19, n, "losers must not consume stock")
		assertLedgerMatchesPools(t, svc)
	})
}

func TestAllocateDecrementsStockByOne(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		svc := NewService(store)
		provision(t, svc, model.PlatformHBO, model.TierVIP, 6, "h1@example.com", "h2@example.com")

		before, err := svc.AvailableCountFor(ctx, model.PlatformHBO, model.TierVIP)
		require.NoError(t, err)
		require.Equal(t, 12, before)

		_, err = svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformHBO, Tier: model.TierVIP, Customer: "dave", Operator: "op"})
		require.NoError(t, err)

		after, err := svc.AvailableCountFor(ctx, model.PlatformHBO, model.TierVIP)
		require.NoError(t, err)
		assert.Equal(t, before-1, after)

		all, err := svc.AvailableCount(ctx, model.TierVIP)
		require.NoError(t, err)
		assert.Equal(t, after, all)
	})
}

func TestAllocateRetriesLostClaims(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		flaky := withFlakyClaims(store, 2)
		svc := NewService(flaky, WithMaxAttempts(4))
		provision(t, svc, model.PlatformSpotify, model.TierPrivate, 8, "s@example.com")

		got, err := svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformSpotify, Tier: model.TierPrivate, Customer: "erin", Operator: "op"})
		require.NoError(t, err)

		claims := flaky.assignments.claims
		require.Len(t, claims, 3)
		assert.NotEqual(t, claims[0].ProfileName, claims[1].ProfileName, "a lost profile is not retried")
		assert.NotEqual(t, claims[0].ProfileName, claims[2].ProfileName)
		assert.NotEqual(t, claims[1].ProfileName, claims[2].ProfileName)
		assert.Equal(t, claims[2].ProfileName, got.Profile.Name)
	})
}

func TestAllocateGivesUpAfterMaxAttempts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		flaky := withFlakyClaims(store, 100)
		svc := NewService(flaky, WithMaxAttempts(4))
		provision(t, svc, model.PlatformApple, model.TierPrivate, 8, "a@example.com")

		_, err := svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformApple, Tier: model.TierPrivate, Customer: "frank", Operator: "op"})
		assert.ErrorIs(t, err, model.ErrAllocationConflict)
		assert.Len(t, flaky.assignments.claims, 4)

		n, err := svc.AvailableCountFor(ctx, model.PlatformApple, model.TierPrivate)
		require.NoError(t, err)
		assert.Equal(t, 8, n, "nothing is consumed by a failed allocation")

		_, err = svc.FindByCustomer(ctx, "frank")
		assert.ErrorIs(t, err, model.ErrAssignmentNotFound)
	})
}

func TestAllocateDepletedDuringRetry(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		flaky := withFlakyClaims(store, 1)
		svc := NewService(flaky, WithMaxAttempts(4))
		provision(t, svc, model.PlatformApple, model.TierVIP, 1, "solo@example.com")

		_, err := svc.Allocate(ctx, AllocateRequest{Platform: model.PlatformApple, Tier: model.TierVIP, Customer: "gina", Operator: "op"})
		assert.ErrorIs(t, err, model.ErrStockDepleted)
	})
}

func TestAllocateSkipsInvalidPools(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		svc := NewService(store)

		_, err := store.Accounts().Create(ctx, model.Account{
			ID:               uuid.New(),
			Platform:         model.PlatformYouTube,
			Tier:             model.TierSharing,
			CredentialEmail:  "broken@example.com",
			CredentialSecret: "pw",
			ExpiresAt:        expiry,
			Profiles: []model.Profile{
				{Name: "Profile A", Pin: "12"},
				{Name: "Profile B", Pin: "2222"},
			},
		})
		require.NoError(t, err)

		req := AllocateRequest{Platform: model.PlatformYouTube, Tier: model.TierSharing, Customer: "hank", Operator: "op"}
		_, err = svc.Allocate(ctx, req)
		assert.ErrorIs(t, err, model.ErrStockDepleted)

		good := provision(t, svc, model.PlatformYouTube, model.TierSharing, 1, "good@example.com")
		got, err := svc.Allocate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, good[0].ID, got.Account.ID)
	})
}

func TestAllocateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memoryStore())

	cases := []struct {
		name string
		req  AllocateRequest
		want error
	}{
		{"empty customer", AllocateRequest{Platform: "netflix", Tier: "private", Customer: "   "}, model.ErrInvalidRequest},
		{"unknown platform", AllocateRequest{Platform: "myspace", Tier: "private", Customer: "ivan"}, model.ErrInvalidRequest},
		{"unknown tier", AllocateRequest{Platform: "netflix", Tier: "gold", Customer: "ivan"}, model.ErrInvalidRequest},
		{"channel without registry", AllocateRequest{Platform: "netflix", Tier: "private", Customer: "ivan", ChannelID: "wa"}, model.ErrChannelNotFound},
		{"empty pool", AllocateRequest{Platform: "netflix", Tier: "private", Customer: "ivan"}, model.ErrStockDepleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Allocate(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAllocateWithChannel(t *testing.T) {
	ctx := context.Background()
	registry, err := channel.New([]model.Channel{{ID: "wa-main", Name: "WhatsApp", Number: "+1 555 0100"}})
	require.NoError(t, err)
	svc := NewService(memoryStore(), WithChannels(registry))
	provision(t, svc, model.PlatformParamount, model.TierPrivate, 2, "pm@example.com")

	_, err = svc.Allocate(ctx, AllocateRequest{Platform: "paramount", Tier: "private", Customer: "judy", ChannelID: "sms"})
	assert.ErrorIs(t, err, model.ErrChannelNotFound)

	got, err := svc.Allocate(ctx, AllocateRequest{Platform: "Paramount", Tier: "PRIVATE", Customer: "  Judy ", Operator: "op", ChannelID: "wa-main"})
	require.NoError(t, err)
	require.NotNil(t, got.Assignment.ChannelRef)
	assert.Equal(t, "wa-main", *got.Assignment.ChannelRef)
	assert.Equal(t, "Judy", got.Assignment.CustomerIdentifier)
	assert.Equal(t, "op", got.Assignment.OperatorName)

	found, err := svc.FindByCustomer(ctx, "JUDY")
	require.NoError(t, err)
	assert.Equal(t, got.Assignment.ID, found.ID)
}

func TestAllocateSpreadsAcrossAccounts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memoryStore())
	provision(t, svc, model.PlatformNetflix, model.TierSharing, 20, "n1@example.com", "n2@example.com", "n3@example.com")

	touched := make(map[uuid.UUID]int)
	for i := 0; i < 30; i++ {
		got, err := svc.Allocate(ctx, AllocateRequest{Platform: "netflix", Tier: "sharing", Customer: fmt.Sprintf("c%d", i), Operator: "op"})
		require.NoError(t, err)
		touched[got.Account.ID]++
	}
	assert.Greater(t, len(touched), 1, "allocation must not drain one account first")
}

func TestAllocateHonorsCancelledContext(t *testing.T) {
	svc := NewService(memoryStore())
	provision(t, svc, model.PlatformNetflix, model.TierPrivate, 2, "ctx@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Allocate(ctx, AllocateRequest{Platform: "netflix", Tier: "private", Customer: "kim", Operator: "op"})
	assert.ErrorIs(t, err, context.Canceled)

	n, err := svc.AvailableCountFor(context.Background(), model.PlatformNetflix, model.TierPrivate)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// deletingAssignments removes the target account just before the first claim
type deletingAssignments struct {
	repo.AssignmentRepo
	accounts repo.AccountRepo
	once     sync.Once
}

func (d *deletingAssignments) Claim(ctx context.Context, p repo.ClaimParams) (model.Assignment, error) {
	d.once.Do(func() { _ = d.accounts.Delete(ctx, p.AccountID) })
	return d.AssignmentRepo.Claim(ctx, p)
}

type deletingStore struct {
	repo.Store
	assignments *deletingAssignments
}

func (d *deletingStore) Assignments() repo.AssignmentRepo { return d.assignments }

func TestAllocateSkipsAccountDeletedBeforeClaim(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repo.Store) {
		ctx := context.Background()
		provision(t, NewService(store), model.PlatformDisney, model.TierVIP, 2, "d1@example.com", "d2@example.com")

		wrapped := &deletingStore{
			Store:       store,
			assignments: &deletingAssignments{AssignmentRepo: store.Assignments(), accounts: store.Accounts()},
		}
		svc := NewService(wrapped)
		alloc, err := svc.Allocate(ctx, AllocateRequest{Platform: "disney", Tier: "vip", Customer: "zoe", Operator: "op"})
		require.NoError(t, err)

		accounts, err := svc.ListAccounts(ctx, repo.AccountFilter{})
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, accounts[0].ID, alloc.Account.ID)
	})
}
