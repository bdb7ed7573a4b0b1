package pool

import (
	"context"
	"fmt"

	"github.com/slotkeeper/server/internal/model"
)

// AvailableCount returns the number of unused profiles of a tier across every
// platform. It reads committed state on each call.
func (s *Service) AvailableCount(ctx context.Context, tier model.Tier) (int, error) {
	return s.AvailableCountFor(ctx, "", tier)
}

// AvailableCountFor is AvailableCount restricted to one platform. An empty
// platform counts every platform.
func (s *Service) AvailableCountFor(ctx context.Context, platform model.Platform, tier model.Tier) (int, error) {
	if _, ok := model.ParseTier(string(tier)); !ok {
		return 0, fmt.Errorf("tier %q: %w", tier, model.ErrInvalidRequest)
	}
	if platform != "" {
		if _, ok := model.ParsePlatform(string(platform)); !ok {
			return 0, fmt.Errorf("platform %q: %w", platform, model.ErrInvalidRequest)
		}
	}
	return s.store.Accounts().CountAvailable(ctx, platform, tier)
}

// Summary returns available profiles per platform and tier, for every
// combination holding at least one account.
func (s *Service) Summary(ctx context.Context) ([]model.StockLine, error) {
	return s.store.Accounts().StockSummary(ctx)
}
