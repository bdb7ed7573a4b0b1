package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/model"
	"github.com/slotkeeper/server/internal/repo"
)

// AllocateRequest asks for one profile of the given platform and tier
type AllocateRequest struct {
	Platform  model.Platform
	Tier      model.Tier
	Customer  string
	Operator  string
	ChannelID string
}

// Allocation is the outcome of a successful claim
type Allocation struct {
	Account    model.Account    `json:"account"`
	Profile    model.Profile    `json:"profile"`
	Assignment model.Assignment `json:"assignment"`
}

type profileRef struct {
	account uuid.UUID
	name    string
}

type candidate struct {
	account model.Account
	unused  []model.Profile
}

// Allocate claims one unused profile for the customer. The account is picked
// uniformly at random among those with spare capacity, then the profile
// uniformly at random within it. A claim lost to a concurrent request is
// retried without the lost profile, up to the configured attempt limit.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (Allocation, error) {
	display, key := model.NormalizeCustomer(req.Customer)
	if key == "" {
		return Allocation{}, fmt.Errorf("customer is required: %w", model.ErrInvalidRequest)
	}
	platform, ok := model.ParsePlatform(string(req.Platform))
	if !ok {
		return Allocation{}, fmt.Errorf("platform %q: %w", req.Platform, model.ErrInvalidRequest)
	}
	tier, ok := model.ParseTier(string(req.Tier))
	if !ok {
		return Allocation{}, fmt.Errorf("tier %q: %w", req.Tier, model.ErrInvalidRequest)
	}

	_, err := s.store.Assignments().GetByCustomer(ctx, key)
	switch {
	case err == nil:
		return Allocation{}, fmt.Errorf("customer %q: %w", display, model.ErrDuplicateCustomer)
	case !errors.Is(err, model.ErrAssignmentNotFound):
		return Allocation{}, fmt.Errorf("check customer: %w", err)
	}

	var channelRef *string
	if req.ChannelID != "" {
		if s.channels == nil {
			return Allocation{}, fmt.Errorf("channel %q: %w", req.ChannelID, model.ErrChannelNotFound)
		}
		ch, err := s.channels.Get(req.ChannelID)
		if err != nil {
			return Allocation{}, err
		}
		channelRef = &ch.ID
	}

	excluded := make(map[profileRef]struct{})
	gone := make(map[uuid.UUID]struct{})
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidates, err := s.candidates(ctx, platform, tier, excluded, gone)
		if err != nil {
			return Allocation{}, err
		}
		if len(candidates) == 0 {
			return Allocation{}, fmt.Errorf("%s/%s: %w", platform, tier, model.ErrStockDepleted)
		}

		c := candidates[s.intn(len(candidates))]
		prof := c.unused[s.intn(len(c.unused))]

		acc, err := s.openAccount(c.account)
		if err != nil {
			return Allocation{}, err
		}

		assignment, err := s.store.Assignments().Claim(ctx, repo.ClaimParams{
			AccountID:   acc.ID,
			ProfileName: prof.Name,
			Customer:    display,
			CustomerKey: key,
			Operator:    req.Operator,
			ChannelRef:  channelRef,
			At:          s.now(),
		})
		switch {
		case err == nil:
			prof.Used = true
			for i := range acc.Profiles {
				if acc.Profiles[i].Name == prof.Name {
					acc.Profiles[i].Used = true
				}
			}
			s.logger.Info("profile allocated",
				"account_id", acc.ID,
				"profile", prof.Name,
				"platform", platform,
				"tier", tier,
				"operator", req.Operator,
				"attempt", attempt,
			)
			s.record(req.Operator, "allocate",
				fmt.Sprintf("%s allocated %s (%s/%s) to %s", req.Operator, acc.CredentialEmail, platform, tier, display),
				map[string]any{
					"account_id": acc.ID.String(),
					"profile":    prof.Name,
					"customer":   display,
				})
			return Allocation{Account: acc, Profile: prof, Assignment: assignment}, nil

		case errors.Is(err, model.ErrProfileTaken):
			s.logger.Debug("claim lost, retrying",
				"account_id", acc.ID, "profile", prof.Name, "attempt", attempt)
			excluded[profileRef{acc.ID, prof.Name}] = struct{}{}

		case errors.Is(err, model.ErrAccountNotFound), errors.Is(err, model.ErrProfileNotFound):
			// deleted between listing and claim
			s.logger.Warn("candidate vanished before claim",
				"account_id", acc.ID, "profile", prof.Name, "error", err)
			gone[acc.ID] = struct{}{}

		default:
			return Allocation{}, fmt.Errorf("claim profile: %w", err)
		}
	}

	s.logger.Warn("allocation gave up after repeated conflicts",
		"platform", platform, "tier", tier, "attempts", s.maxAttempts)
	return Allocation{}, fmt.Errorf("%s/%s after %d attempts: %w", platform, tier, s.maxAttempts, model.ErrAllocationConflict)
}

// candidates lists in-stock accounts of the platform and tier, minus
// excluded profiles and vanished accounts. Accounts whose pool fails
// validation are skipped and logged.
func (s *Service) candidates(ctx context.Context, platform model.Platform, tier model.Tier, excluded map[profileRef]struct{}, gone map[uuid.UUID]struct{}) ([]candidate, error) {
	accounts, err := s.store.Accounts().List(ctx, repo.AccountFilter{
		Platform: platform,
		Tier:     tier,
		InStock:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	out := make([]candidate, 0, len(accounts))
	for _, acc := range accounts {
		if _, skip := gone[acc.ID]; skip {
			continue
		}
		if err := model.ValidatePool(acc.Profiles); err != nil {
			s.logger.Error("account excluded from allocation",
				"account_id", acc.ID, "error", err)
			continue
		}
		var unused []model.Profile
		for _, p := range acc.UnusedProfiles() {
			if _, skip := excluded[profileRef{acc.ID, p.Name}]; skip {
				continue
			}
			unused = append(unused, p)
		}
		if len(unused) > 0 {
			out = append(out, candidate{account: acc, unused: unused})
		}
	}
	return out, nil
}
