package pool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/slotkeeper/server/internal/model"
)

// FindByCustomer returns the assignment held by a customer. Matching ignores
// case and surrounding whitespace.
func (s *Service) FindByCustomer(ctx context.Context, customer string) (model.Assignment, error) {
	_, key := model.NormalizeCustomer(customer)
	if key == "" {
		return model.Assignment{}, fmt.Errorf("customer is required: %w", model.ErrInvalidRequest)
	}
	return s.store.Assignments().GetByCustomer(ctx, key)
}

// Assignments returns the most recent assignments, newest first
func (s *Service) Assignments(ctx context.Context, limit int) ([]model.Assignment, error) {
	return s.store.Assignments().List(ctx, limit)
}

// AccountAssignments returns the assignments of one account in claim order
func (s *Service) AccountAssignments(ctx context.Context, accountID uuid.UUID) ([]model.Assignment, error) {
	if _, err := s.store.Accounts().GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.Assignments().ListByAccount(ctx, accountID)
}
