package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/slotkeeper/server/internal/model"
)

// AccountFilter narrows account listings. Zero values match everything.
type AccountFilter struct {
	Platform model.Platform
	Tier     model.Tier
	// InStock keeps only accounts with at least one unused profile.
	InStock bool
}

// AccountRepo defines the interface for account and profile pool persistence
type AccountRepo interface {
	// Create stores the account and its profiles. Returns model.ErrDuplicateEmail
	// when an account with the same email (case-insensitive) exists.
	Create(ctx context.Context, acc model.Account) (model.Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	List(ctx context.Context, filter AccountFilter) ([]model.Account, error)
	// CountAvailable sums unused profiles for a tier, optionally restricted to
	// one platform (empty platform means all).
	CountAvailable(ctx context.Context, platform model.Platform, tier model.Tier) (int, error)
	StockSummary(ctx context.Context) ([]model.StockLine, error)
	// Delete removes the account and its profiles. Returns model.ErrAccountInUse
	// while assignments reference it.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ClaimParams describes one profile claim and the assignment recorded with it
type ClaimParams struct {
	AccountID   uuid.UUID
	ProfileName string
	Customer    string
	CustomerKey string
	Operator    string
	ChannelRef  *string
	At          time.Time
}

// AssignmentRepo defines the interface for the assignment ledger
type AssignmentRepo interface {
	// Claim flips the profile to used only if it is currently unused and
	// records the assignment in the same transaction. Returns
	// model.ErrProfileTaken when the profile was already used,
	// model.ErrProfileNotFound when it does not exist and
	// model.ErrDuplicateCustomer when the customer key already has an
	// assignment. Nothing is persisted on error.
	Claim(ctx context.Context, p ClaimParams) (model.Assignment, error)
	GetByCustomer(ctx context.Context, customerKey string) (model.Assignment, error)
	List(ctx context.Context, limit int) ([]model.Assignment, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Assignment, error)
}

// ResolveParams describes how a report is resolved
type ResolveParams struct {
	ReportID uuid.UUID
	Note     string
	// NewSecret, when set, replaces the account's credential secret.
	NewSecret *string
	At        time.Time
}

// ReportRepo defines the interface for account problem reports
type ReportRepo interface {
	// Create appends a report and marks the account reported in one transaction.
	Create(ctx context.Context, r model.Report) (model.Report, error)
	// Resolve marks the report resolved, optionally rotates the account secret
	// and clears the account's reported flag once no unresolved report remains.
	Resolve(ctx context.Context, p ResolveParams) (model.Report, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Report, error)
	List(ctx context.Context, unresolvedOnly bool) ([]model.Report, error)
}

// Store bundles the repositories of one storage backend
type Store interface {
	Accounts() AccountRepo
	Assignments() AssignmentRepo
	Reports() ReportRepo
	Close() error
}
