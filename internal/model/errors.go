package model

import "errors"

var (
	ErrDuplicateCustomer     = errors.New("customer already has an assignment")
	ErrStockDepleted         = errors.New("no account with spare capacity")
	ErrAllocationConflict    = errors.New("allocation lost every claim attempt to concurrent requests")
	ErrAccountNotFound       = errors.New("account not found")
	ErrProfileNotFound       = errors.New("profile not found")
	ErrInvalidPoolState      = errors.New("invalid profile pool")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrChannelNotFound       = errors.New("channel not found")
	ErrDuplicateEmail        = errors.New("account email already exists")
	ErrReportNotFound        = errors.New("report not found")
	ErrReportAlreadyResolved = errors.New("report already resolved")
	ErrAccountInUse          = errors.New("account has assignments")
	ErrAssignmentNotFound    = errors.New("assignment not found")

	// ErrProfileTaken is returned by a store when the conditional claim found
	// the profile already used. The allocator retries on it.
	ErrProfileTaken = errors.New("profile already claimed")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrDuplicateCustomer, "DuplicateCustomer"},
	{ErrStockDepleted, "StockDepleted"},
	{ErrAllocationConflict, "AllocationConflict"},
	{ErrAccountNotFound, "AccountNotFound"},
	{ErrProfileNotFound, "ProfileNotFound"},
	{ErrInvalidPoolState, "InvalidPoolState"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrChannelNotFound, "ChannelNotFound"},
	{ErrDuplicateEmail, "DuplicateEmail"},
	{ErrReportNotFound, "ReportNotFound"},
	{ErrReportAlreadyResolved, "ReportAlreadyResolved"},
	{ErrAccountInUse, "AccountInUse"},
	{ErrAssignmentNotFound, "AssignmentNotFound"},
	{ErrProfileTaken, "ProfileTaken"},
}

// Kind returns the stable error kind for err, or "Internal" when err does not
// wrap any of the package's sentinel errors.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "Internal"
}
