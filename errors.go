package custody

import (
	"errors"
	"fmt"
)

// Error kinds. Every specific error below matches exactly one kind with
// errors.Is, so callers can branch on the kind without listing every case.
var (
	ErrInvalidParameter  = errors.New("custody: invalid parameter")
	ErrNotFound          = errors.New("custody: not found")
	ErrUnauthorized      = errors.New("custody: unauthorized")
	ErrStateConflict     = errors.New("custody: state conflict")
	ErrCapacityExceeded  = errors.New("custody: capacity exceeded")
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrNothingToDo       = errors.New("custody: nothing to do")
)

// kindError is a specific failure that also matches its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return "custody: " + e.msg }

// Is reports whether target is this error's kind.
func (e *kindError) Is(target error) bool { return target == e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Sentinel errors for specific failure scenarios.
var (
	// Parameter errors
	ErrZeroAddress        = newError(ErrInvalidParameter, "zero address")
	ErrInvalidAmount      = newError(ErrInvalidParameter, "amount must be positive")
	ErrInvalidDuration    = newError(ErrInvalidParameter, "duration out of range")
	ErrInvalidCliff       = newError(ErrInvalidParameter, "cliff out of range")
	ErrInvalidSlicePeriod = newError(ErrInvalidParameter, "invalid slice period")
	ErrInvalidKind        = newError(ErrInvalidParameter, "unknown schedule kind")
	ErrInvalidTier        = newError(ErrInvalidParameter, "unknown staking tier")
	ErrBelowMinimum       = newError(ErrInvalidParameter, "amount below minimum stake")
	ErrAPYTooHigh         = newError(ErrInvalidParameter, "apy above ceiling")
	ErrEmptyName          = newError(ErrInvalidParameter, "empty category name")
	ErrBelowMinAllocation = newError(ErrInvalidParameter, "capacity below minimum allocation")
	ErrZeroCap            = newError(ErrInvalidParameter, "zero recipient cap")
	ErrLengthMismatch     = newError(ErrInvalidParameter, "recipients and amounts differ in length")
	ErrEmptyBatch         = newError(ErrInvalidParameter, "empty batch")
	ErrInvalidConfig      = newError(ErrInvalidParameter, "invalid configuration")

	// Lookup errors
	ErrNotInitialized     = newError(ErrNotFound, "schedule not initialized")
	ErrPositionNotFound   = newError(ErrNotFound, "staking position not found")
	ErrCategoryNotFound   = newError(ErrNotFound, "category not found")
	ErrRecipientNotFound  = newError(ErrNotFound, "recipient not found")
	ErrTotalsNotFound     = newError(ErrNotFound, "totals not found")
	ErrScheduleIDConflict = newError(ErrStateConflict, "schedule id already used")

	// Access errors
	ErrNotAdmin       = newError(ErrUnauthorized, "caller is not an admin")
	ErrNotBeneficiary = newError(ErrUnauthorized, "caller is neither beneficiary nor admin")

	// State errors
	ErrPaused            = newError(ErrStateConflict, "operations are paused")
	ErrRevoked           = newError(ErrStateConflict, "schedule revoked")
	ErrAlreadyRevoked    = newError(ErrStateConflict, "schedule already revoked")
	ErrNotActive         = newError(ErrStateConflict, "no active stake")
	ErrAlreadyActive     = newError(ErrStateConflict, "stake already active")
	ErrStillLocked       = newError(ErrStateConflict, "stake still locked")
	ErrWrongTier         = newError(ErrStateConflict, "operation not allowed for tier")
	ErrAlreadyPaid       = newError(ErrStateConflict, "recipient already paid")
	ErrAlreadyExists     = newError(ErrStateConflict, "category already exists")
	ErrCategoryNotActive = newError(ErrStateConflict, "category not active")
	ErrCategoryActive    = newError(ErrStateConflict, "category already active")
	ErrChangedInFlight   = newError(ErrStateConflict, "record changed while transfer was in flight")

	// Capacity errors
	ErrCategoryCapacity    = newError(ErrCapacityExceeded, "category capacity exceeded")
	ErrRecipientCapReached = newError(ErrCapacityExceeded, "category recipient cap reached")
	ErrTooManyCategories   = newError(ErrCapacityExceeded, "too many categories")
	ErrBatchTooLarge       = newError(ErrCapacityExceeded, "batch too large")

	// Funds errors
	ErrInsufficientVested           = newError(ErrInsufficientFunds, "amount exceeds releasable")
	ErrInsufficientCustodiedBalance = newError(ErrInsufficientFunds, "custodied balance cannot cover allocation")
	ErrInsufficientReserve          = newError(ErrInsufficientFunds, "reward reserve too small")
	ErrInsufficientCallerBalance    = newError(ErrInsufficientFunds, "caller balance too small")

	// No-effect errors
	ErrZeroAmount       = newError(ErrNothingToDo, "zero amount")
	ErrNothingToRelease = newError(ErrNothingToDo, "nothing to release")
	ErrNothingToClaim   = newError(ErrNothingToDo, "nothing to claim")

	// Transfer and store errors
	ErrTransferFailed  = errors.New("custody: ledger transfer failed")
	ErrStoreNotReady   = errors.New("custody: store not ready")
	ErrStoreClosed     = errors.New("custody: store is closed")
	ErrMigrationFailed = errors.New("custody: migration failed")
)

// kinds lists every error kind in the order KindOf checks them.
var kinds = []error{
	ErrInvalidParameter,
	ErrNotFound,
	ErrUnauthorized,
	ErrStateConflict,
	ErrCapacityExceeded,
	ErrInsufficientFunds,
	ErrNothingToDo,
}

// KindOf returns the kind sentinel err belongs to, or nil if it has none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("custody: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError an ErrInvalidParameter.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidParameter }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "custody: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("custody: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStateConflict returns true if the operation is not allowed in the
// current state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}

// IsCapacityError returns true if the error is related to capacity or caps.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsInsufficientFunds returns true if a balance, reserve or releasable amount
// was too small.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried unchanged. A failed transfer is retryable because its bookkeeping
// was rolled back.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreNotReady)
}
