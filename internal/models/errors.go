package models

import "errors"

// Error kinds returned by the core. Wrap them with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateEscrow   = errors.New("escrow already exists")
	ErrEscrowNotFound    = errors.New("escrow not found")
	ErrAlreadyResolved   = errors.New("already resolved")
	ErrTaskUnavailable   = errors.New("task unavailable")
	ErrForbidden         = errors.New("forbidden")
	ErrSelfPurchase      = errors.New("cannot purchase own item")
	ErrAlreadyPurchased  = errors.New("item already purchased")
	ErrNotFound          = errors.New("not found")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrDuplicateEscrow, "DuplicateEscrow"},
	{ErrEscrowNotFound, "EscrowNotFound"},
	{ErrAlreadyResolved, "AlreadyResolved"},
	{ErrTaskUnavailable, "TaskUnavailable"},
	{ErrForbidden, "Forbidden"},
	{ErrSelfPurchase, "SelfPurchase"},
	{ErrAlreadyPurchased, "AlreadyPurchased"},
	{ErrNotFound, "NotFound"},
}

// ErrorKind names the kind of err. Anything unrecognised is an InternalError.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "InternalError"
}
