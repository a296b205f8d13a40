package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrSenderNotFound      = errors.New("sender not found")
	ErrReceiverNotFound    = errors.New("receiver not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrInvalidAmount     = errors.New("amount must be greater than zero with at most two decimal places")
	ErrSelfTransfer      = errors.New("cannot transfer to same account")
	ErrAlreadyReversed   = errors.New("transaction already reversed")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDuplicateTransfer = errors.New("duplicate transfer")
	ErrAccountExists     = errors.New("account already exists")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrReversalWouldOverdraw = errors.New("reversal would overdraw receiver balance")

	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrStoreUnavailable = errors.New("store unavailable")
)

// Kind groups errors into the classes callers must tell apart.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindInsufficientFunds
	KindUnauthorized
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindUnavailable, []error{ErrStoreUnavailable}},
	{KindNotFound, []error{ErrNotFound, ErrSenderNotFound, ErrReceiverNotFound, ErrAccountNotFound, ErrTransactionNotFound}},
	{KindInsufficientFunds, []error{ErrInsufficientFunds, ErrReversalWouldOverdraw}},
	{KindValidation, []error{ErrInvalidAmount, ErrSelfTransfer, ErrAlreadyReversed, ErrInvalidRequest, ErrDuplicateTransfer, ErrAccountExists}},
	{KindUnauthorized, []error{ErrInvalidCredentials}},
}

// KindOf returns the class of err, or KindUnknown when err carries none of
// the domain sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindUnknown
}
