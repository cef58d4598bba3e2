package ledger

import "errors"

// Rejections returned by the engine, the provisioner and the stores.
// All of them are recoverable by the caller; wrap them with %w so that
// errors.Is keeps working after context is added.
var (
	// ErrAccountNotFound is returned when an account id or number is unknown.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("ledger: amount must be greater than zero")

	// ErrInsufficientFunds is returned when a debit would break the balance floor.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrSameAccount is returned when a transfer names one account on both sides.
	ErrSameAccount = errors.New("ledger: source and destination account are the same")

	// ErrDuplicateExternalNumber is returned when the external number is taken.
	ErrDuplicateExternalNumber = errors.New("ledger: external account number already exists")

	// ErrInvalidExternalNumber is returned for a blank external number.
	ErrInvalidExternalNumber = errors.New("ledger: external account number is required")

	// ErrOwnerNotFound is returned when the user directory has no such user.
	ErrOwnerNotFound = errors.New("ledger: owner not found")

	// ErrUserExists is returned by user directories for a taken username.
	ErrUserExists = errors.New("ledger: username already exists")

	// ErrInvalidUsername is returned by user directories for a blank username.
	ErrInvalidUsername = errors.New("ledger: username is required")
)

var businessErrors = []error{
	ErrAccountNotFound,
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrSameAccount,
	ErrDuplicateExternalNumber,
	ErrInvalidExternalNumber,
	ErrOwnerNotFound,
	ErrUserExists,
	ErrInvalidUsername,
}

// IsBusinessError reports whether err is a rejection of the request itself
// rather than an infrastructure failure.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the account or the owner does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrOwnerNotFound)
}

// Classify returns a stable label for err, used for metrics and API error codes.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSameAccount):
		return "same_account"
	case errors.Is(err, ErrDuplicateExternalNumber):
		return "duplicate_external_number"
	case errors.Is(err, ErrInvalidExternalNumber):
		return "invalid_external_number"
	case errors.Is(err, ErrOwnerNotFound):
		return "owner_not_found"
	case errors.Is(err, ErrUserExists):
		return "user_exists"
	case errors.Is(err, ErrInvalidUsername):
		return "invalid_username"
	default:
		return "internal"
	}
}
