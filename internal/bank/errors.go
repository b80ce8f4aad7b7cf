package bank

import "errors"

var (
	// ErrInsufficientFunds occurs when an account's available balance cannot
	// cover a withdrawal or encumbrance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrBadAmount rejects zero or negative amounts.
	ErrBadAmount = errors.New("amount must be positive")

	// ErrBalanceOverflow rejects deposits that would push a balance past
	// the largest representable amount.
	ErrBalanceOverflow = errors.New("balance would overflow")

	// ErrNotEmpty prevents deleting an account that still holds funds.
	ErrNotEmpty = errors.New("account still contains funds")

	// ErrNoSuchEncumbrance is returned when releasing or redeeming an
	// encumbrance the account does not hold.
	ErrNoSuchEncumbrance = errors.New("encumbrance not on account")

	// ErrAccountAlreadySet guards the one-time encumbrance ownership link.
	ErrAccountAlreadySet = errors.New("encumbrance already belongs to an account")

	// ErrBadCurrency names a currency the bank does not define.
	ErrBadCurrency = errors.New("invalid currency")

	// ErrCurrencyExists rejects redefining a currency.
	ErrCurrencyExists = errors.New("currency already exists")

	// ErrBadKeyAuth names an authority that cannot be minted.
	ErrBadKeyAuth = errors.New("invalid key authority")

	// ErrUnauthorized covers every case where the minting key lacks the
	// authority, currency scope, or lifetime the new key would need.
	ErrUnauthorized = errors.New("bad authorization key")

	// ErrExpiryExceedsAuthority rejects keys outliving their parent.
	ErrExpiryExceedsAuthority = errors.New("expiration time exceeds authority")

	// ErrRootKeyIssued is returned on every root key request after the first.
	ErrRootKeyIssued = errors.New("the root key for this bank has already been issued")

	// ErrMalformedRecord marks stored data that cannot be decoded.
	ErrMalformedRecord = errors.New("malformed bank record")
)
