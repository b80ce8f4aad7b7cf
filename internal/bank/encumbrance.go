package bank

import "time"

// Encumbrance reserves part of one account's funds until it is released,
// redeemed or expires.
type Encumbrance struct {
	ref     string
	account *Account
	amount  int64
	expires ExpirationDate
	memo    string
}

// Ref returns the encumbrance's unique identifier.
func (e *Encumbrance) Ref() string { return e.ref }

// Account returns the account whose funds are held.
func (e *Encumbrance) Account() *Account { return e.account }

// Amount returns the quantity of funds held.
func (e *Encumbrance) Amount() int64 { return e.amount }

// Expires returns when the hold lapses on its own.
func (e *Encumbrance) Expires() ExpirationDate { return e.expires }

// Memo returns the annotation given when the hold was placed.
func (e *Encumbrance) Memo() string { return e.memo }

// ExpiredAt reports whether the hold had lapsed at now.
func (e *Encumbrance) ExpiredAt(now time.Time) bool { return e.expires.ExpiredAt(now) }

// Release returns the held amount to the account's available balance.
func (e *Encumbrance) Release() error {
	return e.account.ReleaseEncumbrance(e)
}

// Redeem removes the held amount from the account's total balance and
// returns it.
func (e *Encumbrance) Redeem() (int64, error) {
	return e.account.RedeemEncumbrance(e)
}

func (e *Encumbrance) setAccount(a *Account) error {
	if e.account != nil {
		return ErrAccountAlreadySet
	}
	e.account = a
	return nil
}
