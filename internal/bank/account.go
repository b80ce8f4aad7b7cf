package bank

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Account holds a balance in one currency. Total balance counts all funds;
// available balance excludes funds held by unexpired encumbrances.
type Account struct {
	ref      string
	version  int
	currency string
	owner    string
	memo     string
	frozen   bool
	total    int64
	avail    int64
	deleted  bool

	// byExpiration is ordered by expiration; equal dates keep insertion order.
	byExpiration []*Encumbrance
	byRef        map[string]*Encumbrance
}

// NewAccount builds an empty, never-written account.
func NewAccount(ref, currency, owner, memo string) *Account {
	return &Account{
		ref:      ref,
		currency: currency,
		owner:    owner,
		memo:     memo,
		byRef:    make(map[string]*Encumbrance),
	}
}

func (a *Account) Ref() string         { return a.ref }
func (a *Account) Version() int        { return a.version }
func (a *Account) Currency() string    { return a.currency }
func (a *Account) Owner() string       { return a.owner }
func (a *Account) Memo() string        { return a.memo }
func (a *Account) IsFrozen() bool      { return a.frozen }
func (a *Account) IsDeleted() bool     { return a.deleted }
func (a *Account) TotalBalance() int64 { return a.total }
func (a *Account) AvailBalance() int64 { return a.avail }

// SetFrozen blocks or unblocks the account from transactions.
func (a *Account) SetFrozen(frozen bool) { a.frozen = frozen }

// Delete retires the account. Only empty accounts may be deleted.
func (a *Account) Delete() error {
	if a.total > 0 {
		return ErrNotEmpty
	}
	a.deleted = true
	return nil
}

// Deposit adds funds. The total balance may not exceed math.MaxInt64.
func (a *Account) Deposit(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("deposit %d: %w", amount, ErrBadAmount)
	}
	if amount > math.MaxInt64-a.total {
		return fmt.Errorf("deposit %d: %w", amount, ErrBalanceOverflow)
	}
	a.total += amount
	a.avail += amount
	return nil
}

// Withdraw removes available funds.
func (a *Account) Withdraw(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("withdraw %d: %w", amount, ErrBadAmount)
	}
	if a.avail < amount {
		return ErrInsufficientFunds
	}
	a.total -= amount
	a.avail -= amount
	return nil
}

// Encumber places a new hold of amount on the account's available funds.
func (a *Account) Encumber(ref string, amount int64, expires ExpirationDate, memo string) (*Encumbrance, error) {
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	if a.avail < amount {
		return nil, ErrInsufficientFunds
	}
	enc := &Encumbrance{ref: ref, amount: amount, expires: expires, memo: memo}
	if err := a.attach(enc); err != nil {
		return nil, err
	}
	a.avail -= amount
	return enc, nil
}

// attach links enc to a and indexes it without touching balances.
func (a *Account) attach(enc *Encumbrance) error {
	if err := enc.setAccount(a); err != nil {
		return err
	}
	i := sort.Search(len(a.byExpiration), func(i int) bool {
		return a.byExpiration[i].expires.Compare(enc.expires) > 0
	})
	a.byExpiration = append(a.byExpiration, nil)
	copy(a.byExpiration[i+1:], a.byExpiration[i:])
	a.byExpiration[i] = enc
	a.byRef[enc.ref] = enc
	return nil
}

func (a *Account) detach(enc *Encumbrance) error {
	if a.byRef[enc.ref] != enc {
		return ErrNoSuchEncumbrance
	}
	delete(a.byRef, enc.ref)
	for i, e := range a.byExpiration {
		if e == enc {
			a.byExpiration = append(a.byExpiration[:i], a.byExpiration[i+1:]...)
			break
		}
	}
	return nil
}

// Encumbrance looks up a hold on this account by ref.
func (a *Account) Encumbrance(ref string) *Encumbrance {
	return a.byRef[ref]
}

// Encumbrances returns the account's holds in expiration order.
func (a *Account) Encumbrances() []*Encumbrance {
	return append([]*Encumbrance(nil), a.byExpiration...)
}

// ReleaseEncumbrance returns a hold's funds to the available balance.
func (a *Account) ReleaseEncumbrance(enc *Encumbrance) error {
	if err := a.detach(enc); err != nil {
		return err
	}
	a.avail += enc.amount
	return nil
}

// RedeemEncumbrance drops a hold and removes its funds from the total
// balance. The amount removed is returned.
func (a *Account) RedeemEncumbrance(enc *Encumbrance) (int64, error) {
	if err := a.detach(enc); err != nil {
		return 0, err
	}
	a.total -= enc.amount
	return enc.amount, nil
}

// ReleaseExpired releases every hold that had lapsed at now and reports how
// many were released.
func (a *Account) ReleaseExpired(now time.Time) int {
	n := 0
	for len(a.byExpiration) > 0 && a.byExpiration[0].ExpiredAt(now) {
		// The head is always indexed, so release cannot fail.
		_ = a.ReleaseEncumbrance(a.byExpiration[0])
		n++
	}
	return n
}
