package bank

import (
	"sort"
	"time"
)

// Authority names the family of operations a key authorizes.
type Authority string

const (
	// AuthFull is held by the root key and may do anything.
	AuthFull Authority = "full"
	// AuthCurr administers currencies and mints transactional keys.
	AuthCurr Authority = "curr"
	// AuthAcct manages account lifecycle.
	AuthAcct Authority = "acct"
	// AuthMint creates and destroys money.
	AuthMint Authority = "mint"
	// AuthXfer moves and encumbers money.
	AuthXfer Authority = "xfer"
)

// Valid reports whether a is one of the defined authorities.
func (a Authority) Valid() bool {
	switch a {
	case AuthFull, AuthCurr, AuthAcct, AuthMint, AuthXfer:
		return true
	}
	return false
}

// Administrative reports whether a is unscoped by operation family.
func (a Authority) Administrative() bool {
	return a == AuthFull || a == AuthCurr
}

// MintedBy returns the authority a key must hold to mint a key of authority a.
// The root authority cannot be minted.
func (a Authority) MintedBy() (Authority, bool) {
	switch a {
	case AuthCurr:
		return AuthFull, true
	case AuthAcct, AuthMint, AuthXfer:
		return AuthCurr, true
	}
	return "", false
}

// Key is a capability granting an authority, optionally scoped to a set of
// currencies, that expires no later than the key that created it.
type Key struct {
	ref        string
	auth       Authority
	currencies []string
	parent     *Key
	expires    ExpirationDate
	memo       string
}

func newKey(parent *Key, ref string, auth Authority, currencies []string, expires ExpirationDate, memo string) *Key {
	var currs []string
	if len(currencies) > 0 {
		currs = append([]string(nil), currencies...)
		sort.Strings(currs)
	}
	return &Key{
		ref:        ref,
		auth:       auth,
		currencies: currs,
		parent:     parent,
		expires:    expires,
		memo:       memo,
	}
}

// Ref returns the key's unique identifier.
func (k *Key) Ref() string { return k.ref }

// Auth returns the authority the key grants.
func (k *Key) Auth() Authority { return k.auth }

// Parent returns the key that minted k, or nil for the root key.
func (k *Key) Parent() *Key { return k.parent }

// Expires returns the instant after which k stops working.
func (k *Key) Expires() ExpirationDate { return k.expires }

// Memo returns the annotation given when k was minted.
func (k *Key) Memo() string { return k.memo }

// Currencies returns the sorted currency scope, or nil when k is unscoped.
func (k *Key) Currencies() []string {
	if k.currencies == nil {
		return nil
	}
	return append([]string(nil), k.currencies...)
}

// Scoped reports whether k is restricted to a set of currencies.
func (k *Key) Scoped() bool { return k.currencies != nil }

// ExpiredAt reports whether k had expired at now.
func (k *Key) ExpiredAt(now time.Time) bool { return k.expires.ExpiredAt(now) }

// AllowsOperation reports whether k grants op. Administrative keys grant
// every operation.
func (k *Key) AllowsOperation(op Authority) bool {
	if k.auth.Administrative() {
		return true
	}
	return k.auth == op
}

// AllowsCurrency reports whether k may act on the named currency.
func (k *Key) AllowsCurrency(name string) bool {
	if k.currencies == nil {
		return true
	}
	i := sort.SearchStrings(k.currencies, name)
	return i < len(k.currencies) && k.currencies[i] == name
}

// AllowsCurrencies reports whether k may act on every named currency.
func (k *Key) AllowsCurrencies(names []string) bool {
	for _, name := range names {
		if !k.AllowsCurrency(name) {
			return false
		}
	}
	return true
}

// HasAncestor reports whether other minted k, directly or transitively.
func (k *Key) HasAncestor(other *Key) bool {
	for p := k.parent; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}
