package bank

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Type tags carried by persisted records.
const (
	TypeAccount = "bankacct"
	TypeBank    = "bank"
)

type encumbranceRecord struct {
	Ref     string         `json:"ref"`
	Amount  int64          `json:"amount"`
	Expires ExpirationDate `json:"expires"`
	Memo    string         `json:"memo,omitempty"`
}

type accountRecord struct {
	Type    string              `json:"type"`
	Ref     string              `json:"ref"`
	Version int                 `json:"version"`
	Curr    string              `json:"curr"`
	Owner   string              `json:"owner"`
	Memo    string              `json:"memo"`
	Bal     int64               `json:"bal"`
	Frozen  bool                `json:"frozen"`
	Encs    []encumbranceRecord `json:"encs"`
	Deleted bool                `json:"deleted,omitempty"`
}

type keyRecord struct {
	Ref     string         `json:"ref"`
	Parent  string         `json:"parent"`
	Auth    Authority      `json:"auth"`
	Currs   []string       `json:"currs"`
	Expires ExpirationDate `json:"expires"`
	Memo    string         `json:"memo,omitempty"`
}

// UnmarshalJSON treats a missing expires field as never.
func (r *encumbranceRecord) UnmarshalJSON(data []byte) error {
	type plain encumbranceRecord
	rec := plain{Expires: Never}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = encumbranceRecord(rec)
	return nil
}

// UnmarshalJSON treats a missing expires field as never.
func (r *keyRecord) UnmarshalJSON(data []byte) error {
	type plain keyRecord
	rec := plain{Expires: Never}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = keyRecord(rec)
	return nil
}

type bankRecord struct {
	Type       string      `json:"type"`
	Ref        string      `json:"ref"`
	RootKey    string      `json:"rootkey"`
	RootIssued bool        `json:"rootissued"`
	Keys       []keyRecord `json:"keys"`
	Currencies []Currency  `json:"currencies"`
	Collection string      `json:"collection,omitempty"`
}

// encodeAccount renders the account with its encumbrances inline.
func encodeAccount(a *Account) ([]byte, error) {
	rec := accountRecord{
		Type:    TypeAccount,
		Ref:     a.ref,
		Version: a.version,
		Curr:    a.currency,
		Owner:   a.owner,
		Memo:    a.memo,
		Bal:     a.total,
		Frozen:  a.frozen,
		Encs:    make([]encumbranceRecord, 0, len(a.byExpiration)),
		Deleted: a.deleted,
	}
	for _, enc := range a.byExpiration {
		rec.Encs = append(rec.Encs, encumbranceRecord{Ref: enc.ref, Amount: enc.amount, Expires: enc.expires, Memo: enc.memo})
	}
	return json.Marshal(rec)
}

// decodeAccount rebuilds an account from its stored form. The store's version
// is authoritative over the one embedded in the document.
func decodeAccount(data []byte, version int) (*Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.Type != TypeAccount {
		return nil, fmt.Errorf("%w: type %q is not an account", ErrMalformedRecord, rec.Type)
	}
	a := NewAccount(rec.Ref, rec.Curr, rec.Owner, rec.Memo)
	a.version = version
	a.total = rec.Bal
	a.avail = rec.Bal
	a.frozen = rec.Frozen
	a.deleted = rec.Deleted
	for _, er := range rec.Encs {
		enc := &Encumbrance{ref: er.Ref, amount: er.Amount, expires: er.Expires, memo: er.Memo}
		if err := a.attach(enc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		a.avail -= er.Amount
	}
	return a, nil
}

func encodeKey(k *Key) keyRecord {
	rec := keyRecord{Ref: k.ref, Auth: k.auth, Currs: k.currencies, Expires: k.expires, Memo: k.memo}
	if k.parent != nil {
		rec.Parent = k.parent.ref
	}
	return rec
}

// rootKey rebuilds the bank's root key, which is never stored in the key
// table.
func rootKey(ref string) *Key {
	return newKey(nil, ref, AuthFull, nil, Never, "root key")
}

// decodeKeys links key records into a tree hanging off root. Records may name
// parents that appear later in the slice.
func decodeKeys(root *Key, recs []keyRecord) (map[string]*Key, error) {
	keys := map[string]*Key{root.ref: root}
	for _, rec := range recs {
		if rec.Ref == root.ref {
			continue
		}
		keys[rec.Ref] = newKey(nil, rec.Ref, rec.Auth, rec.Currs, rec.Expires, rec.Memo)
	}
	for _, rec := range recs {
		if rec.Ref == root.ref {
			continue
		}
		parent, ok := keys[rec.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: key %s claims non-existent parent key %s", ErrMalformedRecord, rec.Ref, rec.Parent)
		}
		keys[rec.Ref].parent = parent
	}
	for ref, k := range keys {
		steps := 0
		for p := k; p != root; p = p.parent {
			if p == nil || steps > len(keys) {
				return nil, fmt.Errorf("%w: key %s does not descend from the root key", ErrMalformedRecord, ref)
			}
			steps++
		}
	}
	return keys, nil
}

func sortedKeyRecords(keys map[string]*Key, rootRef string) []keyRecord {
	out := make([]keyRecord, 0, len(keys))
	for ref, k := range keys {
		if ref == rootRef {
			continue
		}
		out = append(out, encodeKey(k))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

func sortedCurrencies(currs map[string]Currency) []Currency {
	out := make([]Currency, 0, len(currs))
	for _, c := range currs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
