package verbs

import (
	"errors"

	"github.com/congo-pay/bankd/internal/bank"
)

// bankWriteFailure reports a failed aggregate mutation, translating the
// validation errors the bank itself enforces.
func (e *env) bankWriteFailure(err error) {
	switch {
	case errors.Is(err, bank.ErrUnauthorized):
		e.fail(FailAuth, descBadAuthKey)
	case errors.Is(err, bank.ErrExpiryExceedsAuthority):
		e.fail(FailBadExpiry, "expiration time exceeds authority")
	case errors.Is(err, bank.ErrBadCurrency):
		e.fail(FailBadCurrency, err.Error())
	case errors.Is(err, bank.ErrBadKeyAuth):
		e.fail(FailBadKeyAuth, "invalid 'auth' parameter")
	case errors.Is(err, bank.ErrCurrencyExists):
		e.fail(FailCurrExists, "currency already exists")
	case errors.Is(err, bank.ErrRootKeyIssued):
		e.fail(FailOnceOnly, "the root key for this bank has already been issued")
	default:
		e.accountWriteFailure(err, "bank")
	}
}

func issueRootKey(e *env, _ Request) {
	root, err := e.bank.IssueRootKey(e.ctx)
	if err != nil {
		e.bankWriteFailure(err)
		return
	}
	e.succeed(map[string]any{"rootkey": root.Ref()})
}

func makeCurrency(e *env, req Request) {
	if req.Curr == "" {
		e.fail(FailBadCurrency, "invalid currency")
		return
	}
	if _, err := e.bank.MakeCurrency(e.ctx, req.Curr, e.memo); err != nil {
		e.bankWriteFailure(err)
		return
	}
	e.succeed(map[string]any{"curr": req.Curr})
}

type currencyDesc struct {
	Curr string `json:"curr"`
	Memo string `json:"memo"`
}

func queryCurrencies(e *env, _ Request) {
	currs := e.bank.Currencies()
	descs := make([]currencyDesc, 0, len(currs))
	for _, c := range currs {
		descs = append(descs, currencyDesc{Curr: c.Name, Memo: c.Memo})
	}
	e.succeed(map[string]any{"currencies": descs})
}

func makeKey(e *env, req Request) {
	auth := bank.Authority(req.Auth)
	need, ok := auth.MintedBy()
	if !ok {
		e.fail(FailBadKeyAuth, "invalid 'auth' parameter")
		return
	}
	// Minting curr keys is reserved to the full authority itself.
	if need == bank.AuthFull && (e.key == nil || e.key.Auth() != bank.AuthFull) {
		e.fail(FailAuth, descBadAuthKey)
		return
	}
	if e.operationAuthorityFailure(need) ||
		e.currencyValidationFailure(req.Currs) ||
		e.currenciesAuthorityFailure(req.Currs) {
		return
	}
	expires, ok := e.validExpiration(req.Expires, true)
	if !ok {
		return
	}
	k, err := e.bank.MakeKey(e.ctx, e.key, auth, req.Currs, expires, e.memo)
	if err != nil {
		e.bankWriteFailure(err)
		return
	}
	e.succeed(map[string]any{"newkey": k.Ref()})
}

func cancelKey(e *env, req Request) {
	target := e.bank.Key(e.ctx, req.Cancel)
	if target == nil {
		e.fail(FailBadKey, "invalid key specified by 'cancel' parameter")
		return
	}
	if e.key == nil || !target.HasAncestor(e.key) {
		e.fail(FailAuth, descBadAuthKey)
		return
	}
	if err := e.bank.CancelKey(e.ctx, target); err != nil {
		e.bankWriteFailure(err)
		return
	}
	e.succeed(map[string]any{"cancel": req.Cancel})
}

func dupKey(e *env, req Request) {
	if e.key == nil {
		e.fail(FailAuth, descBadAuthKey)
		return
	}
	expires, ok := e.validExpiration(req.Expires, true)
	if !ok {
		return
	}
	k, err := e.bank.DupKey(e.ctx, e.key, expires, e.memo)
	if err != nil {
		e.bankWriteFailure(err)
		return
	}
	e.succeed(map[string]any{"newkey": k.Ref()})
}
