package verbs

import (
	"context"
	"fmt"

	"github.com/congo-pay/bankd/internal/bank"
)

// Failure codes carried in Reply.Fail. Account-specific failures are built
// from a role tag, e.g. "badsrc", "dstfrozen", "xferunwritable".
const (
	FailAuth         = "autherr"
	FailUnready      = "unready"
	FailNoMemo       = "nomemo"
	FailBadAmount    = "badamount"
	FailBadCurrency  = "badcurr"
	FailBadExpiry    = "badexpiry"
	FailBadEnc       = "badenc"
	FailBadKey       = "badkey"
	FailBadKeyAuth   = "badkeyauth"
	FailCurrMismatch = "curmismatch"
	FailNSF          = "nsf"
	FailNotEmpty     = "notempty"
	FailOnceOnly     = "onceonly"
	FailCurrExists   = "currexists"
	FailNoAccounts   = "noaccounts"
)

const (
	suffixFrozen     = "frozen"
	suffixUnwritable = "unwritable"
	prefixBadAccount = "bad"
	descBadAuthKey   = "bad authorization key"
	descInsufficient = "insufficient funds in source account"
	descCurrMismatch = "source and destination currencies differ"
	descOverflow     = "destination balance would overflow"
)

// env carries one request's context through its handler and updater.
type env struct {
	ctx  context.Context
	bank *bank.Bank
	out  Replier

	verb string
	key  *bank.Key
	xid  string
	rep  string
	memo string
}

func (e *env) begin() Reply {
	return Reply{To: e.rep, Verb: e.verb, Xid: e.xid}
}

// fail sends a failure reply when the requester named somewhere to send it.
func (e *env) fail(code, desc string) {
	if e.rep == "" {
		return
	}
	r := e.begin()
	r.Fail = code
	r.Desc = desc
	e.out.Send(e.ctx, r)
}

// succeed sends a success reply.
func (e *env) succeed(fields map[string]any) {
	r := e.begin()
	r.Fields = fields
	e.out.Send(e.ctx, r)
}

func (e *env) operationAuthorityFailure(op bank.Authority) bool {
	if e.key == nil || !e.key.AllowsOperation(op) {
		e.fail(FailAuth, descBadAuthKey)
		return true
	}
	return false
}

func (e *env) currencyAuthorityFailure(currency string) bool {
	if e.key == nil || !e.key.AllowsCurrency(currency) {
		e.fail(FailAuth, descBadAuthKey)
		return true
	}
	return false
}

func (e *env) currenciesAuthorityFailure(currencies []string) bool {
	for _, c := range currencies {
		if e.currencyAuthorityFailure(c) {
			return true
		}
	}
	return false
}

func (e *env) currencyValidationFailure(currencies []string) bool {
	if len(currencies) == 0 {
		e.fail(FailBadCurrency, "invalid currency list")
		return true
	}
	for _, c := range currencies {
		if _, ok := e.bank.Currency(c); !ok {
			e.fail(FailBadCurrency, "invalid currency "+c)
			return true
		}
	}
	return false
}

func (e *env) amountValidationFailure(amount int64) bool {
	if amount <= 0 {
		e.fail(FailBadAmount, "invalid 'amount' parameter")
		return true
	}
	return false
}

// invalidAccountFailure rejects accounts that could not be loaded or that
// have been deleted.
func (e *env) invalidAccountFailure(a *bank.Account, tag string) bool {
	if a == nil || a.IsDeleted() {
		e.fail(prefixBadAccount+tag, "invalid "+tag+" account id")
		return true
	}
	return false
}

func (e *env) frozenAccountFailure(a *bank.Account, tag string) bool {
	if a.IsFrozen() {
		e.fail(tag+suffixFrozen, tag+" account is frozen")
		return true
	}
	return false
}

func (e *env) invalidEncumbranceFailure(enc *bank.Encumbrance, ref string) bool {
	if enc == nil {
		e.fail(FailBadEnc, "invalid encumbrance id "+ref)
		return true
	}
	return false
}

func (e *env) accountWriteFailure(err error, tag string) bool {
	if err != nil {
		e.fail(tag+suffixUnwritable, fmt.Sprintf("%s account write failed: %v", tag, err))
		return true
	}
	return false
}

// validExpiration parses s. With limitToKey, an empty s inherits the key's
// expiration and the result may not outlive the key.
func (e *env) validExpiration(s string, limitToKey bool) (bank.ExpirationDate, bool) {
	var expires bank.ExpirationDate
	if s == "" && limitToKey {
		expires = e.key.Expires()
	} else {
		parsed, err := bank.ParseExpiration(s)
		if err != nil {
			e.fail(FailBadExpiry, "invalid 'expires' parameter: "+err.Error())
			return bank.ExpirationDate{}, false
		}
		expires = parsed
	}
	if limitToKey && e.key.Expires().Compare(expires) < 0 {
		e.fail(FailBadExpiry, "expiration time exceeds authority")
		return bank.ExpirationDate{}, false
	}
	if expires.ExpiredAt(e.bank.Now()) {
		e.fail(FailBadExpiry, "expiration time in the past")
		return bank.ExpirationDate{}, false
	}
	return expires, true
}
