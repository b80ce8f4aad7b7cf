package verbs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/congo-pay/bankd/internal/bank"
	"github.com/congo-pay/bankd/internal/logging"
)

// ErrUnknownVerb is returned by Dispatch for verbs with no handler.
var ErrUnknownVerb = errors.New("unknown verb")

type handlerFunc func(e *env, req Request)

type route struct {
	handle handlerFunc
	// auth is checked before the handler runs. Empty leaves the check to the
	// handler.
	auth         bank.Authority
	repRequired  bool
	memoRequired bool
}

// Dispatcher routes requests to verb handlers once a bank is attached.
type Dispatcher struct {
	bank   atomic.Pointer[bank.Bank]
	logger *slog.Logger
	routes map[string]route
}

// NewDispatcher builds a dispatcher with every verb registered and no bank;
// until SetBank is called, requests fail with "unready".
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	d := &Dispatcher{logger: logger}
	d.routes = map[string]route{
		"issuerootkey": {handle: issueRootKey, repRequired: true},

		"xfer":   {handle: xfer, auth: bank.AuthXfer},
		"mint":   {handle: mint, auth: bank.AuthMint},
		"unmint": {handle: unmint, auth: bank.AuthMint},

		"encumber":   {handle: encumber, auth: bank.AuthXfer, repRequired: true},
		"releaseenc": {handle: releaseEnc, auth: bank.AuthXfer},
		"xferenc":    {handle: xferEnc, auth: bank.AuthXfer},
		"unmintenc":  {handle: unmintEnc, auth: bank.AuthMint},
		"queryenc":   {handle: queryEnc, auth: bank.AuthXfer, repRequired: true},

		"makeaccounts":    {handle: makeAccounts, auth: bank.AuthAcct, repRequired: true, memoRequired: true},
		"deleteaccount":   {handle: deleteAccount, auth: bank.AuthAcct},
		"queryaccounts":   {handle: queryAccounts, auth: bank.AuthAcct, repRequired: true},
		"freezeaccount":   {handle: setFrozen(true), auth: bank.AuthAcct},
		"unfreezeaccount": {handle: setFrozen(false), auth: bank.AuthAcct},

		"makecurrency":    {handle: makeCurrency, auth: bank.AuthFull, memoRequired: true},
		"querycurrencies": {handle: queryCurrencies, auth: bank.AuthFull, repRequired: true},
		"makekey":         {handle: makeKey, repRequired: true, memoRequired: true},
		"cancelkey":       {handle: cancelKey},
		"dupkey":          {handle: dupKey, repRequired: true, memoRequired: true},
	}
	return d
}

// SetBank attaches the bank requests operate on.
func (d *Dispatcher) SetBank(b *bank.Bank) { d.bank.Store(b) }

// Bank returns the attached bank, or nil before SetBank.
func (d *Dispatcher) Bank() *bank.Bank { return d.bank.Load() }

// Verbs lists the registered verb names in order.
func (d *Dispatcher) Verbs() []string {
	out := make([]string, 0, len(d.routes))
	for name := range d.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch validates the envelope of req and runs its verb. Replies, if any,
// go to out before Dispatch returns. Requests missing a required rep are
// dropped without a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, out Replier) error {
	r, ok := d.routes[req.Verb]
	if !ok {
		return ErrUnknownVerb
	}
	if req.Rep == "" && r.repRequired {
		d.logger.Debug("request dropped, no reply destination", slog.String("verb", req.Verb))
		return nil
	}

	b := d.bank.Load()
	e := &env{ctx: ctx, bank: b, out: out, verb: req.Verb, xid: req.Xid, rep: req.Rep, memo: req.Memo}
	if b == nil {
		e.fail(FailUnready, "bank object not yet loaded")
		return nil
	}
	if req.Key != "" {
		e.key = b.Key(ctx, req.Key)
		if e.key == nil {
			e.fail(FailAuth, descBadAuthKey)
			return nil
		}
	}
	if req.Memo == "" && r.memoRequired {
		e.fail(FailNoMemo, "request lacked required 'memo' parameter")
		return nil
	}
	if r.auth != "" && e.operationAuthorityFailure(r.auth) {
		return nil
	}

	r.handle(e, req)
	return nil
}
