package verbs

import (
	"errors"

	"github.com/congo-pay/bankd/internal/bank"
)

func makeAccounts(e *env, req Request) {
	if e.currencyValidationFailure(req.Currs) || e.currenciesAuthorityFailure(req.Currs) {
		return
	}
	refs := make([]string, 0, len(req.Currs))
	for _, curr := range req.Currs {
		account, err := e.bank.MakeAccount(e.ctx, curr, req.Owner, e.memo)
		if err != nil {
			e.accountWriteFailure(err, "acct")
			return
		}
		refs = append(refs, account.Ref())
	}
	e.succeed(map[string]any{"accounts": refs})
}

func deleteAccount(e *env, req Request) {
	e.bank.WithAccount(e.ctx, req.Account, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			if e.invalidAccountFailure(account, "src") || e.currencyAuthorityFailure(account.Currency()) {
				return false
			}
			if err := account.Delete(); err != nil {
				if errors.Is(err, bank.ErrNotEmpty) {
					e.fail(FailNotEmpty, "account still contains funds")
				}
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "src") {
				return
			}
			e.succeed(map[string]any{"account": req.Account})
		},
	})
}

func setFrozen(frozen bool) handlerFunc {
	return func(e *env, req Request) {
		e.bank.WithAccount(e.ctx, req.Account, bank.UpdaterFuncs{
			OnModify: func(account *bank.Account) bool {
				if e.invalidAccountFailure(account, "src") || e.currencyAuthorityFailure(account.Currency()) {
					return false
				}
				account.SetFrozen(frozen)
				return true
			},
			OnComplete: func(err error) {
				if e.accountWriteFailure(err, "src") {
					return
				}
				e.succeed(map[string]any{"account": req.Account})
			},
		})
	}
}

type encumbranceDesc struct {
	Enc     string `json:"enc"`
	Amount  int64  `json:"amount"`
	Expires string `json:"expires"`
	Memo    string `json:"memo,omitempty"`
}

type accountDesc struct {
	Account string            `json:"account"`
	Curr    string            `json:"curr"`
	Total   int64             `json:"total"`
	Avail   int64             `json:"avail"`
	Frozen  bool              `json:"frozen"`
	Memo    string            `json:"memo"`
	Owner   string            `json:"owner"`
	Encs    []encumbranceDesc `json:"encs,omitempty"`
}

func describeAccount(a *bank.Account, withEncs bool) accountDesc {
	desc := accountDesc{
		Account: a.Ref(),
		Curr:    a.Currency(),
		Total:   a.TotalBalance(),
		Avail:   a.AvailBalance(),
		Frozen:  a.IsFrozen(),
		Memo:    a.Memo(),
		Owner:   a.Owner(),
	}
	if withEncs {
		desc.Encs = make([]encumbranceDesc, 0, len(a.Encumbrances()))
		for _, enc := range a.Encumbrances() {
			desc.Encs = append(desc.Encs, encumbranceDesc{
				Enc:     enc.Ref(),
				Amount:  enc.Amount(),
				Expires: enc.Expires().String(),
				Memo:    enc.Memo(),
			})
		}
	}
	return desc
}

// queryAccounts describes each listed account, in request order. The first
// account that cannot be described fails the whole query.
func queryAccounts(e *env, req Request) {
	if len(req.Accounts) == 0 {
		e.fail(FailNoAccounts, "account list provided was empty")
		return
	}
	descs := make([]accountDesc, len(req.Accounts))
	failed := false
	for i, ref := range req.Accounts {
		i := i
		e.bank.WithAccount(e.ctx, ref, bank.UpdaterFuncs{
			OnModify: func(account *bank.Account) bool {
				if e.invalidAccountFailure(account, "src") || e.currencyAuthorityFailure(account.Currency()) {
					failed = true
					return false
				}
				descs[i] = describeAccount(account, req.Encs)
				return false
			},
		})
		if failed {
			return
		}
	}
	e.succeed(map[string]any{"accounts": descs})
}
