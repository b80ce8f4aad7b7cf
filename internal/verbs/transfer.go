package verbs

import "github.com/congo-pay/bankd/internal/bank"

func xfer(e *env, req Request) {
	var src, dst *bank.Account
	e.bank.WithTwoAccounts(e.ctx, req.Src, req.Dst, bank.DualUpdaterFuncs{
		OnModify: func(srcAccount, dstAccount *bank.Account) bool {
			src, dst = srcAccount, dstAccount
			if e.invalidAccountFailure(src, "src") || e.invalidAccountFailure(dst, "dst") {
				return false
			}
			if src.Currency() != dst.Currency() {
				e.fail(FailCurrMismatch, descCurrMismatch)
				return false
			}
			if e.currencyAuthorityFailure(src.Currency()) ||
				e.frozenAccountFailure(src, "src") ||
				e.frozenAccountFailure(dst, "dst") ||
				e.amountValidationFailure(req.Amount) {
				return false
			}
			if src.AvailBalance() < req.Amount {
				e.fail(FailNSF, descInsufficient)
				return false
			}
			if src == dst {
				return true
			}
			if err := dst.Deposit(req.Amount); err != nil {
				e.fail(FailBadAmount, descOverflow)
				return false
			}
			if err := src.Withdraw(req.Amount); err != nil {
				e.fail(FailNSF, err.Error())
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "xfer") {
				return
			}
			e.succeed(map[string]any{
				"src":    req.Src,
				"srcbal": src.AvailBalance(),
				"dst":    req.Dst,
				"dstbal": dst.AvailBalance(),
			})
		},
	})
}

func mint(e *env, req Request) {
	if e.amountValidationFailure(req.Amount) {
		return
	}
	var dst *bank.Account
	e.bank.WithAccount(e.ctx, req.Dst, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			dst = account
			if e.invalidAccountFailure(dst, "dst") ||
				e.currencyAuthorityFailure(dst.Currency()) ||
				e.frozenAccountFailure(dst, "dst") {
				return false
			}
			if err := dst.Deposit(req.Amount); err != nil {
				e.fail(FailBadAmount, descOverflow)
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "dst") {
				return
			}
			e.succeed(map[string]any{"dst": req.Dst, "dstbal": dst.AvailBalance()})
		},
	})
}

func unmint(e *env, req Request) {
	var src *bank.Account
	e.bank.WithAccount(e.ctx, req.Src, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			src = account
			if e.invalidAccountFailure(src, "src") ||
				e.currencyAuthorityFailure(src.Currency()) ||
				e.amountValidationFailure(req.Amount) {
				return false
			}
			if err := src.Withdraw(req.Amount); err != nil {
				e.fail(FailNSF, descInsufficient)
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "src") {
				return
			}
			e.succeed(map[string]any{"src": req.Src, "srcbal": src.AvailBalance()})
		},
	})
}
