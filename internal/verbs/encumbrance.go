package verbs

import "github.com/congo-pay/bankd/internal/bank"

func encumber(e *env, req Request) {
	expires, ok := e.validExpiration(req.Expires, false)
	if !ok {
		return
	}
	var src *bank.Account
	var enc *bank.Encumbrance
	e.bank.WithAccount(e.ctx, req.Src, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			src = account
			if e.invalidAccountFailure(src, "src") ||
				e.currencyAuthorityFailure(src.Currency()) ||
				e.frozenAccountFailure(src, "src") ||
				e.amountValidationFailure(req.Amount) {
				return false
			}
			if src.AvailBalance() < req.Amount {
				e.fail(FailNSF, descInsufficient)
				return false
			}
			var err error
			enc, err = src.Encumber(e.bank.NewRef("enc"), req.Amount, expires, e.memo)
			if err != nil {
				e.fail(FailNSF, err.Error())
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "src") {
				return
			}
			e.succeed(map[string]any{"enc": enc.Ref(), "srcbal": src.AvailBalance()})
		},
	})
}

func releaseEnc(e *env, req Request) {
	var enc *bank.Encumbrance
	e.bank.WithEncumberedAccount(e.ctx, req.Enc, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			if e.invalidAccountFailure(account, "src") {
				return false
			}
			enc = account.Encumbrance(req.Enc)
			if e.invalidEncumbranceFailure(enc, req.Enc) {
				return false
			}
			if !enc.ExpiredAt(e.bank.Now()) {
				_ = enc.Release()
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "src") {
				return
			}
			e.succeed(map[string]any{
				"src":    enc.Account().Ref(),
				"srcbal": enc.Account().AvailBalance(),
				"active": !enc.ExpiredAt(e.bank.Now()),
			})
		},
	})
}

func xferEnc(e *env, req Request) {
	var src, dst *bank.Account
	e.bank.WithEncumbranceAndAccount(e.ctx, req.Enc, req.Dst, bank.DualUpdaterFuncs{
		OnModify: func(srcAccount, dstAccount *bank.Account) bool {
			src, dst = srcAccount, dstAccount
			if e.invalidAccountFailure(src, "src") {
				return false
			}
			enc := src.Encumbrance(req.Enc)
			if e.invalidEncumbranceFailure(enc, req.Enc) || e.invalidAccountFailure(dst, "dst") {
				return false
			}
			if src.Currency() != dst.Currency() {
				e.fail(FailCurrMismatch, descCurrMismatch)
				return false
			}
			if e.currencyAuthorityFailure(dst.Currency()) || e.frozenAccountFailure(dst, "dst") {
				return false
			}
			if src == dst {
				return enc.Release() == nil
			}
			amount, err := enc.Redeem()
			if err != nil {
				e.invalidEncumbranceFailure(nil, req.Enc)
				return false
			}
			if err := dst.Deposit(amount); err != nil {
				e.fail(FailBadAmount, descOverflow)
				return false
			}
			return true
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "xfer") {
				return
			}
			e.succeed(map[string]any{
				"src":    src.Ref(),
				"srcbal": src.AvailBalance(),
				"dst":    req.Dst,
				"dstbal": dst.AvailBalance(),
			})
		},
	})
}

func unmintEnc(e *env, req Request) {
	var src *bank.Account
	e.bank.WithEncumberedAccount(e.ctx, req.Enc, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			src = account
			if e.invalidAccountFailure(src, "src") {
				return false
			}
			enc := src.Encumbrance(req.Enc)
			if e.invalidEncumbranceFailure(enc, req.Enc) || e.currencyAuthorityFailure(src.Currency()) {
				return false
			}
			_, err := enc.Redeem()
			return err == nil
		},
		OnComplete: func(err error) {
			if e.accountWriteFailure(err, "src") {
				return
			}
			e.succeed(map[string]any{"src": src.Ref(), "srcbal": src.AvailBalance()})
		},
	})
}

// queryEnc reads through the update protocol but never writes, so it replies
// from Modify.
func queryEnc(e *env, req Request) {
	e.bank.WithEncumberedAccount(e.ctx, req.Enc, bank.UpdaterFuncs{
		OnModify: func(account *bank.Account) bool {
			if e.invalidAccountFailure(account, "src") {
				return false
			}
			enc := account.Encumbrance(req.Enc)
			if e.invalidEncumbranceFailure(enc, req.Enc) || e.currencyAuthorityFailure(account.Currency()) {
				return false
			}
			fields := map[string]any{
				"enc":     enc.Ref(),
				"curr":    account.Currency(),
				"account": account.Ref(),
				"amount":  enc.Amount(),
				"expires": enc.Expires().String(),
			}
			if enc.Memo() != "" {
				fields["memo"] = enc.Memo()
			}
			e.succeed(fields)
			return false
		},
	})
}
