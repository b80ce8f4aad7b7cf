package bank

// AccountUpdater is one unit of retryable work against a single account.
//
// Modify may run several times for one logical request when writes conflict,
// each time against a freshly loaded account, so it must only touch the
// account it is given and its own local state. It receives nil when the
// account could not be loaded and must then return false. Returning false
// ends the operation without a write and without a call to Complete; Modify
// reports its own failure in that case.
//
// Complete runs once after the write settles, with nil on success or the
// terminal store error.
type AccountUpdater interface {
	Modify(account *Account) bool
	Complete(err error)
}

// DualAccountUpdater is the two-account counterpart of AccountUpdater. When
// both roles resolve to the same account, Modify receives the same pointer
// twice. A role that could not be loaded is passed as nil, and Modify must
// then return false.
type DualAccountUpdater interface {
	Modify(account1, account2 *Account) bool
	Complete(err error)
}

// UpdaterFuncs adapts a pair of functions to AccountUpdater. A nil
// OnComplete is ignored.
type UpdaterFuncs struct {
	OnModify   func(account *Account) bool
	OnComplete func(err error)
}

func (u UpdaterFuncs) Modify(account *Account) bool { return u.OnModify(account) }

func (u UpdaterFuncs) Complete(err error) {
	if u.OnComplete != nil {
		u.OnComplete(err)
	}
}

// DualUpdaterFuncs adapts a pair of functions to DualAccountUpdater.
type DualUpdaterFuncs struct {
	OnModify   func(account1, account2 *Account) bool
	OnComplete func(err error)
}

func (u DualUpdaterFuncs) Modify(account1, account2 *Account) bool {
	return u.OnModify(account1, account2)
}

func (u DualUpdaterFuncs) Complete(err error) {
	if u.OnComplete != nil {
		u.OnComplete(err)
	}
}
