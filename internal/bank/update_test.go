package bank

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/congo-pay/bankd/internal/notification"
	"github.com/congo-pay/bankd/internal/store"
)

func seed(t *testing.T, b *Bank, currency string, balance int64) *Account {
	t.Helper()
	a, err := SeedAccount(context.Background(), b, currency, "owner", balance)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func load(t *testing.T, b *Bank, ref string) *Account {
	t.Helper()
	a, err := b.Account(context.Background(), ref)
	if err != nil {
		t.Fatalf("load %s: %v", ref, err)
	}
	return a
}

// competingDeposit returns a hook that, on the first update of ref, commits a
// deposit of amount behind the writer's back.
func competingDeposit(t *testing.T, st store.Store, collection, ref string, amount int64) store.WriteHook {
	fired := false
	return func(ctx context.Context, op store.Op, coll, target string) error {
		if fired || op != store.OpUpdate || coll != collection || target != ref {
			return nil
		}
		fired = true
		doc, err := st.Get(ctx, collection, ref)
		if err != nil {
			t.Errorf("competing get: %v", err)
			return nil
		}
		a, err := decodeAccount(doc.Data, doc.Version)
		if err != nil {
			t.Errorf("competing decode: %v", err)
			return nil
		}
		_ = a.Deposit(amount)
		a.version++
		data, _ := encodeAccount(a)
		if err := st.Update(ctx, collection, ref, doc.Version, data); err != nil {
			t.Errorf("competing update: %v", err)
		}
		return nil
	}
}

func transfer(amount int64, done *[]error) DualUpdaterFuncs {
	return DualUpdaterFuncs{
		OnModify: func(src, dst *Account) bool {
			if src == nil || dst == nil {
				*done = append(*done, errNoMatch)
				return false
			}
			if err := src.Withdraw(amount); err != nil {
				*done = append(*done, err)
				return false
			}
			_ = dst.Deposit(amount)
			return true
		},
		OnComplete: func(err error) { *done = append(*done, err) },
	}
}

func TestWithAccountWritesModification(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)

	var completed []error
	b.WithAccount(ctx, a.Ref(), UpdaterFuncs{
		OnModify:   func(acct *Account) bool { return acct.Withdraw(30) == nil },
		OnComplete: func(err error) { completed = append(completed, err) },
	})
	if len(completed) != 1 || completed[0] != nil {
		t.Fatalf("expected one successful completion, got %v", completed)
	}
	got := load(t, b, a.Ref())
	if got.TotalBalance() != 70 || got.AvailBalance() != 70 {
		t.Fatalf("expected 70/70, got %d/%d", got.TotalBalance(), got.AvailBalance())
	}
	if got.Version() != 3 {
		t.Fatalf("expected version 3, got %d", got.Version())
	}
}

func TestWithAccountRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b, _ := openTestBank(t, st)
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)
	store.SetWriteHook(st, competingDeposit(t, st, b.AccountCollection(), a.Ref(), 50))

	modifies := 0
	var completed []error
	b.WithAccount(ctx, a.Ref(), UpdaterFuncs{
		OnModify: func(acct *Account) bool {
			modifies++
			return acct.Withdraw(30) == nil
		},
		OnComplete: func(err error) { completed = append(completed, err) },
	})

	if modifies != 2 {
		t.Fatalf("expected modify to run twice, ran %d times", modifies)
	}
	if len(completed) != 1 || completed[0] != nil {
		t.Fatalf("expected one successful completion, got %v", completed)
	}
	if got := load(t, b, a.Ref()).TotalBalance(); got != 120 {
		t.Fatalf("expected both writers to land for total 120, got %d", got)
	}
}

func TestWithAccountHardFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b, _ := openTestBank(t, st)
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)
	boom := errors.New("disk full")
	store.SetWriteHook(st, func(context.Context, store.Op, string, string) error { return boom })

	modifies := 0
	var completed []error
	b.WithAccount(ctx, a.Ref(), UpdaterFuncs{
		OnModify: func(acct *Account) bool {
			modifies++
			return acct.Withdraw(30) == nil
		},
		OnComplete: func(err error) { completed = append(completed, err) },
	})
	if modifies != 1 {
		t.Fatalf("hard failures must not retry, modify ran %d times", modifies)
	}
	if len(completed) != 1 || !errors.Is(completed[0], boom) {
		t.Fatalf("expected completion with write failure, got %v", completed)
	}
	if store.IsRetryable(completed[0]) {
		t.Fatalf("hard failure must be distinguishable from a conflict")
	}
}

func TestWithAccountMissing(t *testing.T) {
	b, _ := openTestBank(t, store.NewMemory())
	var seen []*Account
	b.WithAccount(context.Background(), "acct-missing", UpdaterFuncs{
		OnModify: func(acct *Account) bool {
			seen = append(seen, acct)
			return false
		},
		OnComplete: func(err error) { t.Fatalf("complete must not run, got %v", err) },
	})
	if len(seen) != 1 || seen[0] != nil {
		t.Fatalf("expected a single nil modify, got %v", seen)
	}
}

func TestWithAccountNoWriteWhenModifyDeclines(t *testing.T) {
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 10)
	b.WithAccount(context.Background(), a.Ref(), UpdaterFuncs{
		OnModify:   func(acct *Account) bool { return acct.Withdraw(30) == nil },
		OnComplete: func(err error) { t.Fatalf("complete must not run, got %v", err) },
	})
	if got := load(t, b, a.Ref()).Version(); got != 2 {
		t.Fatalf("expected no write, version is %d", got)
	}
}

func TestExpiredEncumbranceReleasedOnLoad(t *testing.T) {
	ctx := context.Background()
	b, clock := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)

	encRef := "enc-1"
	b.WithAccount(ctx, a.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
		_, err := acct.Encumber(encRef, 30, ExpiresAt(epoch.Add(time.Minute)), "")
		return err == nil
	}})
	if got := load(t, b, a.Ref()).AvailBalance(); got != 70 {
		t.Fatalf("expected avail 70 while held, got %d", got)
	}

	clock.Advance(2 * time.Minute)
	got := load(t, b, a.Ref())
	if got.AvailBalance() != 100 || got.TotalBalance() != 100 {
		t.Fatalf("expected lapsed hold to be released, got %d/%d", got.TotalBalance(), got.AvailBalance())
	}
	if got.Encumbrance(encRef) != nil {
		t.Fatalf("expected lapsed hold to be gone")
	}
}

func TestWithEncumberedAccount(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)
	seed(t, b, "gold", 5)

	b.WithAccount(ctx, a.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
		_, err := acct.Encumber("enc-2", 30, Never, "")
		return err == nil
	}})

	var completed []error
	b.WithEncumberedAccount(ctx, "enc-2", UpdaterFuncs{
		OnModify: func(acct *Account) bool {
			if acct == nil || acct.Ref() != a.Ref() {
				t.Fatalf("expected %s to be resolved, got %v", a.Ref(), acct)
			}
			return acct.Encumbrance("enc-2").Release() == nil
		},
		OnComplete: func(err error) { completed = append(completed, err) },
	})
	if len(completed) != 1 || completed[0] != nil {
		t.Fatalf("expected successful completion, got %v", completed)
	}
	got := load(t, b, a.Ref())
	if got.AvailBalance() != 100 || got.TotalBalance() != 100 {
		t.Fatalf("expected release to restore avail, got %d/%d", got.TotalBalance(), got.AvailBalance())
	}
}

func TestWithTwoAccountsTransfers(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	src := seed(t, b, "gold", 100)
	dst := seed(t, b, "gold", 0)

	var done []error
	b.WithTwoAccounts(ctx, src.Ref(), dst.Ref(), transfer(40, &done))
	if len(done) != 1 || done[0] != nil {
		t.Fatalf("expected successful transfer, got %v", done)
	}
	if got := load(t, b, src.Ref()).TotalBalance(); got != 60 {
		t.Fatalf("expected src 60, got %d", got)
	}
	if got := load(t, b, dst.Ref()).TotalBalance(); got != 40 {
		t.Fatalf("expected dst 40, got %d", got)
	}

	// Reversed order resolves roles by ref, not by query position.
	done = nil
	b.WithTwoAccounts(ctx, dst.Ref(), src.Ref(), transfer(15, &done))
	if got := load(t, b, dst.Ref()).TotalBalance(); got != 25 {
		t.Fatalf("expected dst 25, got %d", got)
	}
}

func TestWithTwoAccountsSameAccount(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)

	var done []error
	b.WithTwoAccounts(ctx, a.Ref(), a.Ref(), DualUpdaterFuncs{
		OnModify: func(a1, a2 *Account) bool {
			if a1 != a2 {
				t.Fatalf("expected one shared account for both roles")
			}
			_ = a1.Withdraw(40)
			_ = a2.Deposit(40)
			return true
		},
		OnComplete: func(err error) { done = append(done, err) },
	})
	if len(done) != 1 || done[0] != nil {
		t.Fatalf("expected success, got %v", done)
	}
	got := load(t, b, a.Ref())
	if got.TotalBalance() != 100 || got.Version() != 3 {
		t.Fatalf("expected a single write leaving 100, got total %d version %d", got.TotalBalance(), got.Version())
	}
}

func TestWithTwoAccountsMissingAccount(t *testing.T) {
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 100)

	calls := 0
	b.WithTwoAccounts(context.Background(), a.Ref(), "acct-gone", DualUpdaterFuncs{
		OnModify: func(a1, a2 *Account) bool {
			calls++
			if a1 == nil || a1.Ref() != a.Ref() || a2 != nil {
				t.Fatalf("expected only the first role to resolve, got %v %v", a1, a2)
			}
			return false
		},
		OnComplete: func(err error) { t.Fatalf("complete must not run, got %v", err) },
	})
	if calls != 1 {
		t.Fatalf("expected a single modify, got %d", calls)
	}

	b.WithTwoAccounts(context.Background(), "acct-gone", "acct-also-gone", DualUpdaterFuncs{
		OnModify: func(a1, a2 *Account) bool {
			if a1 != nil || a2 != nil {
				t.Fatalf("expected nothing to resolve")
			}
			return false
		},
	})
}

func TestWithTwoAccountsRetriesFirstWriteConflict(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b, _ := openTestBank(t, st)
	mustCurrency(t, b, "gold")
	src := seed(t, b, "gold", 100)
	dst := seed(t, b, "gold", 0)
	store.SetWriteHook(st, competingDeposit(t, st, b.AccountCollection(), src.Ref(), 10))

	var done []error
	b.WithTwoAccounts(ctx, src.Ref(), dst.Ref(), transfer(40, &done))
	if len(done) != 1 || done[0] != nil {
		t.Fatalf("expected successful transfer, got %v", done)
	}
	if got := load(t, b, src.Ref()).TotalBalance(); got != 70 {
		t.Fatalf("expected src 70, got %d", got)
	}
	if got := load(t, b, dst.Ref()).TotalBalance(); got != 40 {
		t.Fatalf("expected dst 40, got %d", got)
	}
}

func TestWithTwoAccountsSecondWriteFailureIsEgregious(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	alerts := &notification.Recorder{}
	b, _ := openTestBank(t, st, WithNotifier(alerts))
	mustCurrency(t, b, "gold")
	src := seed(t, b, "gold", 100)
	dst := seed(t, b, "gold", 0)

	boom := errors.New("disk full")
	store.SetWriteHook(st, func(_ context.Context, op store.Op, _ string, ref string) error {
		if op == store.OpUpdate && ref == dst.Ref() {
			return boom
		}
		return nil
	})

	var done []error
	b.WithTwoAccounts(ctx, src.Ref(), dst.Ref(), transfer(40, &done))
	if len(done) != 0 {
		t.Fatalf("egregious failure must not complete the updater, got %v", done)
	}
	if got := load(t, b, src.Ref()).TotalBalance(); got != 60 {
		t.Fatalf("expected first write to stay committed at 60, got %d", got)
	}
	if got := load(t, b, dst.Ref()).TotalBalance(); got != 0 {
		t.Fatalf("expected second account untouched, got %d", got)
	}
	msgs := alerts.Messages()
	if len(msgs) != 1 || msgs[0].Kind != notification.KindBankInconsistency {
		t.Fatalf("expected one inconsistency alert, got %+v", msgs)
	}
}

func TestWithEncumbranceAndAccountRedeems(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	src := seed(t, b, "gold", 100)
	dst := seed(t, b, "gold", 0)

	b.WithAccount(ctx, src.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
		_, err := acct.Encumber("enc-3", 30, Never, "")
		return err == nil
	}})

	var done []error
	b.WithEncumbranceAndAccount(ctx, "enc-3", dst.Ref(), DualUpdaterFuncs{
		OnModify: func(a1, a2 *Account) bool {
			amount, err := a1.Encumbrance("enc-3").Redeem()
			if err != nil {
				return false
			}
			_ = a2.Deposit(amount)
			return true
		},
		OnComplete: func(err error) { done = append(done, err) },
	})
	if len(done) != 1 || done[0] != nil {
		t.Fatalf("expected success, got %v", done)
	}
	s := load(t, b, src.Ref())
	if s.TotalBalance() != 70 || s.AvailBalance() != 70 {
		t.Fatalf("expected src 70/70, got %d/%d", s.TotalBalance(), s.AvailBalance())
	}
	if got := load(t, b, dst.Ref()).TotalBalance(); got != 30 {
		t.Fatalf("expected dst 30, got %d", got)
	}
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	a := seed(t, b, "gold", 1000)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.WithAccount(ctx, a.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
				if i%2 == 0 {
					return acct.Deposit(10) == nil
				}
				return acct.Withdraw(5) == nil
			}})
		}(i)
	}
	wg.Wait()

	got := load(t, b, a.Ref())
	if got.TotalBalance() != 1000+10*10-10*5 {
		t.Fatalf("lost update: total=%d", got.TotalBalance())
	}
	if got.Version() != 2+workers {
		t.Fatalf("expected %d writes, version is %d", workers, got.Version())
	}
}

func TestTransferSequenceConservesFunds(t *testing.T) {
	ctx := context.Background()
	b, _ := openTestBank(t, store.NewMemory())
	mustCurrency(t, b, "gold")
	x := seed(t, b, "gold", 300)
	y := seed(t, b, "gold", 200)
	z := seed(t, b, "gold", 0)
	refs := []string{x.Ref(), y.Ref(), z.Ref()}

	sum := func() int64 {
		var total int64
		for _, ref := range refs {
			a := load(t, b, ref)
			if a.TotalBalance() < 0 || a.AvailBalance() < 0 {
				t.Fatalf("account %s went negative: %d/%d", ref, a.TotalBalance(), a.AvailBalance())
			}
			total += a.TotalBalance()
		}
		return total
	}

	var done []error
	b.WithTwoAccounts(ctx, x.Ref(), z.Ref(), transfer(120, &done))
	b.WithTwoAccounts(ctx, y.Ref(), x.Ref(), transfer(250, &done))
	b.WithAccount(ctx, y.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
		_, err := acct.Encumber("enc-y", 150, Never, "")
		return err == nil
	}})
	b.WithEncumbranceAndAccount(ctx, "enc-y", z.Ref(), DualUpdaterFuncs{OnModify: func(a1, a2 *Account) bool {
		amount, err := a1.Encumbrance("enc-y").Redeem()
		if err != nil {
			return false
		}
		return a2.Deposit(amount) == nil
	}})
	b.WithTwoAccounts(ctx, z.Ref(), y.Ref(), transfer(70, &done))
	b.WithAccount(ctx, z.Ref(), UpdaterFuncs{OnModify: func(acct *Account) bool {
		_, err := acct.Encumber("enc-z", 20, Never, "")
		return err == nil
	}})
	b.WithEncumberedAccount(ctx, "enc-z", UpdaterFuncs{OnModify: func(acct *Account) bool {
		return acct.Encumbrance("enc-z").Release() == nil
	}})

	if got := sum(); got != 500 {
		t.Fatalf("funds not conserved, total=%d", got)
	}
	if !errors.Is(done[1], ErrInsufficientFunds) {
		t.Fatalf("expected overdraft to be refused, got %v", done[1])
	}
}
