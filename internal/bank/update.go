package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/bankd/internal/notification"
	"github.com/congo-pay/bankd/internal/store"
)

var errNoMatch = errors.New("no matching account")

type accountLoader func(ctx context.Context) (*Account, error)

type accountPairLoader func(ctx context.Context) (*Account, *Account, error)

// WithAccount loads the account stored under ref and applies u to it, writing
// the result back under optimistic version control. A stale write causes the
// load and Modify to be repeated until the write lands or fails for good.
func (b *Bank) WithAccount(ctx context.Context, ref string, u AccountUpdater) {
	b.runAccountUpdate(ctx, ref, func(ctx context.Context) (*Account, error) {
		doc, err := b.store.Get(ctx, b.collection, ref)
		if err != nil {
			return nil, err
		}
		return decodeAccount(doc.Data, doc.Version)
	}, u)
}

// WithEncumberedAccount applies u to the account holding the encumbrance
// encRef.
func (b *Bank) WithEncumberedAccount(ctx context.Context, encRef string, u AccountUpdater) {
	q := store.Where(store.Eq("type", TypeAccount), store.ElemMatch("encs", "ref", encRef))
	b.runAccountUpdate(ctx, encRef, func(ctx context.Context) (*Account, error) {
		docs, err := b.store.Query(ctx, b.collection, q, 1)
		if err != nil {
			return nil, err
		}
		if len(docs) != 1 {
			return nil, errNoMatch
		}
		return decodeAccount(docs[0].Data, docs[0].Version)
	}, u)
}

func (b *Bank) runAccountUpdate(ctx context.Context, target string, load accountLoader, u AccountUpdater) {
	for {
		account, err := load(ctx)
		if err != nil {
			b.logFetchFailure(target, err)
			u.Modify(nil)
			return
		}
		account.ReleaseExpired(b.clock())
		if !u.Modify(account) {
			return
		}

		err = b.checkpointAccount(ctx, account)
		switch {
		case err == nil:
			u.Complete(nil)
			return
		case store.IsRetryable(err):
			b.logger.Debug("transaction retry", slog.String("account", account.Ref()), slog.Any("error", err))
		default:
			b.logger.Error("transaction aborted", slog.String("account", account.Ref()), slog.Any("error", err))
			u.Complete(err)
			return
		}
	}
}

// WithTwoAccounts loads both accounts with one query and applies u to them.
// The accounts are written one after the other, ref1 first.
func (b *Bank) WithTwoAccounts(ctx context.Context, ref1, ref2 string, u DualAccountUpdater) {
	q := store.Or(
		store.Where(store.Eq("type", TypeAccount), store.Eq("ref", ref1)),
		store.Where(store.Eq("type", TypeAccount), store.Eq("ref", ref2)),
	)
	b.runDualUpdate(ctx, ref1+"+"+ref2, b.pairLoader(q, func(a *Account) bool { return a.Ref() == ref1 }, ref2), u)
}

// WithEncumbranceAndAccount applies u to the account holding encRef, as the
// first account, and the account stored under ref2.
func (b *Bank) WithEncumbranceAndAccount(ctx context.Context, encRef, ref2 string, u DualAccountUpdater) {
	q := store.Or(
		store.Where(store.Eq("type", TypeAccount), store.ElemMatch("encs", "ref", encRef)),
		store.Where(store.Eq("type", TypeAccount), store.Eq("ref", ref2)),
	)
	b.runDualUpdate(ctx, encRef+"+"+ref2, b.pairLoader(q, func(a *Account) bool { return a.Encumbrance(encRef) != nil }, ref2), u)
}

// pairLoader resolves query results back to their requested roles. Results
// arrive in no particular order, and one account may fill both roles. When a
// role cannot be filled the error is accompanied by whichever account was
// found.
func (b *Bank) pairLoader(q store.Query, isFirst func(*Account) bool, ref2 string) accountPairLoader {
	return func(ctx context.Context) (*Account, *Account, error) {
		docs, err := b.store.Query(ctx, b.collection, q, 2)
		if err != nil {
			return nil, nil, err
		}
		var first, second *Account
		for _, doc := range docs {
			a, err := decodeAccount(doc.Data, doc.Version)
			if err != nil {
				return nil, nil, err
			}
			if first == nil && isFirst(a) {
				first = a
			}
			if second == nil && a.Ref() == ref2 {
				second = a
			}
		}
		if first == nil || second == nil {
			return first, second, fmt.Errorf("%w: %d results", errNoMatch, len(docs))
		}
		if first.Ref() == second.Ref() {
			second = first
		}
		return first, second, nil
	}
}

func (b *Bank) runDualUpdate(ctx context.Context, target string, load accountPairLoader, u DualAccountUpdater) {
	for {
		account1, account2, err := load(ctx)
		if err != nil {
			b.logFetchFailure(target, err)
			u.Modify(account1, account2)
			return
		}
		now := b.clock()
		account1.ReleaseExpired(now)
		if account2 != account1 {
			account2.ReleaseExpired(now)
		}
		if !u.Modify(account1, account2) {
			return
		}

		err = b.checkpointAccount(ctx, account1)
		switch {
		case err == nil:
		case store.IsRetryable(err):
			b.logger.Debug("transaction retry", slog.String("account", account1.Ref()), slog.Any("error", err))
			continue
		default:
			b.logger.Error("transaction aborted", slog.String("account", account1.Ref()), slog.Any("error", err))
			u.Complete(err)
			return
		}

		if account2 == account1 {
			u.Complete(nil)
			return
		}
		if err := b.checkpointAccount(ctx, account2); err != nil {
			b.reportInconsistency(ctx, account1, account2, err)
			return
		}
		u.Complete(nil)
		return
	}
}

// reportInconsistency records a second write that failed after the first
// committed. Nothing is retried or rolled back, and the updater is never
// completed.
func (b *Bank) reportInconsistency(ctx context.Context, written, failed *Account, err error) {
	b.logger.Error("egregious failure: second account write failed after first committed",
		slog.String("written", written.Ref()),
		slog.String("failed", failed.Ref()),
		slog.Bool("conflict", store.IsRetryable(err)),
		slog.Any("error", err),
	)
	if b.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        notification.KindBankInconsistency,
		Destination: b.ref,
		Body:        fmt.Sprintf("%s written, %s failed: %v", written.Ref(), failed.Ref(), err),
	}
	if nerr := b.notifier.Send(ctx, msg); nerr != nil {
		b.logger.Error("inconsistency notification failed", slog.Any("error", nerr))
	}
}

func (b *Bank) logFetchFailure(target string, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, errNoMatch) {
		b.logger.Debug("account lookup missed", slog.String("target", target), slog.Any("error", err))
		return
	}
	b.logger.Error("account lookup failed", slog.String("target", target), slog.Any("error", err))
}

// checkpointAccount writes a, creating it when it has never been written. The
// local version advances only when the write lands.
func (b *Bank) checkpointAccount(ctx context.Context, a *Account) error {
	if a.version == 0 {
		a.version = 1
		data, err := encodeAccount(a)
		if err == nil {
			err = b.store.Create(ctx, b.collection, a.ref, data)
		}
		if err != nil {
			a.version = 0
			return fmt.Errorf("create account %s: %w", a.ref, err)
		}
		return nil
	}

	expected := a.version
	a.version++
	data, err := encodeAccount(a)
	if err == nil {
		err = b.store.Update(ctx, b.collection, a.ref, expected, data)
	}
	if err != nil {
		a.version = expected
		return fmt.Errorf("update account %s: %w", a.ref, err)
	}
	return nil
}

// Account loads a read-only snapshot of the account stored under ref, with
// expired encumbrances already released.
func (b *Bank) Account(ctx context.Context, ref string) (*Account, error) {
	doc, err := b.store.Get(ctx, b.collection, ref)
	if err != nil {
		return nil, err
	}
	a, err := decodeAccount(doc.Data, doc.Version)
	if err != nil {
		return nil, err
	}
	a.ReleaseExpired(b.clock())
	return a, nil
}
