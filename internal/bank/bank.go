package bank

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/bankd/internal/logging"
	"github.com/congo-pay/bankd/internal/notification"
	"github.com/congo-pay/bankd/internal/store"
)

// DefaultAccountCollection holds accounts when neither the bank record nor
// the caller names a collection.
const DefaultAccountCollection = "accounts"

// Bank is the aggregate owning every currency and key, and the protocols that
// update accounts. Currencies and keys are few and change rarely, so they are
// checkpointed together as one record; accounts are separate records.
//
// All aggregate mutation goes through mu, which makes the bank the single
// writer of its own record.
type Bank struct {
	store    store.Store
	logger   *slog.Logger
	clock    func() time.Time
	notifier notification.Notifier
	newRef   func(prefix string) string

	mu         sync.Mutex
	ref        string
	rootKeyRef string
	rootIssued bool
	collection string
	version    int
	currencies map[string]Currency
	keys       map[string]*Key
}

// Option customizes a Bank at Open.
type Option func(*Bank)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) { b.logger = logger }
}

// WithClock replaces time.Now for expiration checks.
func WithClock(clock func() time.Time) Option {
	return func(b *Bank) { b.clock = clock }
}

// WithNotifier routes dual-write inconsistency alerts to n.
func WithNotifier(n notification.Notifier) Option {
	return func(b *Bank) { b.notifier = n }
}

// WithRefGenerator replaces the random ref generator.
func WithRefGenerator(gen func(prefix string) string) Option {
	return func(b *Bank) { b.newRef = gen }
}

// WithAccountCollection names the collection accounts are stored in when the
// bank record does not already name one.
func WithAccountCollection(name string) Option {
	return func(b *Bank) { b.collection = name }
}

// GenerateRef returns prefix plus an unguessable hex token.
func GenerateRef(prefix string) string {
	id := uuid.New()
	return prefix + "-" + hex.EncodeToString(id[:8])
}

// Open loads the bank record stored under ref, creating and persisting a new
// bank with an unissued root key if there is none.
func Open(ctx context.Context, st store.Store, ref string, opts ...Option) (*Bank, error) {
	b := &Bank{
		store:      st,
		logger:     logging.Discard(),
		clock:      time.Now,
		newRef:     GenerateRef,
		ref:        ref,
		currencies: make(map[string]Currency),
	}
	for _, opt := range opts {
		opt(b)
	}

	doc, err := st.Get(ctx, store.DefaultCollection, ref)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.logger.Info("creating new bank", slog.String("bank", ref))
	case err != nil:
		return nil, fmt.Errorf("load bank %s: %w", ref, err)
	default:
		if err := b.decode(doc); err != nil {
			return nil, fmt.Errorf("load bank %s: %w", ref, err)
		}
	}

	if b.collection == "" {
		b.collection = DefaultAccountCollection
	}
	if b.rootKeyRef == "" {
		b.rootKeyRef = b.newRef("key")
		b.rootIssued = false
		b.keys = map[string]*Key{b.rootKeyRef: rootKey(b.rootKeyRef)}
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.checkpointLocked(ctx); err != nil {
			return nil, fmt.Errorf("checkpoint bank %s: %w", ref, err)
		}
	}
	return b, nil
}

func (b *Bank) decode(doc store.Document) error {
	var rec bankRecord
	if err := json.Unmarshal(doc.Data, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if rec.Type != TypeBank {
		return fmt.Errorf("%w: alleged bank object is %q", ErrMalformedRecord, rec.Type)
	}
	b.version = doc.Version
	for _, c := range rec.Currencies {
		b.currencies[c.Name] = c
	}
	if rec.Collection != "" {
		b.collection = rec.Collection
	}
	if rec.RootKey == "" {
		return nil
	}
	keys, err := decodeKeys(rootKey(rec.RootKey), rec.Keys)
	if err != nil {
		return err
	}
	b.rootKeyRef = rec.RootKey
	b.rootIssued = rec.RootIssued
	b.keys = keys
	return nil
}

// checkpointLocked writes the bank record. The caller holds mu.
func (b *Bank) checkpointLocked(ctx context.Context) error {
	rec := bankRecord{
		Type:       TypeBank,
		Ref:        b.ref,
		RootKey:    b.rootKeyRef,
		RootIssued: b.rootIssued,
		Keys:       sortedKeyRecords(b.keys, b.rootKeyRef),
		Currencies: sortedCurrencies(b.currencies),
		Collection: b.collection,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if b.version == 0 {
		if err := b.store.Create(ctx, store.DefaultCollection, b.ref, data); err != nil {
			return err
		}
		b.version = 1
		return nil
	}
	if err := b.store.Update(ctx, store.DefaultCollection, b.ref, b.version, data); err != nil {
		return err
	}
	b.version++
	return nil
}

// Ref returns the bank's own record ref.
func (b *Bank) Ref() string { return b.ref }

// AccountCollection names the collection holding this bank's accounts.
func (b *Bank) AccountCollection() string { return b.collection }

// Now returns the bank's notion of the current time.
func (b *Bank) Now() time.Time { return b.clock() }

// NewRef generates a fresh ref with the given prefix.
func (b *Bank) NewRef(prefix string) string { return b.newRef(prefix) }

// Currency looks up a currency by name.
func (b *Bank) Currency(name string) (Currency, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.currencies[name]
	return c, ok
}

// Currencies lists every currency, ordered by name.
func (b *Bank) Currencies() []Currency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedCurrencies(b.currencies)
}

// MakeCurrency defines a new currency and checkpoints the bank.
func (b *Bank) MakeCurrency(ctx context.Context, name, memo string) (Currency, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		return Currency{}, ErrBadCurrency
	}
	if _, exists := b.currencies[name]; exists {
		return Currency{}, ErrCurrencyExists
	}
	c := Currency{Name: name, Memo: memo}
	b.currencies[name] = c
	if err := b.checkpointLocked(ctx); err != nil {
		delete(b.currencies, name)
		return Currency{}, fmt.Errorf("checkpoint bank: %w", err)
	}
	return c, nil
}

// Key resolves a key ref. Expired keys are cancelled on sight, together with
// their descendants, and reported as absent.
func (b *Bank) Key(ctx context.Context, ref string) *Key {
	if ref == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	k, ok := b.keys[ref]
	if !ok {
		return nil
	}
	if k.ExpiredAt(b.clock()) {
		if err := b.cancelLocked(ctx, k); err != nil {
			b.logger.Error("cancel expired key failed", slog.String("key", ref), slog.Any("error", err))
		}
		return nil
	}
	return k
}

// KeyCount reports how many keys, including the root, the bank holds.
func (b *Bank) KeyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

// IssueRootKey hands out the root key exactly once over the bank's lifetime.
func (b *Bank) IssueRootKey(ctx context.Context) (*Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rootIssued {
		return nil, ErrRootKeyIssued
	}
	b.rootIssued = true
	if err := b.checkpointLocked(ctx); err != nil {
		b.rootIssued = false
		return nil, fmt.Errorf("checkpoint bank: %w", err)
	}
	b.logger.Warn("root key issued", slog.String("bank", b.ref))
	if b.notifier != nil {
		msg := notification.Message{Kind: notification.KindRootKeyIssued, Destination: b.ref, Body: "root key issued"}
		if err := b.notifier.Send(ctx, msg); err != nil {
			b.logger.Error("root key notification failed", slog.Any("error", err))
		}
	}
	return b.keys[b.rootKeyRef], nil
}

// MakeKey mints a child of parent. A curr key may only be minted by a full
// key; acct, mint and xfer keys by an administrative key. The new key's scope
// must lie within the parent's and it may not outlive the parent.
func (b *Bank) MakeKey(ctx context.Context, parent *Key, auth Authority, currencies []string, expires ExpirationDate, memo string) (*Key, error) {
	need, ok := auth.MintedBy()
	if !ok {
		return nil, ErrBadKeyAuth
	}
	if need == AuthFull && parent.Auth() != AuthFull {
		return nil, ErrUnauthorized
	}
	if !parent.AllowsOperation(need) {
		return nil, ErrUnauthorized
	}
	return b.mintKey(ctx, parent, auth, currencies, expires, memo)
}

// DupKey mints a child of k carrying k's own authority and scope.
func (b *Bank) DupKey(ctx context.Context, k *Key, expires ExpirationDate, memo string) (*Key, error) {
	return b.mintKey(ctx, k, k.Auth(), k.Currencies(), expires, memo)
}

func (b *Bank) mintKey(ctx context.Context, parent *Key, auth Authority, currencies []string, expires ExpirationDate, memo string) (*Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.keys[parent.Ref()] != parent {
		return nil, ErrUnauthorized
	}
	if parent.Scoped() && len(currencies) == 0 {
		return nil, ErrUnauthorized
	}
	for _, c := range currencies {
		if _, ok := b.currencies[c]; !ok {
			return nil, fmt.Errorf("%w %s", ErrBadCurrency, c)
		}
	}
	if !parent.AllowsCurrencies(currencies) {
		return nil, ErrUnauthorized
	}
	if parent.Expires().Compare(expires) < 0 {
		return nil, ErrExpiryExceedsAuthority
	}

	k := newKey(parent, b.newRef("key"), auth, currencies, expires, memo)
	b.keys[k.ref] = k
	if err := b.checkpointLocked(ctx); err != nil {
		delete(b.keys, k.ref)
		return nil, fmt.Errorf("checkpoint bank: %w", err)
	}
	return k, nil
}

// CancelKey deletes k and every key descending from it.
func (b *Bank) CancelKey(ctx context.Context, k *Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked(ctx, k)
}

func (b *Bank) cancelLocked(ctx context.Context, k *Key) error {
	removed := make(map[string]*Key)
	for ref, other := range b.keys {
		if other == k || other.HasAncestor(k) {
			removed[ref] = other
			delete(b.keys, ref)
		}
	}
	if err := b.checkpointLocked(ctx); err != nil {
		for ref, other := range removed {
			b.keys[ref] = other
		}
		return fmt.Errorf("checkpoint bank: %w", err)
	}
	return nil
}

// MakeAccount creates and persists a zero-balance account.
func (b *Bank) MakeAccount(ctx context.Context, currency, owner, memo string) (*Account, error) {
	if _, ok := b.Currency(currency); !ok {
		return nil, fmt.Errorf("%w %s", ErrBadCurrency, currency)
	}
	a := NewAccount(b.newRef("acct"), currency, owner, memo)
	if err := b.checkpointAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
