package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/bankd/internal/bank"
	"github.com/congo-pay/bankd/internal/config"
	"github.com/congo-pay/bankd/internal/store"
)

const (
	initialLoadBackoff = 500 * time.Millisecond
	maxLoadBackoff     = 30 * time.Second
)

// LoadBank opens the bank object, retrying transient store failures with
// exponential backoff until ctx ends. A malformed bank record is not retried.
func LoadBank(ctx context.Context, st store.Store, ref string, logger *slog.Logger, opts ...bank.Option) (*bank.Bank, error) {
	backoff := initialLoadBackoff
	for {
		b, err := bank.Open(ctx, st, ref, opts...)
		if err == nil {
			logger.Info("bank loaded", slog.String("bank", ref), slog.Int("keys", b.KeyCount()))
			return b, nil
		}
		if errors.Is(err, bank.ErrMalformedRecord) {
			return nil, err
		}
		logger.Warn("bank load failed, retrying", slog.String("bank", ref), slog.Duration("backoff", backoff), slog.Any("error", err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxLoadBackoff {
			backoff = maxLoadBackoff
		}
	}
}

// ApplySeed creates every seeded currency the bank lacks.
func ApplySeed(ctx context.Context, b *bank.Bank, seed config.Seed, logger *slog.Logger) error {
	for _, c := range seed.Currencies {
		if _, ok := b.Currency(c.Name); ok {
			continue
		}
		if _, err := b.MakeCurrency(ctx, c.Name, c.Memo); err != nil && !errors.Is(err, bank.ErrCurrencyExists) {
			return err
		}
		logger.Info("seeded currency", slog.String("curr", c.Name))
	}
	return nil
}
