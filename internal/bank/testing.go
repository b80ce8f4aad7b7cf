package bank

import "context"

// SeedAccount creates an account already holding balance, bypassing the
// mint verb. Intended for tests.
func SeedAccount(ctx context.Context, b *Bank, currency, owner string, balance int64) (*Account, error) {
	a, err := b.MakeAccount(ctx, currency, owner, "")
	if err != nil {
		return nil, err
	}
	if balance == 0 {
		return a, nil
	}
	if err := a.Deposit(balance); err != nil {
		return nil, err
	}
	if err := b.checkpointAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
