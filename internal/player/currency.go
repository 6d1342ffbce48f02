package player

import "context"

// CurrencyBackend is the reward capability the player calls on a
// successful add_track; the currency subsystem itself is out of scope, so
// only the abstract interface lives here, matching the original's "built-in
// / SQL-backed / external" dynamic-dispatch shape for this one seam.
type CurrencyBackend interface {
	// Reward credits amount of currency to user in channel. A failure is
	// logged by the caller and never rolls back the request it rewards.
	Reward(ctx context.Context, channel, user string, amount int) error
}

// NoopCurrencyBackend discards every reward; it's the default when no
// currency subsystem is wired in.
type NoopCurrencyBackend struct{}

func (NoopCurrencyBackend) Reward(ctx context.Context, channel, user string, amount int) error {
	return nil
}
