package fixture

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/koba/db-fixture/internal/operation"
)

// Event is passed to hooks around an operation. Tx is the operation's open
// transaction; statements run on it commit or roll back with the operation.
type Event struct {
	Kind operation.Kind
	Tx   *sqlx.Tx
}

// Hook is notified before or after an operation runs. Returning an error
// rolls the operation back and is returned to the caller unchanged.
type Hook interface {
	OnOperation(ctx context.Context, e Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, e Event) error

func (f HookFunc) OnOperation(ctx context.Context, e Event) error { return f(ctx, e) }

// OnPreOperation registers a hook run after the transaction begins and
// before any statement of the operation.
func (f *Fixture) OnPreOperation(h Hook) {
	f.preHooks = append(f.preHooks, h)
}

// OnPostOperation registers a hook run after the operation's statements and
// before commit.
func (f *Fixture) OnPostOperation(h Hook) {
	f.postHooks = append(f.postHooks, h)
}

func notify(ctx context.Context, hooks []Hook, e Event) error {
	for _, h := range hooks {
		if err := h.OnOperation(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
