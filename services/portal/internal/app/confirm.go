package app

import (
	"context"

	"campuscanvas/pkg/domain"
)

// Confirmer asks a human to approve a destructive step.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Answer returns a confirmer that always gives the same answer, used when the
// caller already collected consent (e.g. a confirm=true query parameter).
func Answer(yes bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) { return yes, nil })
}

func ask(ctx context.Context, c Confirmer, prompt string) error {
	if c == nil {
		return domain.ErrNotConfirmed
	}
	ok, err := c.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotConfirmed
	}
	return nil
}
