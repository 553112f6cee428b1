package domain

import "context"

// Completer produces a single reply for an ordered conversation window.
type Completer interface {
	Complete(ctx context.Context, turns []Turn) (string, error)
}

// ImageGenerator renders a PNG image for a free-text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}
