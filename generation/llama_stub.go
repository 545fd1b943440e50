//go:build !llama

package generation

import (
	"context"
)

// Llama is a placeholder in builds without the llama tag; NewLlama always
// fails so the generator falls back to canned responses.
type Llama struct{}

func NewLlama(cfg LlamaConfig) (*Llama, error) {
	if _, err := FindModel(cfg.ModelDir); err != nil {
		return nil, err
	}
	return nil, ErrLlamaUnavailable
}

func (l *Llama) Name() string { return "llama" }

func (l *Llama) Complete(context.Context, string, Params) (string, error) {
	return "", ErrLlamaUnavailable
}

func (l *Llama) Close() {}
