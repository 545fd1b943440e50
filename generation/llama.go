//go:build llama

package generation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-skynet/go-llama.cpp"
)

// Llama runs a local GGUF model through llama.cpp, CPU only unless
// GPULayers is set.
type Llama struct {
	model   *llama.LLama
	name    string
	threads int
	mu      sync.Mutex
}

func NewLlama(cfg LlamaConfig) (*Llama, error) {
	path, err := FindModel(cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	model, err := llama.New(path,
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}

	threads := cfg.Threads
	if threads < 1 {
		threads = 1
	}
	return &Llama{model: model, name: "llama:" + filepath.Base(path), threads: threads}, nil
}

func (l *Llama) Name() string { return l.name }

// Complete is not interruptible once llama.cpp starts predicting; the
// generator's timeout stops waiting for it instead.
func (l *Llama) Complete(ctx context.Context, prompt string, p Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out, err := l.model.Predict(prompt,
		llama.SetTemperature(float32(p.Temperature)),
		llama.SetTokens(p.MaxTokens),
		llama.SetStopWords(p.Stop...),
		llama.SetThreads(l.threads),
	)
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	return out, nil
}

func (l *Llama) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model.Free()
}
