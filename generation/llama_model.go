package generation

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// ErrLlamaUnavailable is returned by NewLlama in builds without the llama tag.
var ErrLlamaUnavailable = errors.New("llama.cpp not available in this build")

type LlamaConfig struct {
	ModelDir    string
	ContextSize int
	Threads     int
	GPULayers   int
}

// FindModel returns the first *.gguf file in dir, in lexical order.
func FindModel(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.gguf"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no GGUF model found in %s", dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}
