package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aryandadwal2006/PsychAI-Version-1/clients"
	"github.com/aryandadwal2006/PsychAI-Version-1/config"
)

// ErrEngineMissing is returned at construction when the configured engine
// cannot be located. It is the one failure allowed to stop startup.
var ErrEngineMissing = errors.New("transcription engine missing")

// Engine runs a speech-to-text backend on a canonical WAV file and returns
// its raw text output.
type Engine interface {
	Name() string
	Run(ctx context.Context, wavPath string) (string, error)
}

// NewEngine builds the engine named in cfg and verifies its assets.
func NewEngine(cfg config.Transcription, svc config.Services, h *clients.HTTP) (Engine, error) {
	switch cfg.Engine {
	case "whisper":
		return NewWhisperCLI(cfg.Executable, cfg.Model, cfg.Threads)
	case "remote":
		if svc.ASR.URL == "" {
			return nil, fmt.Errorf("%w: services.asr.url is empty", ErrEngineMissing)
		}
		return &RemoteASR{http: h, url: svc.ASR.URL}, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrEngineMissing, cfg.Engine)
	}
}

// --- whisper.cpp command line ---

const whisperPrefix = "whisper_"

type WhisperCLI struct {
	exe     string
	model   string
	threads int
}

func NewWhisperCLI(exe, model string, threads int) (*WhisperCLI, error) {
	resolved, err := resolveExecutable(exe)
	if err != nil {
		return nil, fmt.Errorf("%w: executable %s: %v", ErrEngineMissing, exe, err)
	}
	if info, err := os.Stat(model); err != nil || info.IsDir() {
		if err == nil {
			err = fmt.Errorf("is a directory")
		}
		return nil, fmt.Errorf("%w: model %s: %v", ErrEngineMissing, model, err)
	}
	if threads < 1 {
		threads = 1
	}
	// the engine runs from its own directory, so paths handed to it are absolute
	if abs, err := filepath.Abs(model); err == nil {
		model = abs
	}
	return &WhisperCLI{exe: resolved, model: model, threads: threads}, nil
}

func (w *WhisperCLI) Name() string { return "whisper-cli" }

func (w *WhisperCLI) Run(ctx context.Context, wavPath string) (string, error) {
	if abs, err := filepath.Abs(wavPath); err == nil {
		wavPath = abs
	}
	cmd := exec.CommandContext(ctx, w.exe,
		"-m", w.model,
		"-f", wavPath,
		"--no-timestamps",
		"--threads", strconv.Itoa(w.threads),
	)
	cmd.Dir = filepath.Dir(w.exe)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper: %w: %s", err, lastLine(stderr.String()))
	}
	return ParseOutput(stdout.String(), whisperPrefix), nil
}

// ParseOutput drops diagnostic lines (starting with '[' or the engine prefix)
// and joins what is left with single spaces.
func ParseOutput(raw, enginePrefix string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		if enginePrefix != "" && strings.HasPrefix(line, enginePrefix) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// --- remote ASR service (/transcribe) ---

type RemoteASR struct {
	http *clients.HTTP
	url  string
}

func (r *RemoteASR) Name() string { return "remote-asr" }

func (r *RemoteASR) Run(ctx context.Context, wavPath string) (string, error) {
	resp, err := r.http.ASR(ctx, r.url, wavPath)
	if err != nil {
		return "", err
	}
	return resp.Transcript(), nil
}

func resolveExecutable(exe string) (string, error) {
	if exe == "" {
		return "", fmt.Errorf("not configured")
	}
	if !strings.ContainsRune(exe, os.PathSeparator) {
		return exec.LookPath(exe)
	}
	info, err := os.Stat(exe)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("is a directory")
	}
	return filepath.Abs(exe)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
