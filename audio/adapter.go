// Package audio turns whatever the recorder produced into the canonical
// format the transcription engine reads (mono, 16 kHz, 16-bit PCM WAV) and
// writes synthesized samples back out as WAV files.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const waitDelay = 500 * time.Millisecond

// ErrConversionDegraded means the input could not be converted. The caller
// still receives the original path and may try to use it as is.
var ErrConversionDegraded = errors.New("audio conversion degraded")

type AdapterConfig struct {
	FFmpeg     string // executable name or path
	WorkDir    string // converted files are written here
	SampleRate int
	Channels   int
}

type Adapter struct {
	cfg AdapterConfig
	log logrus.FieldLogger
}

func NewAdapter(cfg AdapterConfig, log logrus.FieldLogger) *Adapter {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Adapter{cfg: cfg, log: log.WithField("component", "audio")}
}

// Normalize returns a path to a canonical copy of rawPath. Canonical input is
// returned unchanged. When conversion fails the original path is returned
// together with an error wrapping ErrConversionDegraded. The source file is
// never modified.
func (a *Adapter) Normalize(ctx context.Context, rawPath string) (string, error) {
	info, err := os.Stat(rawPath)
	if err != nil {
		return rawPath, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return rawPath, fmt.Errorf("input %s is a directory", rawPath)
	}

	if f, err := ProbeFile(rawPath); err == nil && f.IsPCM16(a.cfg.SampleRate, a.cfg.Channels) {
		return rawPath, nil
	}

	out, err := a.convert(ctx, rawPath)
	if err != nil {
		a.log.WithError(err).WithField("input", rawPath).Warn("conversion failed, using original audio")
		return rawPath, fmt.Errorf("%w: %v", ErrConversionDegraded, err)
	}
	a.log.WithFields(logrus.Fields{"input": rawPath, "output": out}).Debug("audio normalized")
	return out, nil
}

func (a *Adapter) convert(ctx context.Context, rawPath string) (string, error) {
	if err := os.MkdirAll(a.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	out := filepath.Join(a.cfg.WorkDir, "converted_"+stem+".wav")
	if sameFile(out, rawPath) {
		out = filepath.Join(a.cfg.WorkDir, "converted_"+stem+"_canonical.wav")
	}

	cmd := exec.CommandContext(ctx, a.cfg.FFmpeg,
		"-y", "-loglevel", "error",
		"-i", rawPath,
		"-ar", strconv.Itoa(a.cfg.SampleRate),
		"-ac", strconv.Itoa(a.cfg.Channels),
		"-c:a", "pcm_s16le",
		out,
	)
	// ffmpeg children may hold the output pipe after a kill
	cmd.WaitDelay = waitDelay
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}

	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return out, nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
