// Package transcription turns recorded speech into text. The service never
// fails at call time: every problem becomes an empty transcript.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/aryandadwal2006/PsychAI-Version-1/audio"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
)

const DefaultTimeout = 30 * time.Second

var errUnreadable = errors.New("audio unreadable")

type Normalizer interface {
	Normalize(ctx context.Context, rawPath string) (string, error)
}

type Service struct {
	engine  Engine
	norm    Normalizer
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewService(engine Engine, norm Normalizer, timeout time.Duration, log logrus.FieldLogger, m *metrics.Metrics) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		engine:  engine,
		norm:    norm,
		timeout: timeout,
		log:     log.WithFields(logrus.Fields{"component": "transcription", "engine": engine.Name()}),
		metrics: m,
	}
}

func (s *Service) EngineName() string { return s.engine.Name() }

// Transcribe returns the recognized text, or "" when the input is missing,
// the engine times out, exits non-zero or otherwise fails.
func (s *Service) Transcribe(ctx context.Context, audioPath string) string {
	log := s.log.WithField("audio", audioPath)

	if strings.TrimSpace(audioPath) == "" {
		log.Warn("no audio path given")
		s.metrics.IncDegraded(metrics.StageTranscribe, "empty_input")
		return ""
	}
	if info, err := os.Stat(audioPath); err != nil || info.IsDir() {
		log.Warn("audio file not found")
		s.metrics.IncDegraded(metrics.StageTranscribe, "empty_input")
		return ""
	}

	text, err := s.run(ctx, audioPath, log)
	if err != nil {
		reason := classify(err)
		log.WithError(err).WithField("reason", reason).Error("transcription failed")
		s.metrics.IncDegraded(metrics.StageTranscribe, reason)
		return ""
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.metrics.IncDegraded(metrics.StageTranscribe, "no_speech")
	}
	log.WithField("chars", len(text)).Info("transcription finished")
	return text
}

// run bounds normalization and the engine call together by the service
// timeout, even when either ignores its context.
func (s *Service) run(ctx context.Context, audioPath string, log logrus.FieldLogger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		var pc panics.Catcher
		pc.Try(func() { r.text, r.err = s.recognize(ctx, audioPath, log) })
		if rec := pc.Recovered(); rec != nil {
			r.err = rec.AsError()
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recognize normalizes audioPath and runs the engine on the result. A
// converted copy is removed once the engine is done with it.
func (s *Service) recognize(ctx context.Context, audioPath string, log logrus.FieldLogger) (string, error) {
	start := time.Now()
	wav, err := s.norm.Normalize(ctx, audioPath)
	s.metrics.ObserveStage(metrics.StageNormalize, time.Since(start))
	if err != nil {
		if !errors.Is(err, audio.ErrConversionDegraded) {
			return "", fmt.Errorf("%w: %v", errUnreadable, err)
		}
		s.metrics.IncDegraded(metrics.StageNormalize, "conversion")
		log.WithError(err).Warn("transcribing unconverted audio")
	}
	if wav != audioPath {
		defer func() {
			if err := os.Remove(wav); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.WithError(err).WithField("converted", wav).Warn("cannot remove converted audio")
			}
		}()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.engine.Run(ctx, wav)
}

func classify(err error) string {
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, errUnreadable):
		return "empty_input"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &exitErr):
		return "exit_status"
	default:
		return "error"
	}
}
