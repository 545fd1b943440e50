// Package synthesis speaks the assistant's replies. The backend is chosen
// once at construction; every failure yields "no audio" rather than an error.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/aryandadwal2006/PsychAI-Version-1/engine"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
)

const artifactPrefix = "tts_"

type Config struct {
	Speaker   string // default speaker tag, e.g. "S1"
	Emotion   string // default emotion tag
	OutputDir string
	// MaxArtifacts bounds the number of tts_* files kept in OutputDir; the
	// oldest are removed after each write. Zero keeps everything.
	MaxArtifacts int
	Params       Params
	Timeout      time.Duration
}

type Synthesizer struct {
	cfg     Config
	backend Backend
	avail   *engine.Availability

	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New wraps backend, which may be nil when neither engine is usable.
func New(cfg Config, backend Backend, log logrus.FieldLogger, m *metrics.Metrics) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Speaker == "" {
		cfg.Speaker = "S1"
	}
	s := &Synthesizer{cfg: cfg, backend: backend, log: log.WithField("component", "synthesis"), metrics: m, now: time.Now}
	if backend != nil {
		s.avail = engine.NewAvailability(backend.Name(), true, "")
		s.log = s.log.WithField("backend", backend.Name())
	} else {
		s.avail = engine.NewAvailability("synthesis", false, "no local assets and no remote endpoint")
	}
	return s
}

func (s *Synthesizer) Availability() *engine.Availability { return s.avail }

// Synthesize writes the spoken form of text to a new file in the output
// directory and returns its path. ok is false for blank text and for any
// backend failure; there is no retry.
func (s *Synthesizer) Synthesize(ctx context.Context, text, speakerTag, emotionTag string) (path string, ok bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	if speakerTag == "" {
		speakerTag = s.cfg.Speaker
	}
	if emotionTag == "" {
		emotionTag = s.cfg.Emotion
	}
	if !s.avail.Available() {
		s.metrics.IncDegraded(metrics.StageSynthesize, "unavailable")
		return "", false
	}

	req := Request{Text: Annotate(text, speakerTag), Emotion: emotionTag, Params: s.cfg.Params}
	log := s.log.WithFields(logrus.Fields{"speaker": speakerTag, "emotion": emotionTag})

	out, err := s.call(ctx, req)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		log.WithError(err).WithField("reason", reason).Warn("speech synthesis failed, replying with text only")
		s.metrics.IncDegraded(metrics.StageSynthesize, reason)
		return "", false
	}

	path, err = s.write(out)
	if err != nil {
		log.WithError(err).Warn("cannot write synthesized audio")
		s.metrics.IncDegraded(metrics.StageSynthesize, "write")
		return "", false
	}
	s.metrics.ArtifactWritten()
	log.WithField("path", path).Info("speech synthesized")

	s.prune(path)
	return path, true
}

func (s *Synthesizer) call(ctx context.Context, req Request) (Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type result struct {
		audio Audio
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		var pc panics.Catcher
		pc.Try(func() { r.audio, r.err = s.backend.Synthesize(ctx, req) })
		if rec := pc.Recovered(); rec != nil {
			r.err = rec.AsError()
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err == nil && len(r.audio.Data) == 0 {
			r.err = fmt.Errorf("%s returned no audio", s.backend.Name())
		}
		return r.audio, r.err
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	}
}

func (s *Synthesizer) write(a Audio) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	ext := a.Ext
	if ext == "" {
		ext = ".wav"
	}

	stamp := s.now().UnixMilli()
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s%d%s", artifactPrefix, stamp, ext)
		if i > 0 {
			name = fmt.Sprintf("%s%d_%d%s", artifactPrefix, stamp, i, ext)
		}
		path := filepath.Join(s.cfg.OutputDir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(a.Data); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
}

// prune removes the oldest artifacts beyond MaxArtifacts. The file at keep
// is never removed.
func (s *Synthesizer) prune(keep string) {
	if s.cfg.MaxArtifacts <= 0 {
		return
	}
	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		s.log.WithError(err).Warn("cannot list output dir for retention")
		return
	}

	type artifact struct {
		path string
		mod  time.Time
	}
	var arts []artifact
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		arts = append(arts, artifact{path: filepath.Join(s.cfg.OutputDir, e.Name()), mod: info.ModTime()})
	}
	if len(arts) <= s.cfg.MaxArtifacts {
		return
	}

	sort.Slice(arts, func(i, j int) bool {
		if arts[i].mod.Equal(arts[j].mod) {
			return arts[i].path < arts[j].path
		}
		return arts[i].mod.Before(arts[j].mod)
	})

	removed := 0
	for _, a := range arts[:len(arts)-s.cfg.MaxArtifacts] {
		if a.path == keep {
			continue
		}
		if err := os.Remove(a.path); err != nil {
			s.log.WithError(err).WithField("path", a.path).Warn("cannot remove old artifact")
			continue
		}
		removed++
	}
	s.metrics.ArtifactsRemoved(removed)
}
