// Package generation produces the assistant's reply. A generative backend is
// used when one is available; otherwise, or whenever it fails, replies come
// from a fixed cycle of supportive prompts. Generate never fails.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"

	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
	"github.com/aryandadwal2006/PsychAI-Version-1/engine"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
)

// InvitationalPrompt answers a blank utterance.
const InvitationalPrompt = "I'm here to listen. What would you like to talk about?"

// FallbackResponses are returned in order, wrapping around, when no backend
// answer is available.
var FallbackResponses = []string{
	"I understand you're sharing something important with me. Can you tell me more about how that makes you feel?",
	"That sounds challenging. What thoughts go through your mind when this happens?",
	"Thank you for sharing that. How long has this been on your mind?",
	"I hear what you're saying. What would help you feel better about this situation?",
	"It takes courage to talk about difficult things. What support do you have in your life?",
}

// Params are the sampling settings passed to the backend on every call.
type Params struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Backend is a single-turn text completion engine.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string, p Params) (string, error)
}

type Config struct {
	Persona      string
	SystemPrompt string
	Params       Params
	Timeout      time.Duration
	// MaxFailures consecutive backend failures mark the backend unavailable
	// until restart. Zero disables the downgrade.
	MaxFailures int
}

type Generator struct {
	cfg     Config
	backend Backend
	avail   *engine.Availability

	cursor   int
	failures int

	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New builds a generator. A nil backend means the fallback path is used for
// every reply.
func New(cfg Config, backend Backend, log logrus.FieldLogger, m *metrics.Metrics) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	g := &Generator{cfg: cfg, backend: backend, log: log.WithField("component", "generation"), metrics: m}
	if backend != nil {
		g.avail = engine.NewAvailability(backend.Name(), true, "")
	} else {
		g.avail = engine.NewAvailability("generative", false, "no backend loaded")
	}
	return g
}

func (g *Generator) Availability() *engine.Availability { return g.avail }

// Generate returns a non-empty reply to utterance. The transcript is accepted
// as context, but the backend is prompted with the utterance alone.
func (g *Generator) Generate(ctx context.Context, utterance string, transcript []conversation.Turn) string {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return InvitationalPrompt
	}

	if g.avail.Available() {
		reply, err := g.complete(ctx, utterance)
		if err == nil {
			g.failures = 0
			return reply
		}
		g.recordFailure(err, len(transcript))
	}

	g.metrics.IncDegraded(metrics.StageGenerate, "fallback")
	return g.nextFallback()
}

// Prompt is the single-turn prompt sent to the backend.
func (g *Generator) Prompt(utterance string) string {
	return fmt.Sprintf("%s\n\nUser: %s\n%s:", g.cfg.SystemPrompt, utterance, g.cfg.Persona)
}

func (g *Generator) complete(ctx context.Context, utterance string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	prompt := g.Prompt(utterance)
	go func() {
		var r result
		var pc panics.Catcher
		pc.Try(func() { r.text, r.err = g.backend.Complete(ctx, prompt, g.cfg.Params) })
		if rec := pc.Recovered(); rec != nil {
			r.err = rec.AsError()
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", fmt.Errorf("%s returned no text", g.backend.Name())
		}
		return text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", g.backend.Name(), ctx.Err())
	}
}

func (g *Generator) recordFailure(err error, historyLen int) {
	g.failures++
	g.log.WithError(err).WithFields(logrus.Fields{
		"failures": g.failures,
		"history":  historyLen,
	}).Warn("generation failed, using fallback response")

	if g.cfg.MaxFailures > 0 && g.failures >= g.cfg.MaxFailures {
		reason := fmt.Sprintf("%d consecutive failures, last: %v", g.failures, err)
		if g.avail.Downgrade(reason) {
			g.log.WithField("reason", reason).Error("generative backend disabled until restart")
		}
	}
}

func (g *Generator) nextFallback() string {
	reply := FallbackResponses[g.cursor%len(FallbackResponses)]
	g.cursor++
	return reply
}
