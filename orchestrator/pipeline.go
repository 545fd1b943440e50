// Package orchestrator runs one conversational turn at a time: transcribe the
// recorded audio, generate a reply, speak it, and keep the transcript.
package orchestrator

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) string
}

type Responder interface {
	Generate(ctx context.Context, utterance string, transcript []conversation.Turn) string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, speakerTag, emotionTag string) (path string, ok bool)
}

type EmotionDetector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// Deps are the stage components. Emotion is optional.
type Deps struct {
	Transcriber Transcriber
	Responder   Responder
	Synthesizer Synthesizer
	Emotion     EmotionDetector
	Store       *conversation.Store
}

// Pipeline is not safe for concurrent use; callers serialize Process and
// Reset.
type Pipeline struct {
	deps    Deps
	session string
	state   State

	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewPipeline(deps Deps, log logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	if deps.Store == nil {
		deps.Store = conversation.NewStore(0)
	}
	return &Pipeline{
		deps:    deps,
		session: uuid.NewString(),
		log:     log.WithField("component", "orchestrator"),
		metrics: m,
	}
}

func (p *Pipeline) SessionID() string { return p.session }

func (p *Pipeline) State() State { return p.state }

// Transcript returns a snapshot of the current conversation.
func (p *Pipeline) Transcript() []conversation.Turn { return p.deps.Store.Snapshot() }

// Process runs one turn for the recording at audioPath. Stage failures are
// absorbed by the stages themselves; the only user visible failures are a
// missing recording and an empty transcription.
func (p *Pipeline) Process(ctx context.Context, audioPath string) (res Result) {
	ctx, span := tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(
		attribute.String("session.id", p.session),
	))
	defer span.End()

	log := p.log.WithFields(logrus.Fields{"session": p.session, "audio": audioPath})

	var pc panics.Catcher
	pc.Try(func() { res = p.process(ctx, span, log, audioPath) })
	if rec := pc.Recovered(); rec != nil {
		err := rec.AsError()
		log.WithError(err).Error("turn aborted")
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn aborted")
		p.metrics.IncTurn(OutcomeFailed)
		res = p.result("", StatusFailed)
	}

	p.state = Idle
	p.metrics.SetTranscriptLen(p.deps.Store.Len())
	return res
}

func (p *Pipeline) process(ctx context.Context, span trace.Span, log logrus.FieldLogger, audioPath string) Result {
	if !validAudio(audioPath) {
		log.Warn("no usable audio recording")
		span.SetAttributes(attribute.String("turn.outcome", OutcomeNoAudio))
		p.metrics.IncTurn(OutcomeNoAudio)
		return p.result("", StatusNoAudio)
	}

	var utterance string
	p.stage(ctx, Transcribing, metrics.StageTranscribe, func(ctx context.Context) {
		utterance = strings.TrimSpace(p.deps.Transcriber.Transcribe(ctx, audioPath))
	})
	if utterance == "" {
		log.Info("nothing transcribed")
		span.SetAttributes(attribute.String("turn.outcome", OutcomeNoTranscript))
		p.metrics.IncTurn(OutcomeNoTranscript)
		return p.result("", StatusNoTranscript)
	}

	user := conversation.NewTurn(conversation.User, utterance)
	if p.deps.Emotion != nil {
		p.stage(ctx, Transcribing, metrics.StageEmotion, func(ctx context.Context) {
			user.Emotion = p.detectEmotion(ctx, log, utterance)
		})
	}
	p.deps.Store.Append(user)

	var reply string
	p.stage(ctx, Generating, metrics.StageGenerate, func(ctx context.Context) {
		reply = p.deps.Responder.Generate(ctx, utterance, p.deps.Store.Snapshot())
	})
	p.deps.Store.Append(conversation.NewTurn(conversation.Assistant, reply))

	var (
		path string
		ok   bool
	)
	p.stage(ctx, Synthesizing, metrics.StageSynthesize, func(ctx context.Context) {
		path, ok = p.deps.Synthesizer.Synthesize(ctx, reply, "", "")
	})

	outcome := OutcomeSpoken
	if !ok {
		path = ""
		outcome = OutcomeTextOnly
	}
	p.state = Done
	span.SetAttributes(
		attribute.String("turn.outcome", outcome),
		attribute.Int("transcript.turns", p.deps.Store.Len()),
	)
	p.metrics.IncTurn(outcome)
	log.WithFields(logrus.Fields{"outcome": outcome, "turns": p.deps.Store.Len()}).Info("turn complete")
	return p.result(path, "")
}

// stage runs fn in its own span and records its duration.
func (p *Pipeline) stage(ctx context.Context, state State, name string, fn func(ctx context.Context)) {
	p.state = state
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	fn(ctx)
	p.metrics.ObserveStage(name, time.Since(start))
}

func (p *Pipeline) detectEmotion(ctx context.Context, log logrus.FieldLogger, text string) string {
	emotion, err := p.deps.Emotion.Detect(ctx, text)
	if err != nil {
		log.WithError(err).Warn("emotion detection failed")
		trace.SpanFromContext(ctx).RecordError(err)
		p.metrics.IncDegraded(metrics.StageEmotion, "error")
		return ""
	}
	return emotion
}

// Reset clears the conversation and starts a new session.
func (p *Pipeline) Reset() Result {
	p.deps.Store.Reset()
	p.session = uuid.NewString()
	p.state = Idle

	p.metrics.IncReset()
	p.metrics.SetTranscriptLen(0)
	p.log.WithField("session", p.session).Info("conversation reset")
	return p.result("", "")
}

func (p *Pipeline) result(audioPath, status string) Result {
	return Result{
		SessionID:  p.session,
		Transcript: p.deps.Store.Snapshot(),
		AudioPath:  audioPath,
		Status:     status,
	}
}

func validAudio(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
