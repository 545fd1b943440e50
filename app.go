package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/aryandadwal2006/PsychAI-Version-1/audio"
	"github.com/aryandadwal2006/PsychAI-Version-1/clients"
	cfg "github.com/aryandadwal2006/PsychAI-Version-1/config"
	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
	"github.com/aryandadwal2006/PsychAI-Version-1/engine"
	"github.com/aryandadwal2006/PsychAI-Version-1/generation"
	"github.com/aryandadwal2006/PsychAI-Version-1/metrics"
	"github.com/aryandadwal2006/PsychAI-Version-1/orchestrator"
	"github.com/aryandadwal2006/PsychAI-Version-1/server"
	"github.com/aryandadwal2006/PsychAI-Version-1/synthesis"
	"github.com/aryandadwal2006/PsychAI-Version-1/transcription"
)

// app is the wired pipeline plus what the commands need around it.
type app struct {
	conf     *cfg.Root
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	pipeline *orchestrator.Pipeline
	engines  []*engine.Availability

	closers []func()
}

func newLogger(c *cfg.Root, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	lvl, err := logrus.ParseLevel(c.Pipeline.LogLvl)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	if c.Pipeline.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// buildApp wires every stage. The only error it returns for a missing engine
// is transcription's; the other stages start degraded.
func buildApp(c *cfg.Root, log *logrus.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &app{conf: c, log: log, registry: reg, metrics: m}

	adapter := audio.NewAdapter(audio.AdapterConfig{
		FFmpeg:     c.Audio.FFmpeg,
		WorkDir:    c.Audio.WorkDir,
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
	}, log)

	asrHTTP := clients.NewHTTP(cfg.DurSeconds(c.Transcription.Timeout))
	eng, err := transcription.NewEngine(c.Transcription, c.Services, asrHTTP)
	if err != nil {
		return nil, err
	}
	tr := transcription.NewService(eng, adapter, cfg.DurSeconds(c.Transcription.Timeout), log, m)
	a.engines = append(a.engines, engine.NewAvailability(eng.Name(), true, ""))

	gen := generation.New(generation.Config{
		Persona:      c.Generation.Persona,
		SystemPrompt: c.Generation.SystemPrompt,
		Params: generation.Params{
			Temperature: c.Generation.Temperature,
			MaxTokens:   c.Generation.MaxTokens,
			Stop:        c.Generation.Stop,
		},
		Timeout:     cfg.DurSeconds(c.Generation.Timeout),
		MaxFailures: c.Generation.MaxFailures,
	}, a.loadLlama(), log, m)
	a.engines = append(a.engines, gen.Availability())

	speechHTTP := clients.NewHTTP(cfg.DurSeconds(c.Synthesis.Remote.Timeout))
	synth := synthesis.New(synthesis.Config{
		Speaker:      c.Synthesis.Speaker,
		Emotion:      c.Synthesis.Emotion,
		OutputDir:    c.Synthesis.OutputDir,
		MaxArtifacts: c.Synthesis.MaxArtifacts,
		Params: synthesis.Params{
			Temperature:  c.Synthesis.Temperature,
			TopP:         c.Synthesis.TopP,
			CFGScale:     c.Synthesis.CFGScale,
			MaxNewTokens: c.Synthesis.MaxNewTokens,
			Speed:        c.Synthesis.Speed,
		},
		Timeout: cfg.DurSeconds(c.Synthesis.Remote.Timeout),
	}, synthesis.SelectBackend(c.Synthesis, speechHTTP), log, m)
	a.engines = append(a.engines, synth.Availability())

	deps := orchestrator.Deps{
		Transcriber: tr,
		Responder:   gen,
		Synthesizer: synth,
		Store:       conversation.NewStore(c.Conversation.MaxTurns),
	}
	if url := c.Services.Emotion.URL; url != "" {
		deps.Emotion = orchestrator.NewEmotionService(clients.NewHTTP(cfg.DurSeconds(c.Transcription.Timeout)), url)
	}
	a.pipeline = orchestrator.NewPipeline(deps, log, m)
	return a, nil
}

// loadLlama returns a nil Backend, not a nil *Llama, when no model loads.
func (a *app) loadLlama() generation.Backend {
	l, err := generation.NewLlama(generation.LlamaConfig{
		ModelDir:    a.conf.Generation.ModelDir,
		ContextSize: a.conf.Generation.ContextSize,
		Threads:     a.conf.Generation.Threads,
		GPULayers:   a.conf.Generation.GPULayers,
	})
	if err != nil {
		a.log.WithError(err).Warn("generative model unavailable, using canned responses")
		return nil
	}
	a.closers = append(a.closers, l.Close)
	return l
}

func (a *app) server() *server.Server {
	return server.New(server.Config{
		Address:   a.conf.Server.Address,
		Port:      a.conf.Server.Port,
		UploadDir: filepath.Join(a.conf.Paths.Data, "uploads"),
		AudioDir:  a.conf.Synthesis.OutputDir,
	}, a.pipeline, a.engines, a.registry, a.log, a.metrics)
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}

func (a *app) printEngines(w io.Writer) {
	for _, e := range a.engines {
		st := e.Status()
		state := "available"
		if !st.Available {
			state = "unavailable: " + st.Reason
		}
		fmt.Fprintf(w, "%-14s %s\n", st.Name, state)
	}
}

func fatal(log logrus.FieldLogger, err error) {
	log.WithError(err).Error("startup failed")
	os.Exit(1)
}
