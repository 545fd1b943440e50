package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "PSYCHAI"

type Service struct {
	URL string `yaml:"url"`
}
type Services struct {
	ASR     Service `yaml:"asr"`
	Emotion Service `yaml:"emotion"`
}
type Audio struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FFmpeg     string `yaml:"ffmpeg"`
	WorkDir    string `yaml:"work_dir"`
}

// Transcription selects the speech-to-text engine. Engine is "whisper"
// (local executable) or "remote" (services.asr).
type Transcription struct {
	Engine     string `yaml:"engine"`
	Executable string `yaml:"executable"`
	Model      string `yaml:"model"`
	Threads    int    `yaml:"threads"`
	Timeout    int    `yaml:"timeout"` // seconds
}

type Generation struct {
	ModelDir     string   `yaml:"model_dir"`
	ContextSize  int      `yaml:"context_size"`
	Threads      int      `yaml:"threads"`
	GPULayers    int      `yaml:"gpu_layers"`
	Persona      string   `yaml:"persona"`
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	Stop         []string `yaml:"stop"`
	Timeout      int      `yaml:"timeout"` // seconds
	MaxFailures  int      `yaml:"max_failures"`
}

type LocalSynthesis struct {
	Executable string `yaml:"executable"`
	ModelDir   string `yaml:"model_dir"`
}
type RemoteSynthesis struct {
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`
	Timeout int    `yaml:"timeout"` // seconds
}

type Synthesis struct {
	Speaker      string          `yaml:"speaker"`
	Emotion      string          `yaml:"emotion"`
	OutputDir    string          `yaml:"output_dir"`
	MaxArtifacts int             `yaml:"max_artifacts"`
	SampleRate   int             `yaml:"sample_rate"`
	Temperature  float64         `yaml:"temperature"`
	TopP         float64         `yaml:"top_p"`
	CFGScale     float64         `yaml:"cfg_scale"`
	MaxNewTokens int             `yaml:"max_new_tokens"`
	Speed        float64         `yaml:"speed"`
	Local        LocalSynthesis  `yaml:"local"`
	Remote       RemoteSynthesis `yaml:"remote"`
}

type Conversation struct {
	MaxTurns int `yaml:"max_turns"`
}

type Server struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type Root struct {
	Pipeline struct {
		LogLvl    string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"pipeline"`
	Audio         Audio         `yaml:"audio"`
	Services      Services      `yaml:"services"`
	Transcription Transcription `yaml:"transcription"`
	Generation    Generation    `yaml:"generation"`
	Synthesis     Synthesis     `yaml:"synthesis"`
	Conversation  Conversation  `yaml:"conversation"`
	Server        Server        `yaml:"server"`
	Paths         struct {
		Data string `yaml:"data"` // uploads are kept under <data>/uploads while a turn runs
	} `yaml:"paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("pipeline.log_format", "text")

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.ffmpeg", "ffmpeg")
	v.SetDefault("audio.work_dir", filepath.Join("data", "temp_audio"))

	v.SetDefault("services.asr.url", "")
	v.SetDefault("services.emotion.url", "")

	v.SetDefault("transcription.engine", "whisper")
	v.SetDefault("transcription.executable", filepath.Join("whisper.cpp", "build", "bin", "whisper-cli"))
	v.SetDefault("transcription.model", filepath.Join("models", "ggml-base.en.bin"))
	v.SetDefault("transcription.threads", 4)
	v.SetDefault("transcription.timeout", 30)

	v.SetDefault("generation.model_dir", "models")
	v.SetDefault("generation.context_size", 2048)
	v.SetDefault("generation.threads", 4)
	v.SetDefault("generation.gpu_layers", 0)
	v.SetDefault("generation.persona", "Dr. Mindwell")
	v.SetDefault("generation.system_prompt", "You are Dr. Mindwell, a compassionate AI psychologist. "+
		"Respond with empathy, ask clarifying questions, and provide supportive guidance. "+
		"Keep responses concise (2-3 sentences).")
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_tokens", 100)
	v.SetDefault("generation.stop", []string{"User:", "\n\n"})
	v.SetDefault("generation.timeout", 60)
	v.SetDefault("generation.max_failures", 3)

	v.SetDefault("synthesis.speaker", "S1")
	v.SetDefault("synthesis.emotion", "calm")
	v.SetDefault("synthesis.output_dir", filepath.Join("data", "audio_output"))
	v.SetDefault("synthesis.max_artifacts", 50)
	v.SetDefault("synthesis.sample_rate", 44100)
	v.SetDefault("synthesis.temperature", 0.8)
	v.SetDefault("synthesis.top_p", 0.95)
	v.SetDefault("synthesis.cfg_scale", 3.5)
	v.SetDefault("synthesis.max_new_tokens", 2048)
	v.SetDefault("synthesis.speed", 1.0)
	v.SetDefault("synthesis.local.executable", "")
	v.SetDefault("synthesis.local.model_dir", "")
	v.SetDefault("synthesis.remote.url", "https://api.deepinfra.com/v1/inference/nari-labs/Dia-1.6B")
	v.SetDefault("synthesis.remote.api_key", "")
	v.SetDefault("synthesis.remote.timeout", 60)

	v.SetDefault("conversation.max_turns", 200)

	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 7860)

	v.SetDefault("paths.data", "data")
}

// Load reads the configuration. An explicit path must exist; otherwise the
// usual locations are searched and a missing file falls back to defaults.
// Every key can be overridden with PSYCHAI_<SECTION>_<KEY>.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join("config", env))
		v.AddConfigPath(filepath.Join("src", "shared"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a stage.
func (c *Root) Validate() error {
	switch c.Pipeline.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("pipeline.log_format must be text or json, got %q", c.Pipeline.LogFormat)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 {
		return fmt.Errorf("audio.channels must be at least 1, got %d", c.Audio.Channels)
	}
	if err := c.Transcription.Validate(c.Services); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}
	if c.Conversation.MaxTurns < 0 {
		return fmt.Errorf("conversation.max_turns cannot be negative, got %d", c.Conversation.MaxTurns)
	}
	if c.Conversation.MaxTurns%2 != 0 {
		return fmt.Errorf("conversation.max_turns must be even (whole exchanges), got %d", c.Conversation.MaxTurns)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (t *Transcription) Validate(s Services) error {
	switch t.Engine {
	case "whisper":
		if t.Executable == "" || t.Model == "" {
			return fmt.Errorf("executable and model are required for the whisper engine")
		}
	case "remote":
		if s.ASR.URL == "" {
			return fmt.Errorf("services.asr.url is required for the remote engine")
		}
	default:
		return fmt.Errorf("engine must be whisper or remote, got %q", t.Engine)
	}
	if t.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", t.Threads)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", t.Timeout)
	}
	return nil
}

func (g *Generation) Validate() error {
	if g.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", g.MaxTokens)
	}
	if g.Temperature < 0 {
		return fmt.Errorf("temperature cannot be negative, got %.2f", g.Temperature)
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", g.Timeout)
	}
	if g.Persona == "" {
		return fmt.Errorf("persona cannot be empty")
	}
	return nil
}

func (s *Synthesis) Validate() error {
	if s.Speaker == "" {
		return fmt.Errorf("speaker cannot be empty")
	}
	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}
	if s.MaxArtifacts < 0 {
		return fmt.Errorf("max_artifacts cannot be negative, got %d", s.MaxArtifacts)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %d", s.Remote.Timeout)
	}
	return nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
