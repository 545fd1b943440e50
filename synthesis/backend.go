package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aryandadwal2006/PsychAI-Version-1/audio"
	"github.com/aryandadwal2006/PsychAI-Version-1/clients"
	"github.com/aryandadwal2006/PsychAI-Version-1/config"
)

// Params are the fixed sampling settings sent to either backend.
type Params struct {
	Temperature  float64
	TopP         float64
	CFGScale     float64
	MaxNewTokens int
	Speed        float64
}

type Request struct {
	Text    string // already annotated
	Emotion string
	Params  Params
}

// Audio is an encoded audio file ready to be written to disk.
type Audio struct {
	Data []byte
	Ext  string // with leading dot
}

type Backend interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// SelectBackend resolves the backend once: the local engine when its assets
// are on disk, else the remote endpoint when configured, else nil.
func SelectBackend(cfg config.Synthesis, h *clients.HTTP) Backend {
	if LocalAssetsPresent(cfg.Local.Executable, cfg.Local.ModelDir) {
		return &Local{exe: cfg.Local.Executable, modelDir: cfg.Local.ModelDir, sampleRate: cfg.SampleRate}
	}
	if cfg.Remote.URL != "" {
		return &Remote{http: h, url: cfg.Remote.URL, apiKey: cfg.Remote.APIKey, sampleRate: cfg.SampleRate}
	}
	return nil
}

// --- local engine ---

// Local runs a TTS executable that writes raw little-endian float32 mono
// samples to stdout.
type Local struct {
	exe        string
	modelDir   string
	sampleRate int
}

func NewLocal(exe, modelDir string, sampleRate int) *Local {
	return &Local{exe: exe, modelDir: modelDir, sampleRate: sampleRate}
}

func LocalAssetsPresent(exe, modelDir string) bool {
	if exe == "" || modelDir == "" {
		return false
	}
	info, err := os.Stat(exe)
	if err != nil || info.IsDir() {
		return false
	}
	info, err = os.Stat(modelDir)
	return err == nil && info.IsDir()
}

func (l *Local) Name() string { return "local" }

func (l *Local) Synthesize(ctx context.Context, req Request) (Audio, error) {
	cmd := exec.CommandContext(ctx, l.exe,
		"--model", l.modelDir,
		"--temperature", formatFloat(req.Params.Temperature),
		"--top-p", formatFloat(req.Params.TopP),
		"--cfg-scale", formatFloat(req.Params.CFGScale),
		"--max-new-tokens", strconv.Itoa(req.Params.MaxNewTokens),
		"--text", req.Text,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Audio{}, ctx.Err()
		}
		return Audio{}, fmt.Errorf("local tts: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples, err := readFloat32(&stdout)
	if err != nil {
		return Audio{}, fmt.Errorf("local tts: %w", err)
	}
	data, err := audio.EncodeWAV(audio.FloatToPCM16(samples), l.sampleRate)
	if err != nil {
		return Audio{}, fmt.Errorf("local tts: %w", err)
	}
	return Audio{Data: data, Ext: ".wav"}, nil
}

func readFloat32(r *bytes.Buffer) ([]float32, error) {
	if r.Len()%4 != 0 {
		return nil, fmt.Errorf("sample stream is %d bytes, not a multiple of 4", r.Len())
	}
	samples := make([]float32, r.Len()/4)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return samples, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// --- remote endpoint ---

type Remote struct {
	http       *clients.HTTP
	url        string
	apiKey     string
	sampleRate int
}

func NewRemote(h *clients.HTTP, url, apiKey string, sampleRate int) *Remote {
	return &Remote{http: h, url: url, apiKey: apiKey, sampleRate: sampleRate}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Synthesize(ctx context.Context, req Request) (Audio, error) {
	resp, err := r.http.Speech(ctx, r.url, r.apiKey, clients.SpeechReq{
		Input:        req.Text,
		Temperature:  req.Params.Temperature,
		TopP:         req.Params.TopP,
		CFGScale:     req.Params.CFGScale,
		MaxNewTokens: req.Params.MaxNewTokens,
		Speed:        req.Params.Speed,
	})
	if err != nil {
		return Audio{}, err
	}
	return decodePayload(resp.Results[0].Audio, r.sampleRate)
}

var payloadExt = map[string]string{
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/mpeg":  ".mp3",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
}

// decodePayload accepts a base64 string (optionally a data: URL) holding an
// encoded file, or a JSON array of float samples.
func decodePayload(raw json.RawMessage, sampleRate int) (Audio, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Audio{}, fmt.Errorf("empty audio payload")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Audio{}, fmt.Errorf("audio payload: %w", err)
		}
		ext := ".wav"
		if strings.HasPrefix(s, "data:") {
			comma := strings.IndexByte(s, ',')
			if comma < 0 {
				return Audio{}, fmt.Errorf("audio payload: malformed data URL")
			}
			mediaType := strings.TrimSuffix(s[len("data:"):comma], ";base64")
			if e, ok := payloadExt[mediaType]; ok {
				ext = e
			}
			s = s[comma+1:]
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Audio{}, fmt.Errorf("audio payload: %w", err)
		}
		if len(data) == 0 {
			return Audio{}, fmt.Errorf("empty audio payload")
		}
		return Audio{Data: data, Ext: ext}, nil
	case '[':
		var samples []float32
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return Audio{}, fmt.Errorf("audio payload: %w", err)
		}
		data, err := audio.EncodeWAV(audio.FloatToPCM16(samples), sampleRate)
		if err != nil {
			return Audio{}, fmt.Errorf("audio payload: %w", err)
		}
		return Audio{Data: data, Ext: ".wav"}, nil
	default:
		return Audio{}, fmt.Errorf("audio payload: unsupported JSON type")
	}
}
