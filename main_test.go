package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandadwal2006/PsychAI-Version-1/audio"
	"github.com/aryandadwal2006/PsychAI-Version-1/generation"
	"github.com/aryandadwal2006/PsychAI-Version-1/transcription"
)

type env struct {
	dir     string
	config  string
	whisper string
}

// newEnv writes a config whose transcription engine is a shell script that
// prints text, and whose speech endpoint always fails.
func newEnv(t *testing.T, text string) *env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()

	whisper := filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(whisper, []byte("#!/bin/sh\necho 'whisper_init: loading'\necho '"+text+"'\n"), 0o755))
	model := filepath.Join(dir, "ggml-base.en.bin")
	require.NoError(t, os.WriteFile(model, []byte("ggml"), 0o644))

	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(tts.Close)

	conf := fmt.Sprintf(`
pipeline:
  log_level: error
audio:
  work_dir: %[1]s/temp_audio
transcription:
  engine: whisper
  executable: %[2]s
  model: %[3]s
  threads: 1
generation:
  model_dir: %[1]s/models
synthesis:
  output_dir: %[1]s/audio_output
  remote:
    url: %[4]s
    api_key: secret-key
paths:
  data: %[1]s/data
`, dir, whisper, model, tts.URL)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	return &env{dir: dir, config: path, whisper: whisper}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTurnCommand(t *testing.T) {
	e := newEnv(t, "I feel anxious today")
	wav := filepath.Join(e.dir, "speech.wav")
	require.NoError(t, audio.WriteWAV(wav, []float32{0, 0.1, -0.1, 0}, 16000))

	out, err := run(t, "--config", e.config, "turn", wav, filepath.Join(e.dir, "missing.wav"))
	require.NoError(t, err)

	assert.Contains(t, out, "user: I feel anxious today\n")
	assert.Contains(t, out, "assistant: "+generation.FallbackResponses[0]+"\n")
	assert.NotContains(t, out, "audio:")
	assert.Contains(t, out, "missing.wav] No audio recorded")
}

func TestCheckCommand(t *testing.T) {
	e := newEnv(t, "hello")

	out, err := run(t, "--config", e.config, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "whisper-cli")
	assert.Contains(t, out, "unavailable: no backend loaded")
	assert.Contains(t, out, "remote")
}

func TestCheckFailsWithoutTranscriptionEngine(t *testing.T) {
	e := newEnv(t, "hello")
	require.NoError(t, os.Remove(e.whisper))

	_, err := run(t, "--config", e.config, "check")
	assert.ErrorIs(t, err, transcription.ErrEngineMissing)
}

func TestConfigCommandMasksKey(t *testing.T) {
	e := newEnv(t, "hello")

	out, err := run(t, "--config", e.config, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "persona: Dr. Mindwell")
	assert.Contains(t, out, "api_key: REDACTED")
	assert.NotContains(t, out, "secret-key")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "check")
	assert.Error(t, err)
}
