package transcription

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryandadwal2006/PsychAI-Version-1/audio"
	"github.com/aryandadwal2006/PsychAI-Version-1/config"
)

type fakeEngine struct {
	calls  atomic.Int32
	gotWAV atomic.Value
	run    func(ctx context.Context, wav string) (string, error)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Run(ctx context.Context, wav string) (string, error) {
	f.calls.Add(1)
	f.gotWAV.Store(wav)
	return f.run(ctx, wav)
}

type passthrough struct{ err error }

func (p passthrough) Normalize(_ context.Context, raw string) (string, error) { return raw, p.err }

func tempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func newTestService(e Engine, n Normalizer, timeout time.Duration) *Service {
	logger, _ := test.NewNullLogger()
	return NewService(e, n, timeout, logger, nil)
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "I feel anxious today\n", "I feel anxious today"},
		{"drops diagnostics", "whisper_init_from_file: loading model\n[00:00.000 --> 00:02.000]\n  I feel  \n\nanxious today\nwhisper_print_timings: total\n", "I feel anxious today"},
		{"bracketed tags", "[BLANK_AUDIO]\n", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOutput(tt.raw, whisperPrefix))
		})
	}
}

func TestTranscribeReturnsEngineText(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, string) (string, error) { return "  I feel anxious today ", nil }}
	s := newTestService(e, passthrough{}, time.Second)

	assert.Equal(t, "I feel anxious today", s.Transcribe(context.Background(), tempAudio(t)))
	assert.EqualValues(t, 1, e.calls.Load())
}

func TestTranscribeEmptyInputSkipsEngine(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, string) (string, error) { return "should not run", nil }}
	s := newTestService(e, passthrough{}, time.Second)

	assert.Equal(t, "", s.Transcribe(context.Background(), ""))
	assert.Equal(t, "", s.Transcribe(context.Background(), "   "))
	assert.Equal(t, "", s.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav")))
	assert.Equal(t, "", s.Transcribe(context.Background(), t.TempDir()))
	assert.EqualValues(t, 0, e.calls.Load())
}

func TestTranscribeTimeoutIsBounded(t *testing.T) {
	// ignores its context entirely
	e := &fakeEngine{run: func(context.Context, string) (string, error) {
		time.Sleep(5 * time.Second)
		return "too late", nil
	}}
	s := newTestService(e, passthrough{}, 100*time.Millisecond)

	start := time.Now()
	got := s.Transcribe(context.Background(), tempAudio(t))
	assert.Equal(t, "", got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTranscribeEngineErrorAndPanic(t *testing.T) {
	failing := &fakeEngine{run: func(context.Context, string) (string, error) { return "", fmt.Errorf("boom") }}
	assert.Equal(t, "", newTestService(failing, passthrough{}, time.Second).Transcribe(context.Background(), tempAudio(t)))

	panicking := &fakeEngine{run: func(context.Context, string) (string, error) { panic("engine crashed") }}
	assert.Equal(t, "", newTestService(panicking, passthrough{}, time.Second).Transcribe(context.Background(), tempAudio(t)))
}

func TestTranscribeContinuesOnDegradedConversion(t *testing.T) {
	e := &fakeEngine{run: func(context.Context, string) (string, error) { return "still heard", nil }}
	s := newTestService(e, passthrough{err: fmt.Errorf("%w: ffmpeg missing", audio.ErrConversionDegraded)}, time.Second)

	path := tempAudio(t)
	assert.Equal(t, "still heard", s.Transcribe(context.Background(), path))
	assert.Equal(t, path, e.gotWAV.Load())
}

func ffmpegAdapter(t *testing.T, body string) (*audio.Adapter, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	ffmpeg := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpeg, []byte("#!/bin/sh\n"+body), 0o755))
	work := filepath.Join(dir, "temp_audio")
	logger, _ := test.NewNullLogger()
	return audio.NewAdapter(audio.AdapterConfig{FFmpeg: ffmpeg, WorkDir: work}, logger), work
}

func TestTranscribeRemovesConvertedAudio(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.wav")
	require.NoError(t, audio.WriteWAV(fixture, []float32{0.2, -0.2}, 16000))
	t.Setenv("FAKE_FFMPEG_SOURCE", fixture)
	adapter, work := ffmpegAdapter(t, "for a; do last=\"$a\"; done\ncp \"$FAKE_FFMPEG_SOURCE\" \"$last\"\n")

	var present atomic.Int32
	e := &fakeEngine{run: func(_ context.Context, wav string) (string, error) {
		if _, err := os.Stat(wav); err == nil {
			present.Add(1)
		}
		return "hello", nil
	}}
	s := newTestService(e, adapter, time.Second)

	for i := 0; i < 3; i++ {
		in := filepath.Join(t.TempDir(), fmt.Sprintf("upload_%d.webm", i))
		require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))
		assert.Equal(t, "hello", s.Transcribe(context.Background(), in))
		assert.NotEqual(t, in, e.gotWAV.Load())
	}
	assert.EqualValues(t, 3, present.Load(), "engine sees the converted file")

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscribeKeepsCanonicalInput(t *testing.T) {
	adapter, _ := ffmpegAdapter(t, "exit 1\n")
	e := &fakeEngine{run: func(context.Context, string) (string, error) { return "hello", nil }}
	s := newTestService(e, adapter, time.Second)

	in := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, audio.WriteWAV(in, []float32{0.1}, 16000))
	assert.Equal(t, "hello", s.Transcribe(context.Background(), in))
	assert.FileExists(t, in)
}

func TestTranscribeTimeoutCoversConversion(t *testing.T) {
	adapter, _ := ffmpegAdapter(t, "sleep 3\nexit 1\n")
	e := &fakeEngine{run: func(context.Context, string) (string, error) { return "hi", nil }}
	s := newTestService(e, adapter, 200*time.Millisecond)

	in := filepath.Join(t.TempDir(), "speech.webm")
	require.NoError(t, os.WriteFile(in, []byte("webm"), 0o644))

	start := time.Now()
	got := s.Transcribe(context.Background(), in)
	assert.Equal(t, "", got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewEngineMissingAssets(t *testing.T) {
	dir := t.TempDir()

	_, err := NewEngine(config.Transcription{
		Engine:     "whisper",
		Executable: filepath.Join(dir, "whisper-cli"),
		Model:      filepath.Join(dir, "ggml-base.en.bin"),
		Threads:    4,
	}, config.Services{}, nil)
	assert.ErrorIs(t, err, ErrEngineMissing)

	_, err = NewEngine(config.Transcription{Engine: "remote"}, config.Services{}, nil)
	assert.ErrorIs(t, err, ErrEngineMissing)
}

func whisperScript(t *testing.T, body string) (exe, model string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	exe = filepath.Join(dir, "whisper-cli")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+body), 0o755))
	model = filepath.Join(dir, "ggml-base.en.bin")
	require.NoError(t, os.WriteFile(model, []byte("ggml"), 0o644))
	return exe, model
}

func TestWhisperCLI(t *testing.T) {
	exe, model := whisperScript(t, `
echo "whisper_init_from_file_with_params: loading model"
echo "[00:00:00.000 --> 00:00:02.000]"
echo " I feel anxious today"
echo "whisper_print_timings: total time"
`)
	w, err := NewWhisperCLI(exe, model, 4)
	require.NoError(t, err)

	s := newTestService(w, passthrough{}, 5*time.Second)
	assert.Equal(t, "I feel anxious today", s.Transcribe(context.Background(), tempAudio(t)))
}

func TestWhisperCLINonZeroExit(t *testing.T) {
	exe, model := whisperScript(t, "echo 'error: failed to read WAV file' >&2\nexit 3\n")
	w, err := NewWhisperCLI(exe, model, 4)
	require.NoError(t, err)

	_, runErr := w.Run(context.Background(), tempAudio(t))
	require.Error(t, runErr)
	assert.Equal(t, "exit_status", classify(runErr))
	assert.Contains(t, runErr.Error(), "failed to read WAV file")

	s := newTestService(w, passthrough{}, 5*time.Second)
	assert.Equal(t, "", s.Transcribe(context.Background(), tempAudio(t)))
}
