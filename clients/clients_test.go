package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASRUploadsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "speech.wav", hdr.Filename)
		assert.Equal(t, "RIFF", string(body))

		json.NewEncoder(w).Encode(ASRResp{
			Segments: []TransSeg{{Text: " I feel "}, {Text: "anxious today"}},
			Language: "en",
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	resp, err := NewHTTP(0).ASR(context.Background(), srv.URL+"/", path)
	require.NoError(t, err)
	assert.Equal(t, "I feel anxious today", resp.Transcript())
}

func TestASRNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	_, err := NewHTTP(0).ASR(context.Background(), srv.URL, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestEmotionDominant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmoReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "I feel anxious today", req.Text)
		json.NewEncoder(w).Encode(EmoResp{Emotions: []EmoScore{{"joy", 0.1}, {"Fear", 0.8}}})
	}))
	defer srv.Close()

	resp, err := NewHTTP(0).Emotion(context.Background(), srv.URL, "I feel anxious today")
	require.NoError(t, err)
	assert.Equal(t, "fear", resp.Dominant())

	resp.DominantEmotion = "Sadness"
	assert.Equal(t, "sadness", resp.Dominant())
}

func TestSpeechSendsBearerAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, k := range []string{"input", "temperature", "top_p", "cfg_scale", "max_new_tokens", "speed"} {
			assert.Contains(t, req, k)
		}
		w.Write([]byte(`{"results":[{"audio":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	resp, err := NewHTTP(0).Speech(context.Background(), srv.URL, "key-123", SpeechReq{Input: "[S1] hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `[0.1,0.2]`, string(resp.Results[0].Audio))
}

func TestSpeechEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(0).Speech(context.Background(), srv.URL, "", SpeechReq{Input: "x"})
	assert.Error(t, err)
}
