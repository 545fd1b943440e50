package orchestrator

import (
	"context"

	"github.com/aryandadwal2006/PsychAI-Version-1/clients"
)

// EmotionService tags utterances with the dominant emotion reported by the
// emotion detection service.
type EmotionService struct {
	http *clients.HTTP
	url  string
}

func NewEmotionService(h *clients.HTTP, url string) *EmotionService {
	return &EmotionService{http: h, url: url}
}

func (e *EmotionService) Detect(ctx context.Context, text string) (string, error) {
	resp, err := e.http.Emotion(ctx, e.url, text)
	if err != nil {
		return "", err
	}
	return resp.Dominant(), nil
}
