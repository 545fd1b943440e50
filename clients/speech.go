package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// --- Speech synthesis (POST <url>) ---
type SpeechReq struct {
	Input        string  `json:"input"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	CFGScale     float64 `json:"cfg_scale"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Speed        float64 `json:"speed"`
}

// SpeechResult.Audio is either a base64 string (possibly a data: URL) or an
// array of float samples, depending on the deployment.
type SpeechResult struct {
	Audio json.RawMessage `json:"audio"`
}
type SpeechResp struct {
	Results []SpeechResult `json:"results"`
}

func (h *HTTP) Speech(ctx context.Context, url, apiKey string, sr SpeechReq) (*SpeechResp, error) {
	b, err := json.Marshal(sr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech %s: %s", resp.Status, string(body))
	}

	var out SpeechResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("speech decode: %w", err)
	}
	if len(out.Results) == 0 || len(out.Results[0].Audio) == 0 {
		return nil, fmt.Errorf("speech decode: response has no audio")
	}
	return &out, nil
}
