package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
	"github.com/aryandadwal2006/PsychAI-Version-1/engine"
	"github.com/aryandadwal2006/PsychAI-Version-1/orchestrator"
)

// TurnResponse is returned by /api/turn and /api/reset. AudioURL is empty
// when the reply is text only.
type TurnResponse struct {
	SessionID  string              `json:"session_id"`
	Transcript []conversation.Turn `json:"transcript"`
	AudioURL   string              `json:"audio_url"`
	Status     string              `json:"status"`
}

type HealthResponse struct {
	Status    string          `json:"status"`
	SessionID string          `json:"session_id"`
	Engines   []engine.Status `json:"engines"`
}

// handleTurn runs one pipeline turn on the uploaded "audio" form file. A
// request without a file still gets a regular result carrying the pipeline's
// status message.
func (s *Server) handleTurn(c *fiber.Ctx) error {
	path, err := s.saveUpload(c)
	if err != nil {
		s.log.WithError(err).Error("cannot store recording")
		return fiber.NewError(fiber.StatusInternalServerError, "cannot store recording")
	}
	if path != "" {
		defer os.Remove(path)
	}

	s.mu.Lock()
	res := s.conv.Process(c.UserContext(), path)
	s.mu.Unlock()

	return c.JSON(toResponse(res))
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.mu.Lock()
	res := s.conv.Reset()
	s.mu.Unlock()

	return c.JSON(toResponse(res))
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.mu.Lock()
	turns := s.conv.Transcript()
	sid := s.conv.SessionID()
	s.mu.Unlock()

	return c.JSON(fiber.Map{
		"session_id": sid,
		"transcript": turns,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	statuses := make([]engine.Status, 0, len(s.engines))
	for _, e := range s.engines {
		statuses = append(statuses, e.Status())
	}

	s.mu.Lock()
	sid := s.conv.SessionID()
	s.mu.Unlock()

	return c.JSON(HealthResponse{Status: "ok", SessionID: sid, Engines: statuses})
}

// handleAudio serves a synthesized reply by file name.
func (s *Server) handleAudio(c *fiber.Ctx) error {
	name := c.Params("name")
	if name != filepath.Base(name) || !strings.HasPrefix(name, "tts_") {
		return fiber.ErrNotFound
	}
	path := filepath.Join(s.cfg.AudioDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return fiber.ErrNotFound
	}
	return c.SendFile(path)
}

// saveUpload stores the "audio" form file and returns its path, or "" when the
// request carries none.
func (s *Server) saveUpload(c *fiber.Ctx) (string, error) {
	fh, err := c.FormFile("audio")
	if err != nil {
		return "", nil
	}
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.UploadDir, "upload_"+uuid.NewString()+filepath.Ext(filepath.Base(fh.Filename)))
	if err := c.SaveFile(fh, path); err != nil {
		return "", err
	}
	return path, nil
}

func toResponse(res orchestrator.Result) TurnResponse {
	out := TurnResponse{
		SessionID:  res.SessionID,
		Transcript: res.Transcript,
		Status:     res.Status,
	}
	if out.Transcript == nil {
		out.Transcript = []conversation.Turn{}
	}
	if res.AudioPath != "" {
		out.AudioURL = "/audio/" + filepath.Base(res.AudioPath)
	}
	return out
}
