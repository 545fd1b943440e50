package orchestrator

import (
	"github.com/aryandadwal2006/PsychAI-Version-1/conversation"
)

// Status messages shown to the user.
const (
	StatusNoAudio      = "No audio recorded"
	StatusNoTranscript = "Could not transcribe audio. Please try again."
	StatusFailed       = "Something went wrong. Please try again."
)

// Turn outcomes, used as a metrics label.
const (
	OutcomeNoAudio      = "no_audio"
	OutcomeNoTranscript = "no_transcript"
	OutcomeSpoken       = "spoken"
	OutcomeTextOnly     = "text_only"
	OutcomeFailed       = "failed"
)

// Result is what one turn or reset hands back to the UI.
type Result struct {
	SessionID  string              `json:"session_id"`
	Transcript []conversation.Turn `json:"transcript"`
	AudioPath  string              `json:"audio_path,omitempty"` // "" when there is no spoken reply
	Status     string              `json:"status"`
}

// State is the stage a turn is in. Transcribing includes audio normalization,
// which the transcriber performs.
type State int

const (
	Idle State = iota
	Transcribing
	Generating
	Synthesizing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transcribing:
		return "transcribing"
	case Generating:
		return "generating"
	case Synthesizing:
		return "synthesizing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
