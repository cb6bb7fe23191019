// Package stt turns recorded audio segments into text.
package stt

import (
	"context"
	"errors"

	"github.com/hergott/ai-words-assistant/internal/audio"
)

var (
	// ErrTranscription reports that a segment could not be transcribed.
	ErrTranscription = errors.New("stt: transcription failed")
	// ErrEmptyTranscript reports that transcription produced no text.
	ErrEmptyTranscript = errors.New("stt: empty transcript")
	// ErrNoAPIKey indicates the remote engine cannot be used.
	ErrNoAPIKey = errors.New("stt: no api key configured")
)

// Engine transcribes one segment at a time.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

// FailureHelp is logged when a segment produces an error or no text.
const FailureHelp = `Transcription of the audio resulted in an error or no text.
1. If you've stopped using the program, you can exit.
2. Check the log for an API error; your account might have usage
   limitations for the transcription API.
3. Consider switching your microphone. The capture program might not be able
   to activate a microphone for recording even if the system can see it.`
