// Package history records every render request and the artifacts it
// produced in the agent's SQLite database.
package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	// ModeTranscript renders one GIF per transcript entry.
	ModeTranscript = "transcript"
	// ModeWholeVideo renders a single GIF of the entire video.
	ModeWholeVideo = "whole_video"
)

type Render struct {
	ID            string     `json:"id"`
	SourceURL     string     `json:"source_url"`
	VideoID       string     `json:"video_id,omitempty"`
	Status        string     `json:"status"`
	Mode          string     `json:"mode,omitempty"`
	EntryCount    int        `json:"entry_count"`
	ArtifactCount int        `json:"artifact_count"`
	Error         string     `json:"error,omitempty"`
	Artifacts     []Artifact `json:"artifacts,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Artifact is one GIF written by a render. Index is the transcript entry
// index, or 0 for a whole-video render.
type Artifact struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Text     string  `json:"text,omitempty"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func NewID() string {
	return uuid.NewString()
}
