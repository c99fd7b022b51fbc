package api

import (
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/doctor"
	"github.com/gifscribe/gifscribe-agent/internal/history"
	"github.com/gifscribe/gifscribe-agent/internal/pipeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State      string               `json:"state"`
	LastError  string               `json:"last_error,omitempty"`
	LastRender *LastRenderResponse  `json:"last_render,omitempty"`
	Tools      *doctor.Capabilities `json:"tools,omitempty"`
}

type LastRenderResponse struct {
	RenderID   string   `json:"render_id,omitempty"`
	SourceURL  string   `json:"source_url"`
	Mode       string   `json:"mode,omitempty"`
	Entries    int      `json:"entries"`
	GIFPaths   []string `json:"gif_paths"`
	Failed     bool     `json:"error"`
	ElapsedMS  int64    `json:"elapsed_ms"`
	FinishedAt string   `json:"finished_at"`
}

type RenderRequest struct {
	URL string `json:"url"`
}

type BundleResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type RenderSummaryResponse struct {
	ID            string `json:"id"`
	SourceURL     string `json:"source_url"`
	VideoID       string `json:"video_id,omitempty"`
	Status        string `json:"status"`
	Mode          string `json:"mode,omitempty"`
	EntryCount    int    `json:"entry_count"`
	ArtifactCount int    `json:"artifact_count"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type RendersResponse struct {
	Renders []RenderSummaryResponse `json:"renders"`
}

type RenderDetailResponse struct {
	RenderSummaryResponse
	Artifacts []history.Artifact `json:"artifacts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RenderToResponse(r *history.Render) RenderSummaryResponse {
	return RenderSummaryResponse{
		ID:            r.ID,
		SourceURL:     r.SourceURL,
		VideoID:       r.VideoID,
		Status:        r.Status,
		Mode:          r.Mode,
		EntryCount:    r.EntryCount,
		ArtifactCount: r.ArtifactCount,
		Error:         r.Error,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}

func SummaryToResponse(s *pipeline.Summary) *LastRenderResponse {
	paths := s.Paths
	if paths == nil {
		paths = []string{}
	}
	return &LastRenderResponse{
		RenderID:   s.RenderID,
		SourceURL:  s.SourceURL,
		Mode:       s.Mode,
		Entries:    s.Entries,
		GIFPaths:   paths,
		Failed:     s.Failed,
		ElapsedMS:  s.Elapsed.Milliseconds(),
		FinishedAt: s.Finished.Format(time.RFC3339),
	}
}
