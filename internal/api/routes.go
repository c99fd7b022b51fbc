package api

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gifscribe/gifscribe-agent/internal/bundle"
	"github.com/gifscribe/gifscribe-agent/internal/history"
)

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

const formField = "youtube_link"

type indexPage struct {
	Link     string
	GIFPaths []string
	Error    bool
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}
	r.Use(MaxBodySize(cfg.MaxBodyBytes))

	r.Get("/health", healthHandler(cfg))

	r.Get("/", indexHandler(cfg))
	r.Post("/", formRenderHandler(cfg))
	r.Get("/download_gifs", downloadHandler(cfg))

	artifacts := "/" + cfg.Renderer.PublicPrefix() + "/*"
	r.Get(artifacts, artifactHandler(cfg))
	r.Head(artifacts, artifactHandler(cfg))

	r.Group(func(r chi.Router) {
		if cfg.APIToken != "" {
			r.Use(BearerAuth(cfg.APIToken, cfg.Logger))
		} else {
			r.Use(LoopbackGuard())
		}

		r.Get("/status", statusHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))
		r.Get("/renders/{id}", getRenderHandler(cfg))
		r.Post("/api/render", apiRenderHandler(cfg))
		r.Get("/api/bundle", apiBundleHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{State: "idle"}

		if last := cfg.Renderer.Last(); last != nil {
			resp.LastRender = SummaryToResponse(last)
			if last.Failed {
				resp.State = "error"
				resp.LastError = last.Error
			}
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(r.Context())
			if err == nil && caps != nil {
				resp.Tools = caps
				if !caps.AllOK() && resp.State == "idle" {
					resp.State = "degraded"
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteJSON(w, http.StatusOK, RendersResponse{Renders: []RenderSummaryResponse{}})
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		renders, err := cfg.History.ListRenders(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}

		resp := RendersResponse{Renders: make([]RenderSummaryResponse, len(renders))}
		for i, rn := range renders {
			resp.Renders[i] = RenderToResponse(rn)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if cfg.History == nil {
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
			return
		}

		rn, err := cfg.History.GetRender(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rn == nil {
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
			return
		}

		artifacts := rn.Artifacts
		if artifacts == nil {
			artifacts = []history.Artifact{}
		}
		WriteJSON(w, http.StatusOK, RenderDetailResponse{
			RenderSummaryResponse: RenderToResponse(rn),
			Artifacts:             artifacts,
		})
	}
}

func apiRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", "PAYLOAD_TOO_LARGE")
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		res := cfg.Renderer.Render(r.Context(), req.URL)
		if res.Paths == nil {
			res.Paths = []string{}
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

// indexHandler shows the form and whatever the last render left in the
// output directory, ordered by entry index.
func indexHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := indexPage{}
		names, err := bundle.ListArtifacts(cfg.Playback.Root())
		if err != nil {
			requestLogger(cfg.Logger, r).Warn("list artifacts failed", "error", err)
		}
		for _, name := range names {
			page.GIFPaths = append(page.GIFPaths, path.Join(cfg.Renderer.PublicPrefix(), name))
		}
		if last := cfg.Renderer.Last(); last != nil {
			page.Link = last.SourceURL
		}
		writePage(w, cfg, http.StatusOK, page)
	}
}

func formRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writePage(w, cfg, http.StatusBadRequest, indexPage{Error: true})
			return
		}

		link := r.PostFormValue(formField)
		res := cfg.Renderer.Render(r.Context(), link)
		writePage(w, cfg, http.StatusOK, indexPage{
			Link:     link,
			GIFPaths: res.Paths,
			Error:    res.Failed,
		})
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		archive, err := cfg.Renderer.Bundle(r.Context())
		if err != nil {
			requestLogger(cfg.Logger, r).Error("bundle failed", "error", err)
			writePage(w, cfg, http.StatusInternalServerError, indexPage{Error: true})
			return
		}
		if err := cfg.Playback.ServeAttachment(w, r, archive, filepath.Base(archive)); err != nil {
			requestLogger(cfg.Logger, r).Error("archive serve error", "error", err)
		}
	}
}

func apiBundleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		archive, err := cfg.Renderer.Bundle(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "BUNDLE_FAILED")
			return
		}
		if err := cfg.Playback.ServeAttachment(w, r, archive, filepath.Base(archive)); err != nil {
			requestLogger(cfg.Logger, r).Error("archive serve error", "error", err)
		}
	}
}

func artifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if err := cfg.Playback.ServeArtifact(w, r, name); err != nil {
			requestLogger(cfg.Logger, r).Error("artifact serve error", "error", err, "name", name)
		}
	}
}

func writePage(w http.ResponseWriter, cfg ServerConfig, status int, page indexPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, page); err != nil {
		cfg.Logger.Error("render page failed", "error", err)
	}
}
