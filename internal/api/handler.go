package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
	"video-publisher/internal/posting"
)

// Concepts is the part of the store the handlers read.
type Concepts interface {
	ListConcepts(ctx context.Context) ([]string, error)
	GetConcept(ctx context.Context, id string) (*model.ConceptConfig, error)
	ListVideos(ctx context.Context, id string, f model.Folder) ([]model.VideoFile, error)
}

type Poster interface {
	Post(ctx context.Context, params posting.PostParams) (*posting.Outcome, error)
}

type Handler struct {
	concepts   Concepts
	poster     Poster
	errorsPath string
	obs        HTTPObserver
	log        *logging.Logger
}

// NewHandler builds the handlers. obs may be nil.
func NewHandler(concepts Concepts, poster Poster, errorsPath string, obs HTTPObserver, log *logging.Logger) *Handler {
	return &Handler{concepts: concepts, poster: poster, errorsPath: errorsPath, obs: obs, log: log}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

// ConceptSummary is a concept without its credentials.
type ConceptSummary struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	PostingTimes []string                `json:"postingTimes"`
	Platforms    model.Platforms         `json:"platforms"`
	Connected    map[model.Platform]bool `json:"connected"`
	PostDetails  model.PostDetails       `json:"postDetails"`
}

func (h *Handler) ListConcepts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.concepts.ListConcepts(r.Context())
	if err != nil {
		h.log.Errorf("api: list concepts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list concepts")
		return
	}
	out := make([]ConceptSummary, 0, len(ids))
	for _, id := range ids {
		cfg, err := h.concepts.GetConcept(r.Context(), id)
		if err != nil {
			h.log.Warnf("api: concept %s: %v", id, err)
			continue
		}
		out = append(out, ConceptSummary{
			ID:           id,
			Name:         cfg.Name,
			PostingTimes: cfg.PostingTimes,
			Platforms:    cfg.Platforms,
			Connected: lo.Associate(model.AllPlatforms, func(p model.Platform) (model.Platform, bool) {
				return p, cfg.APIKeys.Connected(p)
			}),
			PostDetails: cfg.PostDetails,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"concepts": out})
}

type VideosResponse struct {
	Queue  []model.VideoFile `json:"queue"`
	Posted []model.VideoFile `json:"posted"`
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conceptID")
	if _, err := h.concepts.GetConcept(r.Context(), id); err != nil {
		h.writePostError(w, err)
		return
	}
	var resp VideosResponse
	for _, f := range []model.Folder{model.FolderQueue, model.FolderPosted} {
		videos, err := h.concepts.ListVideos(r.Context(), id, f)
		if err != nil {
			h.log.Errorf("api: list %s videos for %s: %v", f, id, err)
			writeError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}
		if videos == nil {
			videos = []model.VideoFile{}
		}
		if f == model.FolderQueue {
			resp.Queue = videos
		} else {
			resp.Posted = videos
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostRequest is the JSON body of POST /api/post.
type PostRequest struct {
	ConceptID   string                     `json:"conceptId"`
	VideoID     string                     `json:"videoId,omitempty"`
	Platforms   []string                   `json:"platforms,omitempty"`
	PostDetails *model.PostDetailsOverride `json:"postDetails,omitempty"`
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConceptID == "" {
		writeError(w, http.StatusBadRequest, "conceptId is required")
		return
	}
	platforms := make([]model.Platform, 0, len(req.Platforms))
	for _, s := range req.Platforms {
		p, err := model.ParsePlatform(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		platforms = append(platforms, p)
	}

	// The run outlives a disconnected client; uploads are not abandoned halfway.
	out, err := h.poster.Post(context.WithoutCancel(r.Context()), posting.PostParams{
		ConceptID: req.ConceptID,
		VideoID:   req.VideoID,
		Platforms: platforms,
		Override:  req.PostDetails,
	})
	if err != nil {
		h.writePostError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writePostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, posting.ErrConceptNotFound),
		errors.Is(err, posting.ErrLocationNotFound),
		errors.Is(err, posting.ErrVideoNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, posting.ErrConceptBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Errorf("api: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Errors returns the tail of the errors log, 100 lines unless ?n= says otherwise.
func (h *Handler) Errors(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 5000 {
			writeError(w, http.StatusBadRequest, "n must be between 1 and 5000")
			return
		}
		n = parsed
	}
	lines, err := logging.TailLastNLines(h.errorsPath, n)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusInternalServerError, "failed to read errors log")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
