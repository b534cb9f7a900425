// Package posting runs one posting attempt for a concept: pick a video, resolve its metadata,
// hand it to every target platform and move it out of the queue when something went live.
package posting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"video-publisher/internal/ai"
	"video-publisher/internal/logging"
	"video-publisher/internal/metrics"
	"video-publisher/internal/model"
	"video-publisher/internal/notify"
	"video-publisher/internal/scheduler"
	"video-publisher/internal/store"
	"video-publisher/internal/uploaders"
	"video-publisher/internal/video"
)

var (
	ErrConceptNotFound  = store.ErrConceptNotFound
	ErrLocationNotFound = store.ErrFolderNotFound
	ErrVideoNotFound    = errors.New("video not found")
	ErrConceptBusy      = errors.New("concept is already posting")
)

// moveTimeout bounds the queue to posted move, which runs even after ctx is cancelled.
const moveTimeout = 2 * time.Minute

// Store is the part of *store.Store the orchestrator reads and writes.
type Store interface {
	GetConcept(ctx context.Context, id string) (*model.ConceptConfig, error)
	EnsureFolders(ctx context.Context, id string) error
	ListVideos(ctx context.Context, id string, f model.Folder) ([]model.VideoFile, error)
	ReadVideo(ctx context.Context, v *model.VideoFile) ([]byte, error)
	MoveVideo(ctx context.Context, id string, v *model.VideoFile, to model.Folder) error
}

type TitleGenerator interface {
	GenerateTitle(ctx context.Context, videoName string, details model.PostDetails) (string, error)
}

type Prober interface {
	Probe(ctx context.Context, data []byte) (*video.Info, error)
}

type Recorder interface {
	ObservePost(concept, platform string, success bool, took time.Duration)
	ObserveRun(concept, outcome string)
}

// Options holds the optional collaborators. Nil fields are skipped.
type Options struct {
	Selection string
	Titles    TitleGenerator
	Prober    Prober
	Notifier  notify.Notifier
	Metrics   Recorder
}

type PostParams struct {
	ConceptID string
	VideoID   string           // empty: select from the queue
	Platforms []model.Platform // empty: the concept's enabled platforms
	Override  *model.PostDetailsOverride
}

// Outcome is what one run did. Video is nil when the queue was empty.
type Outcome struct {
	RunID     string            `json:"runId"`
	ConceptID string            `json:"conceptId"`
	Concept   string            `json:"concept"`
	Video     *model.VideoFile  `json:"video,omitempty"`
	Origin    model.Folder      `json:"origin,omitempty"`
	Details   model.PostDetails `json:"details"`
	Results   model.PostResults `json:"results"`
	Skipped   []model.Platform  `json:"skipped,omitempty"` // enabled but without credentials
	Moved     bool              `json:"moved"`
}

// Poster runs orchestrator runs, at most one at a time per concept.
type Poster struct {
	store     Store
	uploaders *uploaders.Manager
	opts      Options
	log       *logging.Logger

	mu      sync.Mutex
	running map[string]bool

	intn func(int) int
	now  func() time.Time
}

// New creates a Poster over the store and the uploader registry.
func New(st Store, m *uploaders.Manager, log *logging.Logger, opts Options) *Poster {
	return &Poster{store: st, uploaders: m, opts: opts, log: log, running: map[string]bool{}, intn: randomIndex, now: time.Now}
}

// Post performs one orchestrator run. Platform failures land in Outcome.Results; the returned
// error is reserved for problems with the concept itself. A second run for a concept that is
// already posting fails with ErrConceptBusy.
func (p *Poster) Post(ctx context.Context, params PostParams) (*Outcome, error) {
	if !p.acquire(params.ConceptID) {
		return nil, fmt.Errorf("%w: %s", ErrConceptBusy, params.ConceptID)
	}
	defer p.release(params.ConceptID)

	started := p.now()
	out := &Outcome{RunID: uuid.NewString(), ConceptID: params.ConceptID, Results: model.PostResults{}}
	err := p.post(ctx, params, out)
	p.finish(context.WithoutCancel(ctx), out, err, started)
	return out, err
}

func (p *Poster) acquire(conceptID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[conceptID] {
		return false
	}
	p.running[conceptID] = true
	return true
}

func (p *Poster) release(conceptID string) {
	p.mu.Lock()
	delete(p.running, conceptID)
	p.mu.Unlock()
}

// RunConcept is the scheduler's entry point: pick a video and post it everywhere enabled.
func (p *Poster) RunConcept(ctx context.Context, conceptID string) error {
	out, err := p.Post(ctx, PostParams{ConceptID: conceptID})
	if err != nil {
		return err
	}
	if out.Video != nil && !out.Results.AnySuccess() && len(out.Results) > 0 {
		p.log.Warnf("posting: %s: no platform accepted %s, it stays in %s", conceptID, out.Video.Name, out.Origin)
	}
	return nil
}

func (p *Poster) post(ctx context.Context, params PostParams, out *Outcome) error {
	raw, err := p.store.GetConcept(ctx, params.ConceptID)
	if err != nil {
		return err
	}
	cfg := scheduler.WithNormalizedPostingTimes(*raw)
	out.Concept = lo.Ternary(cfg.Name != "", cfg.Name, params.ConceptID)

	if err := p.store.EnsureFolders(ctx, params.ConceptID); err != nil {
		return err
	}

	v, err := p.resolveVideo(ctx, params)
	if err != nil {
		return err
	}
	if v == nil {
		p.log.Infof("posting: %s: queue is empty", params.ConceptID)
		return nil
	}
	out.Video, out.Origin = v, v.Folder

	details := EffectiveDetails(cfg.PostDetails, v.PostDetailsOverride, params.Override)
	if details.Title == "" {
		details.Title = p.fallbackTitle(ctx, v.Name, details)
	}
	details.Description = ApplyAILabel(details.Description, details.AILabel)
	out.Details = details

	data, err := p.store.ReadVideo(ctx, v)
	if err != nil {
		return err
	}
	req := &uploaders.PostRequest{
		ConceptID:   params.ConceptID,
		Keys:        cfg.APIKeys,
		Video:       bytes.NewReader(data),
		Size:        int64(len(data)),
		Name:        v.Name,
		VideoKey:    v.Key,
		Title:       details.Title,
		Description: details.Description,
		Hashtags:    details.Hashtags,
		AIGenerated: details.AILabel,
	}
	p.probe(ctx, req, data)

	for _, pl := range targetPlatforms(cfg.Platforms, params.Platforms) {
		if !cfg.APIKeys.Connected(pl) {
			p.log.Warnf("posting: %s: %s is not connected, skipping", params.ConceptID, pl)
			out.Skipped = append(out.Skipped, pl)
			continue
		}
		out.Results[pl] = p.postOne(ctx, pl, req)
	}

	if out.Origin == model.FolderQueue && out.Results.AnySuccess() {
		// A published video must leave the queue even if ctx was cancelled meanwhile.
		moveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), moveTimeout)
		defer cancel()
		if err := p.store.MoveVideo(moveCtx, params.ConceptID, v, model.FolderPosted); err != nil {
			return fmt.Errorf("move %s to posted: %w", v.Name, err)
		}
		out.Moved = true
		p.log.Infof("posting: %s: moved %s to posted", params.ConceptID, v.Name)
	}
	return nil
}

func (p *Poster) resolveVideo(ctx context.Context, params PostParams) (*model.VideoFile, error) {
	queue, err := p.store.ListVideos(ctx, params.ConceptID, model.FolderQueue)
	if err != nil {
		return nil, err
	}
	if params.VideoID == "" {
		return SelectVideo(queue, p.opts.Selection, p.intn), nil
	}
	if v, ok := lo.Find(queue, func(v model.VideoFile) bool { return v.ID == params.VideoID }); ok {
		return &v, nil
	}
	posted, err := p.store.ListVideos(ctx, params.ConceptID, model.FolderPosted)
	if err != nil {
		return nil, err
	}
	if v, ok := lo.Find(posted, func(v model.VideoFile) bool { return v.ID == params.VideoID }); ok {
		return &v, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrVideoNotFound, params.VideoID, params.ConceptID)
}

func (p *Poster) fallbackTitle(ctx context.Context, name string, details model.PostDetails) string {
	if p.opts.Titles != nil {
		title, err := p.opts.Titles.GenerateTitle(ctx, name, details)
		if err == nil && title != "" {
			return title
		}
		if err != nil {
			p.log.Warnf("posting: title generation failed for %s: %v", name, err)
		}
	}
	return ai.FallbackTitle(name)
}

func (p *Poster) probe(ctx context.Context, req *uploaders.PostRequest, data []byte) {
	if p.opts.Prober == nil {
		return
	}
	info, err := p.opts.Prober.Probe(ctx, data)
	if err != nil {
		p.log.Warnf("posting: probe %s: %v", req.Name, err)
		return
	}
	req.Width, req.Height, req.Duration = info.Width, info.Height, info.Duration
}

// postOne never fails the run: errors and panics become a failure result.
func (p *Poster) postOne(ctx context.Context, pl model.Platform, req *uploaders.PostRequest) (res model.PostResult) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("posting: %s uploader panicked: %v", pl, r)
			res = model.PostResult{Success: false, Message: "failed", Error: fmt.Sprintf("panic: %v", r)}
		}
		if p.opts.Metrics != nil {
			p.opts.Metrics.ObservePost(req.ConceptID, string(pl), res.Success, p.now().Sub(start))
		}
	}()

	u, err := p.uploaders.GetUploader(string(pl))
	if err != nil {
		return model.PostResult{Success: false, Message: "failed", Error: err.Error()}
	}

	p.log.Infof("posting: %s: uploading %s to %s", req.ConceptID, req.Name, pl)
	r, err := u.Upload(ctx, req)
	switch {
	case err != nil:
		p.log.Errorf("posting: %s: %s upload failed: %v", req.ConceptID, pl, err)
		msg := "failed"
		if r != nil && r.Message != "" {
			msg = r.Message
		}
		return model.PostResult{Success: false, Message: msg, Error: err.Error()}
	case r == nil:
		return model.PostResult{Success: false, Message: "failed", Error: "uploader returned no result"}
	}
	p.log.Infof("posting: %s: %s: %s", req.ConceptID, pl, r.Message)
	return *r
}

// targetPlatforms keeps the fixed posting order. A caller selection replaces the concept's
// enabled set.
func targetPlatforms(enabled model.Platforms, selected []model.Platform) []model.Platform {
	if len(selected) > 0 {
		enabled = model.PlatformsOf(selected...)
	}
	return enabled.Enabled()
}

func (p *Poster) finish(ctx context.Context, out *Outcome, err error, started time.Time) {
	outcome := metrics.RunPosted
	switch {
	case err != nil:
		outcome = metrics.RunFailed
		p.log.Errorf("posting: %s: %v", out.ConceptID, err)
	case out.Video == nil:
		outcome = metrics.RunEmpty
	case !out.Results.AnySuccess():
		outcome = metrics.RunFailed
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.ObserveRun(out.ConceptID, outcome)
	}
	if p.opts.Notifier == nil {
		return
	}
	r := notify.Report{
		RunID:       out.RunID,
		ConceptID:   out.ConceptID,
		ConceptName: out.Concept,
		Origin:      out.Origin,
		Moved:       out.Moved,
		Results:     out.Results,
		StartedAt:   started,
		Took:        p.now().Sub(started),
	}
	if out.Video != nil {
		r.Video = out.Video.Name
	}
	if err != nil {
		r.Error = err.Error()
	}
	if nerr := p.opts.Notifier.Notify(ctx, r); nerr != nil {
		p.log.Warnf("posting: notify %s: %v", out.ConceptID, nerr)
	}
}
