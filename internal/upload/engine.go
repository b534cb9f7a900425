// Package upload drives the Instagram Reels resumable upload protocol:
// start, chunked transfer, finish, status poll, publish.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"video-publisher/internal"
	"video-publisher/internal/httpclient"
	"video-publisher/internal/logging"
)

const (
	DefaultGraphURL      = "https://graph.facebook.com/v19.0"
	DefaultVideoGraphURL = "https://graph-video.facebook.com/v19.0"
	DefaultChunkSize     = 4 * 1024 * 1024

	DefaultWidth  = 1080
	DefaultHeight = 1920
)

// Config holds the Graph endpoints and the transfer tuning of an Engine.
type Config struct {
	GraphURL      string
	VideoGraphURL string

	ChunkSize    int64
	MaxAttempts  int           // per chunk, including the first send
	RetryBase    time.Duration // delay before retry n is RetryBase*n
	ResyncDelay  time.Duration
	MaxResyncs   int // consecutive resyncs without forward progress
	PollInterval time.Duration
	MaxPolls     int // 0 polls until a terminal status
}

// DefaultConfig returns the production endpoints and limits.
func DefaultConfig() Config {
	return Config{
		GraphURL:      DefaultGraphURL,
		VideoGraphURL: DefaultVideoGraphURL,
		ChunkSize:     DefaultChunkSize,
		MaxAttempts:   5,
		RetryBase:     2 * time.Second,
		ResyncDelay:   time.Second,
		MaxResyncs:    20,
		PollInterval:  5 * time.Second,
		MaxPolls:      120,
	}
}

// ConfigFromSettings applies env tuning on top of the defaults.
func ConfigFromSettings(s internal.UploadConfig) Config {
	cfg := DefaultConfig()
	if s.ChunkSize > 0 {
		cfg.ChunkSize = s.ChunkSize
	}
	if s.MaxAttempts > 0 {
		cfg.MaxAttempts = s.MaxAttempts
	}
	if s.RetryBase > 0 {
		cfg.RetryBase = s.RetryBase
	}
	if s.ResyncDelay > 0 {
		cfg.ResyncDelay = s.ResyncDelay
	}
	if s.MaxResyncs > 0 {
		cfg.MaxResyncs = s.MaxResyncs
	}
	if s.PollInterval > 0 {
		cfg.PollInterval = s.PollInterval
	}
	if s.MaxPolls > 0 {
		cfg.MaxPolls = s.MaxPolls
	}
	return cfg
}

// Request describes one video to publish as a Reel.
type Request struct {
	AccountID   string
	AccessToken string

	Video io.ReaderAt
	Size  int64

	EntityName  string
	Caption     string
	CoverURL    string
	ThumbOffset time.Duration
	AIGenerated bool

	Width    int
	Height   int
	Duration time.Duration
}

func (r *Request) validate() error {
	switch {
	case r.AccountID == "":
		return fmt.Errorf("%w: account id is empty", ErrInvalidRequest)
	case r.AccessToken == "":
		return fmt.Errorf("%w: access token is empty", ErrInvalidRequest)
	case r.Video == nil || r.Size <= 0:
		return fmt.Errorf("%w: empty video", ErrInvalidRequest)
	}
	return nil
}

// Result identifies the published reel.
type Result struct {
	SessionID  string `json:"upload_session_id"`
	CreationID string `json:"creation_id"`
	MediaID    string `json:"id"`
	Chunks     int    `json:"chunks"`
}

// Engine runs the resumable Reels upload protocol. It keeps no state between runs.
type Engine struct {
	cfg  Config
	http httpclient.Doer
	log  *logging.Logger

	// Sleep is every delay the engine takes: retry backoff, resync backoff, poll interval.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine, filling zero config fields from DefaultConfig.
func New(cfg Config, d httpclient.Doer, log *logging.Logger) *Engine {
	def := DefaultConfig()
	if cfg.GraphURL == "" {
		cfg.GraphURL = def.GraphURL
	}
	if cfg.VideoGraphURL == "" {
		cfg.VideoGraphURL = def.VideoGraphURL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxResyncs <= 0 {
		cfg.MaxResyncs = def.MaxResyncs
	}
	return &Engine{cfg: cfg, http: d, log: log, Sleep: httpclient.Sleep}
}

func (e *Engine) Config() Config { return e.cfg }

// Run performs the whole protocol and returns the published media id.
func (e *Engine) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	s, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.Transfer(ctx, req, s); err != nil {
		return nil, err
	}
	fin, err := e.Finish(ctx, req, s)
	if err != nil {
		return nil, err
	}
	switch classifyStatus(fin.StatusCode) {
	case statusReady:
	case statusPending:
		if err := e.Poll(ctx, req, s.ID); err != nil {
			return nil, err
		}
	case statusFailed:
		return nil, &PhaseError{Phase: PhaseFinish, Code: fin.StatusCode, Err: ErrMediaFailed}
	default:
		return nil, &PhaseError{Phase: PhaseFinish, Code: fin.StatusCode, Err: ErrUnknownStatus}
	}
	mediaID, err := e.Publish(ctx, req, fin.CreationID)
	if err != nil {
		return nil, err
	}
	e.log.Infof("instagram: published media %s (creation %s, %d chunks)", mediaID, fin.CreationID, s.ChunkIndex)
	return &Result{SessionID: s.ID, CreationID: fin.CreationID, MediaID: mediaID, Chunks: s.ChunkIndex}, nil
}

// Start opens a resumable session sized for the whole video.
func (e *Engine) Start(ctx context.Context, req *Request) (*Session, error) {
	form := url.Values{
		"upload_phase": {"start"},
		"upload_type":  {"resumable"},
		"media_type":   {"REELS"},
		"file_size":    {strconv.FormatInt(req.Size, 10)},
		"access_token": {req.AccessToken},
	}
	resp, err := httpclient.PostForm(ctx, e.http, e.mediaURL(req.AccountID), form)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseStart, Err: err}
	}
	r, perr := parseStart(resp)
	if perr != nil {
		return nil, perr
	}

	s := &Session{
		ID:          r.SessionID,
		UploadURL:   r.UploadURL,
		Total:       req.Size,
		EntityName:  req.EntityName,
		Width:       req.Width,
		Height:      req.Height,
		AIGenerated: req.AIGenerated,
	}
	if s.EntityName == "" {
		s.EntityName = "reel_" + uuid.NewString()
	}
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = DefaultWidth, DefaultHeight
	}
	if req.Duration > 0 {
		s.DurationMS = req.Duration.Milliseconds()
	}
	e.log.Infof("instagram: session %s started for %d bytes", s.ID, s.Total)
	return s, nil
}

// Transfer sends chunks until the session offset reaches the total length.
func (e *Engine) Transfer(ctx context.Context, req *Request, s *Session) error {
	attempt := 1
	resyncs := 0
	furthest := s.Offset
	for !s.done() {
		start, end := s.nextRange(e.cfg.ChunkSize)
		resp, err := e.sendChunk(ctx, req, s, start, end, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return &PhaseError{Phase: PhaseChunk, Err: ctx.Err()}
			}
			if attempt >= e.cfg.MaxAttempts {
				return &PhaseError{Phase: PhaseChunk, Message: err.Error(), Err: ErrRetriesExceeded}
			}
			e.log.Warnf("instagram: chunk %d send failed (attempt %d/%d): %v", s.ChunkIndex, attempt, e.cfg.MaxAttempts, err)
			if err := e.Sleep(ctx, e.cfg.RetryBase*time.Duration(attempt)); err != nil {
				return &PhaseError{Phase: PhaseChunk, Err: err}
			}
			attempt++
			continue
		}

		verdict := classifyChunk(resp, start, end)
		switch verdict.Verdict {
		case chunkAccepted:
			s.advance(end)
			attempt, resyncs = 1, 0
			furthest = max(furthest, end)

		case chunkDesync:
			// A server offset past anything seen before means part of the chunk landed.
			if verdict.Offset > furthest {
				furthest, resyncs = verdict.Offset, 0
			} else {
				resyncs++
			}
			if resyncs > e.cfg.MaxResyncs {
				return verdict.Err.phaseError(PhaseChunk, ErrResyncLoop)
			}
			e.log.Warnf("instagram: offset desync at %d, server expects %d", start, verdict.Offset)
			s.resync(verdict.Offset, e.cfg.ChunkSize)
			attempt = 1
			if err := e.Sleep(ctx, e.cfg.ResyncDelay); err != nil {
				return &PhaseError{Phase: PhaseChunk, Err: err}
			}

		case chunkRetry:
			if attempt >= e.cfg.MaxAttempts {
				return verdict.Err.phaseError(PhaseChunk, ErrRetriesExceeded)
			}
			e.log.Warnf("instagram: chunk %d retryable failure (attempt %d/%d, status %d): %s",
				s.ChunkIndex, attempt, e.cfg.MaxAttempts, verdict.Err.Status, verdict.Err.Message)
			if err := e.Sleep(ctx, e.cfg.RetryBase*time.Duration(attempt)); err != nil {
				return &PhaseError{Phase: PhaseChunk, Err: err}
			}
			attempt++

		default:
			return verdict.Err.phaseError(PhaseChunk, nil)
		}
	}
	return nil
}

func (e *Engine) sendChunk(ctx context.Context, req *Request, s *Session, start, end int64, attempt int) (*httpclient.Response, error) {
	buf := make([]byte, end-start)
	if _, err := req.Video.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read video at %d: %w", start, err)
	}
	params, err := buildRuploadParams(s, end == s.Total, attempt)
	if err != nil {
		return nil, err
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, s.UploadURL, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Authorization", "OAuth "+req.AccessToken)
	hr.Header.Set("Offset", strconv.FormatInt(start, 10))
	hr.Header.Set("Content-Range", contentRange(start, end, s.Total))
	hr.Header.Set("Content-Type", "application/octet-stream")
	hr.Header.Set("X-Entity-Name", s.EntityName)
	hr.Header.Set("X-Entity-Length", strconv.FormatInt(s.Total, 10))
	hr.Header.Set("X-Entity-Type", "video/mp4")
	hr.Header.Set("X-Instagram-Rupload-Params", params)
	return httpclient.Send(e.http, hr)
}

// Finish closes the session and creates the media container.
func (e *Engine) Finish(ctx context.Context, req *Request, s *Session) (*FinishReply, error) {
	form := url.Values{
		"upload_phase":      {"finish"},
		"upload_session_id": {s.ID},
		"media_type":        {"REELS"},
		"video_type":        {"REELS"},
		"clips_subtype":     {"REELS"},
		"caption":           {req.Caption},
		"thumb_offset":      {strconv.FormatInt(req.ThumbOffset.Milliseconds(), 10)},
		"is_ai_generated":   {strconv.FormatBool(req.AIGenerated)},
		"share_to_feed":     {"true"},
		"access_token":      {req.AccessToken},
	}
	if req.CoverURL != "" {
		form.Set("cover_url", req.CoverURL)
	}
	resp, err := httpclient.PostForm(ctx, e.http, e.mediaURL(req.AccountID), form)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseFinish, Err: err}
	}
	r, perr := parseFinish(resp)
	if perr != nil {
		return nil, perr
	}
	e.log.Infof("instagram: session %s finished, creation id %s, status %q", s.ID, r.CreationID, r.StatusCode)
	return r, nil
}

// Poll waits until the uploaded media reaches a terminal status.
func (e *Engine) Poll(ctx context.Context, req *Request, sessionID string) error {
	query := url.Values{
		"fields":       {"status_code,status"},
		"access_token": {req.AccessToken},
	}
	for n := 1; e.cfg.MaxPolls <= 0 || n <= e.cfg.MaxPolls; n++ {
		if err := e.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return &PhaseError{Phase: PhasePoll, Err: err}
		}
		resp, err := httpclient.Get(ctx, e.http, e.cfg.VideoGraphURL+"/"+sessionID, query)
		if err != nil {
			if ctx.Err() != nil {
				return &PhaseError{Phase: PhasePoll, Err: ctx.Err()}
			}
			e.log.Warnf("instagram: status poll %d failed: %v", n, err)
			continue
		}
		if resp.StatusCode >= 500 {
			e.log.Warnf("instagram: status poll %d got %d", n, resp.StatusCode)
			continue
		}
		if !resp.OK() {
			return errorOf(resp.StatusCode, resp.Body).phaseError(PhasePoll, nil)
		}

		st := parseStatus(resp)
		switch classifyStatus(st.StatusCode) {
		case statusReady:
			return nil
		case statusPending:
			e.log.Infof("instagram: media %s status %s (poll %d)", sessionID, st.StatusCode, n)
		case statusFailed:
			return &PhaseError{Phase: PhasePoll, Status: resp.StatusCode, Code: st.StatusCode, Message: st.Detail, Err: ErrMediaFailed}
		default:
			return &PhaseError{Phase: PhasePoll, Status: resp.StatusCode, Code: st.StatusCode, Message: st.Detail, Err: ErrUnknownStatus}
		}
	}
	return &PhaseError{Phase: PhasePoll, Err: fmt.Errorf("%w after %d attempts", ErrPollLimit, e.cfg.MaxPolls)}
}

// Publish makes the container visible on the account and returns the media id.
func (e *Engine) Publish(ctx context.Context, req *Request, creationID string) (string, error) {
	form := url.Values{
		"creation_id":  {creationID},
		"access_token": {req.AccessToken},
	}
	resp, err := httpclient.PostForm(ctx, e.http, e.cfg.GraphURL+"/"+req.AccountID+"/media_publish", form)
	if err != nil {
		return "", &PhaseError{Phase: PhasePublish, Err: err}
	}
	id, perr := parsePublish(resp)
	if perr != nil {
		return "", perr
	}
	return id, nil
}

func (e *Engine) mediaURL(accountID string) string {
	return e.cfg.VideoGraphURL + "/" + accountID + "/media"
}
