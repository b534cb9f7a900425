package uploaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/samber/lo"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
	"video-publisher/internal/upload"
)

// AccountSource lists the Instagram business accounts connected to the dashboard.
type AccountSource interface {
	InstagramAccounts(ctx context.Context) ([]model.InstagramAccount, error)
}

// ReplayStore keeps JSON artifacts of failed uploads.
type ReplayStore interface {
	PutObject(ctx context.Context, key string, v any) error
}

// InstagramUploader publishes Reels through the resumable upload engine.
type InstagramUploader struct {
	engine       *upload.Engine
	accounts     AccountSource
	replays      ReplayStore
	replayPrefix string
	log          *logging.Logger
	now          func() time.Time
}

func NewInstagramUploader(engine *upload.Engine, accounts AccountSource, replays ReplayStore, replayPrefix string, log *logging.Logger) *InstagramUploader {
	return &InstagramUploader{
		engine:       engine,
		accounts:     accounts,
		replays:      replays,
		replayPrefix: replayPrefix,
		log:          log,
		now:          time.Now,
	}
}

func (i *InstagramUploader) Platform() model.Platform { return model.PlatformInstagram }

func (i *InstagramUploader) Upload(ctx context.Context, req *PostRequest) (*model.PostResult, error) {
	account, err := i.resolveAccount(ctx, req.Keys.Instagram)
	if err != nil {
		return failed(err), err
	}

	ureq := &upload.Request{
		AccountID:   account.ID,
		AccessToken: account.Token(),
		Video:       req.Video,
		Size:        req.Size,
		EntityName:  req.Name,
		Caption:     req.Caption(),
		CoverURL:    req.CoverURL,
		ThumbOffset: req.ThumbOffset,
		AIGenerated: req.AIGenerated,
		Width:       req.Width,
		Height:      req.Height,
		Duration:    req.Duration,
	}
	res, err := i.engine.Run(ctx, ureq)
	if err != nil {
		i.saveReplay(ctx, req, ureq, err)
		return failed(err), err
	}
	return &model.PostResult{Success: true, Message: "published media " + res.MediaID}, nil
}

func (i *InstagramUploader) resolveAccount(ctx context.Context, id string) (*model.InstagramAccount, error) {
	if id == "" {
		return nil, errors.New("instagram account not set")
	}
	accounts, err := i.accounts.InstagramAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instagram accounts: %w", err)
	}
	account, ok := lo.Find(accounts, func(a model.InstagramAccount) bool { return a.ID == id })
	if !ok {
		return nil, fmt.Errorf("instagram account %s not found in loaded accounts", id)
	}
	if account.Token() == "" {
		return nil, fmt.Errorf("instagram account %s has no access token", id)
	}
	return &account, nil
}

// Replay is everything needed to rerun a failed Instagram upload, minus the token.
type Replay struct {
	CreatedAt     time.Time `json:"created_at"`
	ConceptID     string    `json:"concept_id"`
	AccountID     string    `json:"account_id"`
	VideoKey      string    `json:"video_key"`
	EntityName    string    `json:"entity_name"`
	Size          int64     `json:"size"`
	Caption       string    `json:"caption"`
	CoverURL      string    `json:"cover_url,omitempty"`
	ThumbOffsetMS int64     `json:"thumb_offset_ms"`
	AIGenerated   bool      `json:"ai_generated"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	DurationMS    int64     `json:"duration_ms,omitempty"`
	FailedPhase   string    `json:"failed_phase,omitempty"`
	Error         string    `json:"error"`
}

// Request rebuilds the engine request for video with the given token.
func (r *Replay) Request(token string, video io.ReaderAt, size int64) *upload.Request {
	return &upload.Request{
		AccountID:   r.AccountID,
		AccessToken: token,
		Video:       video,
		Size:        size,
		EntityName:  r.EntityName,
		Caption:     r.Caption,
		CoverURL:    r.CoverURL,
		ThumbOffset: time.Duration(r.ThumbOffsetMS) * time.Millisecond,
		AIGenerated: r.AIGenerated,
		Width:       r.Width,
		Height:      r.Height,
		Duration:    time.Duration(r.DurationMS) * time.Millisecond,
	}
}

// ReplayKey names the artifact for a failure at t.
func ReplayKey(prefix string, t time.Time) string {
	return path.Join(prefix, fmt.Sprintf("replay_%s.json", t.UTC().Format("20060102T150405.000Z")))
}

func (i *InstagramUploader) saveReplay(ctx context.Context, req *PostRequest, ureq *upload.Request, cause error) {
	if i.replays == nil {
		return
	}
	phase, _ := upload.PhaseOf(cause)
	now := i.now()
	r := Replay{
		CreatedAt:     now.UTC(),
		ConceptID:     req.ConceptID,
		AccountID:     ureq.AccountID,
		VideoKey:      req.VideoKey,
		EntityName:    ureq.EntityName,
		Size:          ureq.Size,
		Caption:       ureq.Caption,
		CoverURL:      ureq.CoverURL,
		ThumbOffsetMS: ureq.ThumbOffset.Milliseconds(),
		AIGenerated:   ureq.AIGenerated,
		Width:         ureq.Width,
		Height:        ureq.Height,
		DurationMS:    ureq.Duration.Milliseconds(),
		FailedPhase:   string(phase),
		Error:         cause.Error(),
	}
	key := ReplayKey(i.replayPrefix, now)
	if err := i.replays.PutObject(ctx, key, r); err != nil {
		i.log.Warnf("instagram: replay artifact not saved: %v", err)
		return
	}
	i.log.Infof("instagram: replay artifact saved to %s", key)
}
