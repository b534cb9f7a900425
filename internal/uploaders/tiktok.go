package uploaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"video-publisher/internal/httpclient"
	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

const (
	TikTokAPIURL = "https://open.tiktokapis.com"

	tiktokSingleChunkMax = 64 << 20
	tiktokChunkSize      = 10 << 20

	// tokens expiring sooner than this are refreshed before posting
	tiktokRefreshThreshold = 3600
)

// TokenSaver persists refreshed TikTok tokens back into the concept.
type TokenSaver interface {
	SaveTikTokTokens(ctx context.Context, conceptID string, tokens model.TikTokTokens) error
}

// TikTokUploader posts through the Content Posting API with FILE_UPLOAD chunks.
type TikTokUploader struct {
	clientKey    string
	clientSecret string
	privacy      string
	baseURL      string
	http         httpclient.Doer
	tokens       TokenSaver
	log          *logging.Logger
}

func NewTikTokUploader(clientKey, clientSecret, privacy string, d httpclient.Doer, tokens TokenSaver, log *logging.Logger) *TikTokUploader {
	if privacy == "" {
		privacy = "SELF_ONLY"
	}
	return &TikTokUploader{
		clientKey:    clientKey,
		clientSecret: clientSecret,
		privacy:      privacy,
		baseURL:      TikTokAPIURL,
		http:         d,
		tokens:       tokens,
		log:          log,
	}
}

func (t *TikTokUploader) Platform() model.Platform { return model.PlatformTikTok }

func (t *TikTokUploader) Upload(ctx context.Context, req *PostRequest) (*model.PostResult, error) {
	if req.Keys.TikTok == nil || req.Keys.TikTok.RefreshToken == "" {
		err := errors.New("tiktok tokens not set")
		return failed(err), err
	}
	if req.Size <= 0 {
		err := errors.New("tiktok: empty video")
		return failed(err), err
	}
	tokens, err := t.ensureFresh(ctx, req.ConceptID, *req.Keys.TikTok)
	if err != nil {
		return failed(err), err
	}

	chunks := PlanTikTokChunks(req.Size)
	publishID, uploadURL, err := t.initUpload(ctx, tokens.AccessToken, req, chunks)
	if err != nil {
		return failed(err), err
	}
	for i, c := range chunks {
		if err := t.putChunk(ctx, uploadURL, req, c[0], c[1]); err != nil {
			err = fmt.Errorf("tiktok chunk %d/%d: %w", i+1, len(chunks), err)
			return failed(err), err
		}
	}

	status, err := t.fetchStatus(ctx, tokens.AccessToken, publishID)
	if err != nil {
		return failed(err), err
	}
	t.log.Infof("tiktok: %s uploaded in %d chunk(s), publish %s status %s", req.Name, len(chunks), publishID, status)
	return &model.PostResult{Success: true, Message: fmt.Sprintf("publish %s: %s", publishID, status)}, nil
}

// PlanTikTokChunks splits size into [start, end) ranges: one chunk up to 64 MiB, otherwise
// 10 MiB chunks with the remainder folded into the last one.
func PlanTikTokChunks(size int64) [][2]int64 {
	if size <= 0 {
		return nil
	}
	if size <= tiktokSingleChunkMax {
		return [][2]int64{{0, size}}
	}
	count := size / tiktokChunkSize
	out := make([][2]int64, 0, count)
	for i := int64(0); i < count; i++ {
		end := (i + 1) * tiktokChunkSize
		if i == count-1 {
			end = size
		}
		out = append(out, [2]int64{i * tiktokChunkSize, end})
	}
	return out
}

// ensureFresh refreshes near-expiry tokens and writes them back when they changed.
func (t *TikTokUploader) ensureFresh(ctx context.Context, conceptID string, cur model.TikTokTokens) (model.TikTokTokens, error) {
	if cur.ExpiresIn >= tiktokRefreshThreshold {
		return cur, nil
	}
	form := url.Values{
		"client_key":    {t.clientKey},
		"client_secret": {t.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {cur.RefreshToken},
	}
	resp, err := httpclient.PostForm(ctx, t.http, t.baseURL+"/v2/oauth/token/", form)
	if err != nil {
		return cur, fmt.Errorf("tiktok token refresh: %w", err)
	}
	if !resp.OK() || gjson.GetBytes(resp.Body, "access_token").String() == "" {
		msg := gjson.GetBytes(resp.Body, "error_description").String()
		if msg == "" {
			msg = "Unknown error"
		}
		return cur, fmt.Errorf("failed to refresh TikTok access token (status %d): %s", resp.StatusCode, msg)
	}

	next := mergeTikTokTokens(cur, resp.Body)
	if next.AccessToken != cur.AccessToken || next.RefreshToken != cur.RefreshToken {
		if t.tokens != nil {
			if err := t.tokens.SaveTikTokTokens(ctx, conceptID, next); err != nil {
				t.log.Warnf("tiktok: refreshed tokens not saved for %s: %v", conceptID, err)
			} else {
				t.log.Infof("tiktok: refreshed tokens saved for %s", conceptID)
			}
		}
	}
	return next, nil
}

func mergeTikTokTokens(cur model.TikTokTokens, body []byte) model.TikTokTokens {
	r := gjson.ParseBytes(body)
	setString := func(dst *string, path string) {
		if v := r.Get(path); v.Exists() && v.String() != "" {
			*dst = v.String()
		}
	}
	setInt := func(dst *int64, path string) {
		if v := r.Get(path); v.Exists() {
			*dst = v.Int()
		}
	}
	setString(&cur.AccessToken, "access_token")
	setString(&cur.RefreshToken, "refresh_token")
	setString(&cur.OpenID, "open_id")
	setString(&cur.Scope, "scope")
	setString(&cur.TokenType, "token_type")
	setInt(&cur.ExpiresIn, "expires_in")
	setInt(&cur.RefreshExpiresIn, "refresh_expires_in")
	return cur
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	PrivacyLevel string `json:"privacy_level"`
	IsAIGC       bool   `json:"is_aigc"`
}

type tiktokSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

func (t *TikTokUploader) initUpload(ctx context.Context, accessToken string, req *PostRequest, chunks [][2]int64) (publishID, uploadURL string, err error) {
	description := req.Description
	if req.Hashtags != "" {
		description += "\n\n" + req.Hashtags
	}
	body := map[string]any{
		"post_info": tiktokPostInfo{
			Title:        req.Title,
			Description:  description,
			PrivacyLevel: t.privacy,
			IsAIGC:       req.AIGenerated,
		},
		"source_info": tiktokSourceInfo{
			Source:          "FILE_UPLOAD",
			VideoSize:       req.Size,
			ChunkSize:       chunks[0][1] - chunks[0][0],
			TotalChunkCount: len(chunks),
		},
	}
	resp, err := httpclient.PostJSON(ctx, t.http, t.baseURL+"/v2/post/publish/video/init/", accessToken, body)
	if err != nil {
		return "", "", fmt.Errorf("tiktok upload init: %w", err)
	}
	if err := tiktokError(resp); err != nil {
		return "", "", fmt.Errorf("tiktok upload init failed: %w", err)
	}
	publishID = gjson.GetBytes(resp.Body, "data.publish_id").String()
	uploadURL = gjson.GetBytes(resp.Body, "data.upload_url").String()
	if publishID == "" || uploadURL == "" {
		return "", "", errors.New("tiktok upload init failed: publish_id/upload_url absent")
	}
	return publishID, uploadURL, nil
}

func (t *TikTokUploader) putChunk(ctx context.Context, uploadURL string, req *PostRequest, start, end int64) error {
	buf := make([]byte, end-start)
	if _, err := req.Video.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read video at %d: %w", start, err)
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	hr.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, req.Size))
	hr.ContentLength = end - start
	hr.Header.Set("Content-Type", "video/mp4")
	resp, err := httpclient.Send(t.http, hr)
	if err != nil {
		return err
	}
	return resp.Err()
}

func (t *TikTokUploader) fetchStatus(ctx context.Context, accessToken, publishID string) (string, error) {
	resp, err := httpclient.PostJSON(ctx, t.http, t.baseURL+"/v2/post/publish/status/fetch/", accessToken,
		map[string]string{"publish_id": publishID})
	if err != nil {
		return "", fmt.Errorf("tiktok status fetch: %w", err)
	}
	if err := tiktokError(resp); err != nil {
		return "", fmt.Errorf("tiktok status fetch failed: %w", err)
	}
	status := gjson.GetBytes(resp.Body, "data.status").String()
	if status == "FAILED" {
		return status, fmt.Errorf("tiktok publish %s failed: %s", publishID, gjson.GetBytes(resp.Body, "data.fail_reason").String())
	}
	return status, nil
}

// tiktokError reports a non-2xx reply or an error.code other than "ok".
func tiktokError(resp *httpclient.Response) error {
	code := gjson.GetBytes(resp.Body, "error.code").String()
	if resp.OK() && (code == "" || code == "ok") {
		return nil
	}
	msg := gjson.GetBytes(resp.Body, "error.message").String()
	if msg == "" {
		msg = "Unknown error"
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("%s (%s): %w", msg, code, err)
	}
	return fmt.Errorf("%s (%s)", msg, code)
}
