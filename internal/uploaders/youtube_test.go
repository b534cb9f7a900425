package uploaders

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

func TestTagsFromHashtags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"#a #b", []string{"a", "b"}},
		{"plain #go words", []string{"go"}},
		{"#one\n#two  #", []string{"one", "two"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := TagsFromHashtags(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("TagsFromHashtags(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type youtubeCapture struct {
	refreshToken string
	auth         string
	metadata     map[string]any
	media        []byte
	query        string // joined part values
}

func newYouTubeServer(t *testing.T, c *youtubeCapture) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			_ = r.ParseForm()
			c.refreshToken = r.PostForm.Get("refresh_token")
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"yt-access","token_type":"Bearer","expires_in":3600}`)

		case strings.HasSuffix(r.URL.Path, "/youtube/v3/videos"):
			c.auth = r.Header.Get("Authorization")
			c.query = strings.Join(r.URL.Query()["part"], ",")
			_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				t.Errorf("content type: %v", err)
				return
			}
			mr := multipart.NewReader(r.Body, params["boundary"])
			part, err := mr.NextPart()
			if err != nil {
				t.Errorf("metadata part: %v", err)
				return
			}
			_ = json.NewDecoder(part).Decode(&c.metadata)
			part, err = mr.NextPart()
			if err != nil {
				t.Errorf("media part: %v", err)
				return
			}
			c.media, _ = io.ReadAll(part)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"yt-123"}`)

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func newTestYouTube(srv *httptest.Server) *YouTubeUploader {
	y := NewYouTubeUploader("client-id", "client-secret", "", logging.Discard())
	y.oauth.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	y.endpoint = srv.URL + "/"
	y.httpClient = srv.Client()
	return y
}

func TestYouTubeUpload(t *testing.T) {
	var c youtubeCapture
	srv := newYouTubeServer(t, &c)
	defer srv.Close()
	y := newTestYouTube(srv)

	video := []byte("fake mp4 payload")
	res, err := y.Upload(context.Background(), &PostRequest{
		Keys:        model.APIKeys{YouTubeRefreshToken: "refresh-1"},
		Video:       bytes.NewReader(video),
		Size:        int64(len(video)),
		Name:        "clip.mp4",
		Title:       "T",
		Description: "D",
		Hashtags:    "#a #b",
		AIGenerated: true,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !res.Success || !strings.Contains(res.Message, "yt-123") {
		t.Errorf("result = %+v", res)
	}
	if c.refreshToken != "refresh-1" {
		t.Errorf("refresh token sent = %q", c.refreshToken)
	}
	if c.auth != "Bearer yt-access" {
		t.Errorf("authorization = %q", c.auth)
	}
	if c.query != "snippet,status" {
		t.Errorf("part = %q", c.query)
	}
	if !bytes.Equal(c.media, video) {
		t.Errorf("media = %q", c.media)
	}

	snippet, _ := c.metadata["snippet"].(map[string]any)
	status, _ := c.metadata["status"].(map[string]any)
	if snippet["title"] != "T" || snippet["description"] != "D" {
		t.Errorf("snippet = %v", snippet)
	}
	if tags, _ := snippet["tags"].([]any); len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("tags = %v", snippet["tags"])
	}
	if status["privacyStatus"] != "private" || status["madeForKids"] != false || status["selfDeclaredMadeForKids"] != false {
		t.Errorf("status = %v", status)
	}
	if status["containsSyntheticMedia"] != true {
		t.Errorf("synthetic media flag missing: %v", status)
	}
}

func TestYouTubeUploadWithoutRefreshToken(t *testing.T) {
	y := NewYouTubeUploader("id", "secret", "unlisted", logging.Discard())
	res, err := y.Upload(context.Background(), &PostRequest{})
	if err == nil || res.Success {
		t.Fatalf("expected failure, got %+v %v", res, err)
	}
}

func TestYouTubeRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	}))
	defer srv.Close()
	y := newTestYouTube(srv)

	res, err := y.Upload(context.Background(), &PostRequest{
		Keys:  model.APIKeys{YouTubeRefreshToken: "revoked"},
		Video: bytes.NewReader([]byte("x")),
		Size:  1,
	})
	if err == nil || res.Success || !strings.Contains(res.Error, "authentication") {
		t.Fatalf("result = %+v, err = %v", res, err)
	}
}
