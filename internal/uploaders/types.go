package uploaders

import (
	"context"
	"io"
	"strings"
	"time"

	"video-publisher/internal/model"
)

// PostRequest is one video with its resolved metadata, addressed to one concept's accounts.
type PostRequest struct {
	ConceptID string
	Keys      model.APIKeys

	Video    io.ReaderAt
	Size     int64
	Name     string
	VideoKey string // object key, recorded in replay artifacts

	Title       string
	Description string // AI disclosure already applied
	Hashtags    string
	AIGenerated bool

	CoverURL    string
	ThumbOffset time.Duration

	// Probed media properties, zero when unknown.
	Width    int
	Height   int
	Duration time.Duration
}

// Caption joins the non-empty title, description and hashtags with newlines.
func (r *PostRequest) Caption() string {
	var parts []string
	for _, s := range []string{r.Title, r.Description, r.Hashtags} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Uploader publishes a video to one platform.
type Uploader interface {
	Upload(ctx context.Context, req *PostRequest) (*model.PostResult, error)
	Platform() model.Platform
}

func failed(err error) *model.PostResult {
	return &model.PostResult{Success: false, Message: "failed", Error: err.Error()}
}
