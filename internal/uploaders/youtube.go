package uploaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

// YouTubeUploader handles YouTube video uploads with a per-concept refresh token.
type YouTubeUploader struct {
	oauth   *oauth2.Config
	privacy string
	log     *logging.Logger

	// overridable in tests
	endpoint   string
	httpClient *http.Client
}

func NewYouTubeUploader(clientID, clientSecret, privacy string, log *logging.Logger) *YouTubeUploader {
	if privacy == "" {
		privacy = "private"
	}
	return &YouTubeUploader{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		},
		privacy: privacy,
		log:     log,
	}
}

func (y *YouTubeUploader) Platform() model.Platform { return model.PlatformYouTube }

// Upload sends the whole video in one videos.insert call.
func (y *YouTubeUploader) Upload(ctx context.Context, req *PostRequest) (*model.PostResult, error) {
	refresh := req.Keys.YouTubeRefreshToken
	if refresh == "" {
		err := errors.New("youtube refresh token not set")
		return failed(err), err
	}

	service, err := y.authenticate(ctx, refresh)
	if err != nil {
		err = fmt.Errorf("youtube authentication failed: %w", err)
		return failed(err), err
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        TagsFromHashtags(req.Hashtags),
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           y.privacy,
			MadeForKids:             false,
			SelfDeclaredMadeForKids: false,
			ContainsSyntheticMedia:  req.AIGenerated,
			ForceSendFields:         []string{"MadeForKids", "SelfDeclaredMadeForKids"},
		},
	}

	body := io.NewSectionReader(req.Video, 0, req.Size)
	uploaded, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(body).Context(ctx).Do()
	if err != nil {
		err = fmt.Errorf("youtube upload failed: %w", err)
		return failed(err), err
	}

	y.log.Infof("youtube: uploaded %s as %s (%s)", req.Name, uploaded.Id, y.privacy)
	return &model.PostResult{Success: true, Message: "uploaded video " + uploaded.Id}, nil
}

// authenticate exchanges the refresh token for an access token and builds the API client.
func (y *YouTubeUploader) authenticate(ctx context.Context, refreshToken string) (*youtube.Service, error) {
	if y.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, y.httpClient)
	}
	token, err := y.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))}
	if y.endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.endpoint))
	}
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return service, nil
}

// TagsFromHashtags keeps the '#'-prefixed words of s without the '#'.
func TagsFromHashtags(s string) []string {
	return lo.FilterMap(strings.Fields(s), func(w string, _ int) (string, bool) {
		tag := strings.TrimPrefix(w, "#")
		return tag, strings.HasPrefix(w, "#") && tag != ""
	})
}
