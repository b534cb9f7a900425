package uploaders

import (
	"fmt"
	"sort"

	"video-publisher/internal"
	"video-publisher/internal/httpclient"
	"video-publisher/internal/logging"
	"video-publisher/internal/upload"
)

// Manager holds one uploader per platform.
type Manager struct {
	uploaders map[string]Uploader
}

// NewManager creates a manager holding the given uploaders.
func NewManager(uploaders ...Uploader) *Manager {
	m := &Manager{uploaders: make(map[string]Uploader)}
	for _, u := range uploaders {
		m.AddUploader(u)
	}
	return m
}

// NewDefaultManager wires the three production uploaders from config.
func NewDefaultManager(cfg internal.Config, tokens TokenSaver, accounts AccountSource, replays ReplayStore, log *logging.Logger) *Manager {
	d := httpclient.New()
	engine := upload.New(upload.ConfigFromSettings(cfg.Upload), d, log)
	return NewManager(
		NewYouTubeUploader(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.YouTubePrivacy, log),
		NewTikTokUploader(cfg.TikTokClientKey, cfg.TikTokClientSecret, cfg.TikTokPrivacy, d, tokens, log),
		NewInstagramUploader(engine, accounts, replays, cfg.ReplayPrefix, log),
	)
}

// GetUploader returns the uploader registered for platform.
func (m *Manager) GetUploader(platform string) (Uploader, error) {
	u, ok := m.uploaders[platform]
	if !ok {
		return nil, fmt.Errorf("uploader not found for platform: %s", platform)
	}
	return u, nil
}

// AddUploader adds or replaces the uploader for its platform.
func (m *Manager) AddUploader(u Uploader) {
	m.uploaders[string(u.Platform())] = u
}

func (m *Manager) AvailablePlatforms() []string {
	platforms := make([]string, 0, len(m.uploaders))
	for p := range m.uploaders {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	return platforms
}
