// Package store keeps concepts in the object store:
//
//	<prefix><concept>/config.json       ConceptConfig
//	<prefix><concept>/overrides.json    per-video PostDetailsOverride
//	<prefix><concept>/queue/<video>     videos waiting to be posted
//	<prefix><concept>/posted/<video>    videos posted at least once
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"video-publisher/internal"
	"video-publisher/internal/logging"
	"video-publisher/internal/model"
	"video-publisher/internal/s3"
)

var (
	ErrConceptNotFound = errors.New("concept config not found")
	ErrFolderNotFound  = errors.New("concept folder not found")
	ErrInvalidConfig   = errors.New("invalid concept config")
)

const folderMarker = ".keep"

type Store struct {
	s3c         s3.Client
	prefix      string
	accountsKey string
	validator   *schemaValidator
	log         *logging.Logger
}

func New(s3c s3.Client, cfg internal.Config, log *logging.Logger) (*Store, error) {
	v, err := newSchemaValidator()
	if err != nil {
		return nil, err
	}
	prefix := cfg.ConceptsPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{
		s3c:         s3c,
		prefix:      prefix,
		accountsKey: cfg.InstagramAccountsKey,
		validator:   v,
		log:         log,
	}, nil
}

func (s *Store) conceptPrefix(id string) string { return s.prefix + id + "/" }
func (s *Store) configKey(id string) string     { return s.conceptPrefix(id) + "config.json" }
func (s *Store) overridesKey(id string) string  { return s.conceptPrefix(id) + "overrides.json" }
func (s *Store) folderPrefix(id string, f model.Folder) string {
	return s.conceptPrefix(id) + string(f) + "/"
}

// ListConcepts returns the ids of all concepts that have a config.json.
func (s *Store) ListConcepts(ctx context.Context) ([]string, error) {
	objs, err := s.s3c.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	var ids []string
	for _, o := range objs {
		rest := strings.TrimPrefix(o.Key, s.prefix)
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "config.json" && parts[0] != "" {
			ids = append(ids, parts[0])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) GetConcept(ctx context.Context, id string) (*model.ConceptConfig, error) {
	b, _, err := s.s3c.GetBytes(ctx, s.configKey(id))
	if err != nil {
		if s3.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, id)
		}
		return nil, fmt.Errorf("read concept %s: %w", id, err)
	}
	if err := s.validator.validate(b); err != nil {
		return nil, fmt.Errorf("concept %s: %w", id, err)
	}
	var cfg model.ConceptConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode concept %s: %w", id, err)
	}
	return &cfg, nil
}

func (s *Store) SaveConcept(ctx context.Context, id string, cfg *model.ConceptConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := s.validator.validate(b); err != nil {
		return fmt.Errorf("concept %s: %w", id, err)
	}
	if err := s.s3c.PutBytes(ctx, s.configKey(id), b, "application/json"); err != nil {
		return fmt.Errorf("write concept %s: %w", id, err)
	}
	return nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// CreateConcept writes a default config and the queue/posted folders. Returns the new concept id.
func (s *Store) CreateConcept(ctx context.Context, name string) (string, *model.ConceptConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("%w: empty name", ErrInvalidConfig)
	}
	id := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	existing, err := s.ListConcepts(ctx)
	if err != nil {
		return "", nil, err
	}
	if id == "" || lo.Contains(existing, id) {
		id = strings.TrimPrefix(id+"-", "-") + uuid.NewString()[:8]
	}

	cfg := &model.ConceptConfig{
		Name:         name,
		Schedule:     "0 8 * * *",
		PostingTimes: []string{"08:00"},
		Platforms:    model.Platforms{YouTube: true},
		PostDetails:  model.PostDetails{Title: name},
	}
	if err := s.SaveConcept(ctx, id, cfg); err != nil {
		return "", nil, err
	}
	for _, f := range []model.Folder{model.FolderQueue, model.FolderPosted} {
		if err := s.s3c.PutBytes(ctx, s.folderPrefix(id, f)+folderMarker, nil, "application/octet-stream"); err != nil {
			return "", nil, fmt.Errorf("create %s folder: %w", f, err)
		}
	}
	s.log.Infof("store: created concept %s (%s)", id, name)
	return id, cfg, nil
}

func (s *Store) DeleteConcept(ctx context.Context, id string) error {
	objs, err := s.s3c.List(ctx, s.conceptPrefix(id))
	if err != nil {
		return fmt.Errorf("list concept %s: %w", id, err)
	}
	for _, o := range objs {
		if err := s.s3c.Delete(ctx, o.Key); err != nil {
			return fmt.Errorf("delete %s: %w", o.Key, err)
		}
	}
	return nil
}

// EnsureFolders fails with ErrFolderNotFound when the queue or posted folder is missing.
func (s *Store) EnsureFolders(ctx context.Context, id string) error {
	for _, f := range []model.Folder{model.FolderQueue, model.FolderPosted} {
		objs, err := s.s3c.List(ctx, s.folderPrefix(id, f))
		if err != nil {
			return fmt.Errorf("list %s folder: %w", f, err)
		}
		if len(objs) == 0 {
			return fmt.Errorf("%w: %s/%s", ErrFolderNotFound, id, f)
		}
	}
	return nil
}

func (s *Store) ListVideos(ctx context.Context, id string, f model.Folder) ([]model.VideoFile, error) {
	prefix := s.folderPrefix(id, f)
	objs, err := s.s3c.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s videos: %w", f, err)
	}
	overrides, err := s.Overrides(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []model.VideoFile
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, prefix)
		if name == "" || name == folderMarker || strings.Contains(name, "/") {
			continue
		}
		v := model.VideoFile{
			ID:          name,
			Name:        name,
			Size:        o.Size,
			CreatedTime: o.LastModified,
			Folder:      f,
			Key:         o.Key,
		}
		if ov, ok := overrides[name]; ok {
			v.PostDetailsOverride = &ov
		}
		out = append(out, v)
	}
	return out, nil
}

// FindVideo returns nil without error when the folder has no such video.
func (s *Store) FindVideo(ctx context.Context, id string, f model.Folder, videoID string) (*model.VideoFile, error) {
	videos, err := s.ListVideos(ctx, id, f)
	if err != nil {
		return nil, err
	}
	v, ok := lo.Find(videos, func(v model.VideoFile) bool { return v.ID == videoID })
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) Enqueue(ctx context.Context, id, name string, r io.Reader) (*model.VideoFile, error) {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" || name == folderMarker {
		return nil, fmt.Errorf("invalid video name %q", name)
	}
	key := s.folderPrefix(id, model.FolderQueue) + name
	if err := s.s3c.Upload(ctx, key, r, "video/mp4"); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return s.FindVideo(ctx, id, model.FolderQueue, name)
}

func (s *Store) ReadVideo(ctx context.Context, v *model.VideoFile) ([]byte, error) {
	b, err := s.s3c.Download(ctx, v.Key)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", v.Key, err)
	}
	return b, nil
}

// MoveVideo copies the object into the target folder and removes the original.
func (s *Store) MoveVideo(ctx context.Context, id string, v *model.VideoFile, to model.Folder) error {
	if v.Folder == to {
		return nil
	}
	dst := s.folderPrefix(id, to) + v.Name
	if err := s.s3c.Copy(ctx, v.Key, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", v.Key, dst, err)
	}
	if err := s.s3c.Delete(ctx, v.Key); err != nil {
		return fmt.Errorf("delete %s: %w", v.Key, err)
	}
	v.Key = dst
	v.Folder = to
	return nil
}

func (s *Store) Overrides(ctx context.Context, id string) (map[string]model.PostDetailsOverride, error) {
	out := map[string]model.PostDetailsOverride{}
	if _, err := s.s3c.ReadJSON(ctx, s.overridesKey(id), &out); err != nil {
		return nil, fmt.Errorf("read overrides for %s: %w", id, err)
	}
	return out, nil
}

// SetOverride stores a per-video override; an empty override removes the entry.
func (s *Store) SetOverride(ctx context.Context, id, videoID string, o *model.PostDetailsOverride) error {
	all, err := s.Overrides(ctx, id)
	if err != nil {
		return err
	}
	if o.IsEmpty() {
		delete(all, videoID)
	} else {
		all[videoID] = *o
	}
	return s.s3c.WriteJSON(ctx, s.overridesKey(id), all)
}

// InstagramAccounts reads the shared accounts file. A missing file yields no accounts.
func (s *Store) InstagramAccounts(ctx context.Context) ([]model.InstagramAccount, error) {
	var accounts []model.InstagramAccount
	if _, err := s.s3c.ReadJSON(ctx, s.accountsKey, &accounts); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.accountsKey, err)
	}
	return accounts, nil
}

// SaveInstagramAccount inserts or replaces the account with the same id.
func (s *Store) SaveInstagramAccount(ctx context.Context, acc model.InstagramAccount) error {
	accounts, err := s.InstagramAccounts(ctx)
	if err != nil {
		return err
	}
	accounts = append(lo.Reject(accounts, func(a model.InstagramAccount, _ int) bool { return a.ID == acc.ID }), acc)
	return s.s3c.WriteJSON(ctx, s.accountsKey, accounts)
}

// SaveTikTokTokens re-reads the concept and replaces only its TikTok token material.
func (s *Store) SaveTikTokTokens(ctx context.Context, id string, tokens model.TikTokTokens) error {
	cfg, err := s.GetConcept(ctx, id)
	if err != nil {
		return err
	}
	cfg.APIKeys.TikTok = &tokens
	return s.SaveConcept(ctx, id, cfg)
}

func (s *Store) SaveYouTubeCredentials(ctx context.Context, id, refreshToken, channelID, channelName string) error {
	cfg, err := s.GetConcept(ctx, id)
	if err != nil {
		return err
	}
	cfg.APIKeys.YouTubeRefreshToken = refreshToken
	if channelID != "" {
		cfg.APIKeys.YouTubeChannelID = channelID
	}
	if channelName != "" {
		cfg.APIKeys.YouTubeChannelName = channelName
	}
	return s.SaveConcept(ctx, id, cfg)
}

// PutObject stores an arbitrary JSON artifact outside the concept tree.
func (s *Store) PutObject(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return s.s3c.Upload(ctx, key, bytes.NewReader(b), "application/json")
}

// GetObject decodes a JSON artifact written by PutObject.
func (s *Store) GetObject(ctx context.Context, key string, out any) error {
	found, err := s.s3c.ReadJSON(ctx, key, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", key, s3.ErrNotExist)
	}
	return nil
}
