package model

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformYouTube   Platform = "YouTube"
	PlatformTikTok    Platform = "TikTok"
	PlatformInstagram Platform = "Instagram"
)

// AllPlatforms is the posting order used by the orchestrator.
var AllPlatforms = []Platform{PlatformYouTube, PlatformTikTok, PlatformInstagram}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range AllPlatforms {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Platforms is the enabled-platform set as stored in config.json.
type Platforms struct {
	YouTube   bool `json:"YouTube"`
	TikTok    bool `json:"TikTok"`
	Instagram bool `json:"Instagram"`
}

func (p Platforms) Has(pl Platform) bool {
	switch pl {
	case PlatformYouTube:
		return p.YouTube
	case PlatformTikTok:
		return p.TikTok
	case PlatformInstagram:
		return p.Instagram
	}
	return false
}

func (p Platforms) Enabled() []Platform {
	var out []Platform
	for _, pl := range AllPlatforms {
		if p.Has(pl) {
			out = append(out, pl)
		}
	}
	return out
}

func PlatformsOf(list ...Platform) Platforms {
	var p Platforms
	for _, pl := range list {
		switch pl {
		case PlatformYouTube:
			p.YouTube = true
		case PlatformTikTok:
			p.TikTok = true
		case PlatformInstagram:
			p.Instagram = true
		}
	}
	return p
}

type TikTokTokens struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	DisplayName      string `json:"display_name,omitempty"`
	Username         string `json:"username,omitempty"`
	AvatarURL        string `json:"avatar_url,omitempty"`
}

type APIKeys struct {
	YouTubeRefreshToken string        `json:"youtube_refresh_token,omitempty"`
	YouTubeChannelID    string        `json:"youtube_channel_id,omitempty"`
	YouTubeChannelName  string        `json:"youtube_channel_name,omitempty"`
	TikTok              *TikTokTokens `json:"tiktok,omitempty"`
	Instagram           string        `json:"instagram,omitempty"` // instagram business account id
}

// Connected reports whether the concept holds credentials for p.
func (k APIKeys) Connected(p Platform) bool {
	switch p {
	case PlatformYouTube:
		return k.YouTubeRefreshToken != ""
	case PlatformTikTok:
		return k.TikTok != nil && k.TikTok.RefreshToken != ""
	case PlatformInstagram:
		return k.Instagram != ""
	}
	return false
}

type PostDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Hashtags    string `json:"hashtags"`
	AILabel     bool   `json:"aiLabel"`
}

// PostDetailsOverride replaces only the fields that are set.
type PostDetailsOverride struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Hashtags    *string `json:"hashtags,omitempty"`
	AILabel     *bool   `json:"aiLabel,omitempty"`
}

func (o *PostDetailsOverride) ApplyTo(d PostDetails) PostDetails {
	if o == nil {
		return d
	}
	if o.Title != nil {
		d.Title = *o.Title
	}
	if o.Description != nil {
		d.Description = *o.Description
	}
	if o.Hashtags != nil {
		d.Hashtags = *o.Hashtags
	}
	if o.AILabel != nil {
		d.AILabel = *o.AILabel
	}
	return d
}

func (o *PostDetailsOverride) IsEmpty() bool {
	return o == nil || (o.Title == nil && o.Description == nil && o.Hashtags == nil && o.AILabel == nil)
}

type ConceptConfig struct {
	Name         string      `json:"name"`
	Schedule     string      `json:"schedule,omitempty"` // legacy 5-field cron, derived from PostingTimes[0]
	PostingTimes []string    `json:"postingTimes"`
	Platforms    Platforms   `json:"platforms"`
	APIKeys      APIKeys     `json:"apiKeys"`
	PostDetails  PostDetails `json:"postDetails"`
}

type Folder string

const (
	FolderQueue  Folder = "queue"
	FolderPosted Folder = "posted"
)

type VideoFile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	CreatedTime time.Time `json:"createdTime"`
	Folder      Folder    `json:"folder"`
	Key         string    `json:"-"` // object key in the store

	PostDetailsOverride *PostDetailsOverride `json:"postDetailsOverride,omitempty"`
}

type InstagramAccount struct {
	ID              string `json:"id"`
	Username        string `json:"username,omitempty"`
	PageAccessToken string `json:"page_access_token,omitempty"`
	AccessToken     string `json:"access_token,omitempty"`
}

// Token prefers the page token issued by the Facebook login flow.
func (a InstagramAccount) Token() string {
	if a.PageAccessToken != "" {
		return a.PageAccessToken
	}
	return a.AccessToken
}

type PostResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type PostResults map[Platform]PostResult

func (r PostResults) AnySuccess() bool {
	for _, res := range r {
		if res.Success {
			return true
		}
	}
	return false
}
