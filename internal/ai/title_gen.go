package ai

import (
	"context"
	"fmt"
	"path"
	"strings"

	"google.golang.org/genai"

	"video-publisher/internal/logging"
	"video-publisher/internal/model"
)

const titleModel = "gemini-2.0-flash"

// maxTitleLen is the YouTube title limit.
const maxTitleLen = 100

type TitleGenerator struct {
	apiKey string
	log    *logging.Logger
}

func NewTitleGenerator(apiKey string, log *logging.Logger) *TitleGenerator {
	return &TitleGenerator{apiKey: apiKey, log: log}
}

// GenerateTitle suggests a title for a video posted without one. Without an API key it
// returns FallbackTitle.
func (tg *TitleGenerator) GenerateTitle(ctx context.Context, videoName string, details model.PostDetails) (string, error) {
	if tg.apiKey == "" {
		tg.log.Infof("ai: no api key, using fallback title")
		return FallbackTitle(videoName), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  tg.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, titleModel, []*genai.Content{
		genai.NewContentFromText(titlePrompt(videoName, details), genai.RoleUser),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	title := cleanTitle(resp.Text())
	if title == "" {
		return FallbackTitle(videoName), nil
	}
	return title, nil
}

func titlePrompt(videoName string, d model.PostDetails) string {
	var b strings.Builder
	b.WriteString("You write titles for short vertical videos (YouTube Shorts, TikTok, Instagram Reels). ")
	b.WriteString("Write one catchy title under 80 characters. No emoji, no hashtags, no quotes, plain text only.\n")
	fmt.Fprintf(&b, "File name: %s\n", FallbackTitle(videoName))
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	if d.Hashtags != "" {
		fmt.Fprintf(&b, "Hashtags: %s\n", d.Hashtags)
	}
	return b.String()
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.Trim(s, `"'«»`)
	if r := []rune(s); len(r) > maxTitleLen {
		s = string(r[:maxTitleLen])
	}
	return s
}

// FallbackTitle is the video name without its extension.
func FallbackTitle(videoName string) string {
	base := path.Base(videoName)
	return strings.TrimSuffix(base, path.Ext(base))
}
