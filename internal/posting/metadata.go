package posting

import (
	"strings"

	"video-publisher/internal/model"
)

// AIDisclosure is appended to descriptions of videos flagged as AI-generated.
const AIDisclosure = "This video includes altered or synthetic content."

// ApplyAILabel appends AIDisclosure once. Descriptions that already carry it come back unchanged.
func ApplyAILabel(description string, aiLabel bool) string {
	if !aiLabel || strings.Contains(description, AIDisclosure) {
		return description
	}
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return AIDisclosure
	}
	return trimmed + "\n\n" + AIDisclosure
}

// EffectiveDetails layers concept defaults < per-video override < caller override.
func EffectiveDetails(concept model.PostDetails, video, caller *model.PostDetailsOverride) model.PostDetails {
	return caller.ApplyTo(video.ApplyTo(concept))
}
