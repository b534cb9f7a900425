package upload

import "encoding/json"

// mediaSpec is serialized into upload_media_spec.
type mediaSpec struct {
	OriginalWidth  int   `json:"original_width"`
	OriginalHeight int   `json:"original_height"`
	DurationMS     int64 `json:"duration_ms,omitempty"`
}

type retryContext struct {
	NumStepAutoRetry   int `json:"num_step_auto_retry"`
	NumReupload        int `json:"num_reupload"`
	NumStepManualRetry int `json:"num_step_manual_retry"`
}

// ruploadParams is the X-Instagram-Rupload-Params header; nested objects are JSON strings.
type ruploadParams struct {
	MediaType           string `json:"media_type"`
	UploadID            string `json:"upload_id"`
	EntityName          string `json:"entity_name"`
	UploadMediaSpec     string `json:"upload_media_spec"`
	RetryContext        string `json:"retry_context"`
	XSharingUserIDs     string `json:"xsharing_user_ids"`
	IsClipsVideo        string `json:"is_clips_video"`
	ChunkSequenceNumber int    `json:"chunk_sequence_number"`
	IsLast              bool   `json:"is_last"`
	IsAIGenerated       bool   `json:"is_ai_generated"`
}

func buildRuploadParams(s *Session, isLast bool, attempt int) (string, error) {
	spec, err := json.Marshal(mediaSpec{
		OriginalWidth:  s.Width,
		OriginalHeight: s.Height,
		DurationMS:     s.DurationMS,
	})
	if err != nil {
		return "", err
	}
	retry, err := json.Marshal(retryContext{NumStepAutoRetry: attempt - 1})
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ruploadParams{
		MediaType:           "2", // video
		UploadID:            s.ID,
		EntityName:          s.EntityName,
		UploadMediaSpec:     string(spec),
		RetryContext:        string(retry),
		XSharingUserIDs:     "[]",
		IsClipsVideo:        "1",
		ChunkSequenceNumber: s.ChunkIndex,
		IsLast:              isLast,
		IsAIGenerated:       s.AIGenerated,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
