package store

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const conceptSchemaJSON = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "schedule": {"type": "string"},
    "postingTimes": {"type": ["array", "null"], "items": {"type": "string"}},
    "platforms": {
      "type": "object",
      "properties": {
        "YouTube": {"type": "boolean"},
        "TikTok": {"type": "boolean"},
        "Instagram": {"type": "boolean"}
      }
    },
    "apiKeys": {
      "type": "object",
      "properties": {
        "youtube_refresh_token": {"type": "string"},
        "youtube_channel_id": {"type": "string"},
        "youtube_channel_name": {"type": "string"},
        "instagram": {"type": "string"},
        "tiktok": {
          "type": ["object", "null"],
          "properties": {
            "access_token": {"type": "string"},
            "refresh_token": {"type": "string"},
            "expires_in": {"type": "number"},
            "refresh_expires_in": {"type": "number"}
          }
        }
      }
    },
    "postDetails": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "description": {"type": "string"},
        "hashtags": {"type": "string"},
        "aiLabel": {"type": "boolean"}
      }
    }
  }
}`

type schemaValidator struct {
	schema *gojsonschema.Schema
}

func newSchemaValidator() (*schemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(conceptSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("concept schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

func (v *schemaValidator) validate(doc []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
}
