// Package notify tells operators what a posting run did.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"video-publisher/internal/model"
)

// Report summarizes one orchestrator run.
type Report struct {
	RunID       string            `json:"runId"`
	ConceptID   string            `json:"conceptId"`
	ConceptName string            `json:"conceptName"`
	Video       string            `json:"video,omitempty"`
	Origin      model.Folder      `json:"origin,omitempty"`
	Moved       bool              `json:"moved"`
	Results     model.PostResults `json:"results"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	Took        time.Duration     `json:"took"`
}

type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// Multi fans a report out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, r Report) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format renders a report as a short plain-text message.
func Format(r Report) string {
	var b strings.Builder
	name := r.ConceptName
	if name == "" {
		name = r.ConceptID
	}
	switch {
	case r.Error != "":
		fmt.Fprintf(&b, "❌ %s: run failed: %s\n", name, r.Error)
	case r.Video == "":
		fmt.Fprintf(&b, "📭 %s: queue is empty, nothing posted\n", name)
	default:
		fmt.Fprintf(&b, "🎬 %s: %s (%s)\n", name, r.Video, r.Origin)
	}

	platforms := make([]string, 0, len(r.Results))
	for p := range r.Results {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		res := r.Results[model.Platform(p)]
		if res.Success {
			fmt.Fprintf(&b, "✅ %s: %s\n", p, res.Message)
		} else {
			fmt.Fprintf(&b, "⚠️ %s: %s\n", p, firstNonEmpty(res.Error, res.Message))
		}
	}
	if r.Moved {
		b.WriteString("moved to posted\n")
	}
	if r.Took > 0 {
		fmt.Fprintf(&b, "took %s", r.Took.Round(time.Second))
	}
	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
