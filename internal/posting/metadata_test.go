package posting

import (
	"testing"
	"time"

	"video-publisher/internal"
	"video-publisher/internal/model"
)

func TestApplyAILabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ai   bool
		want string
	}{
		{"off", "hello", false, "hello"},
		{"appends", "hello  \n", true, "hello\n\n" + AIDisclosure},
		{"empty", "", true, AIDisclosure},
		{"already disclosed", "hello\n\n" + AIDisclosure, true, "hello\n\n" + AIDisclosure},
		{"disclosed mid text", AIDisclosure + " more", true, AIDisclosure + " more"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := ApplyAILabel(tt.in, tt.ai)
			if once != tt.want {
				t.Errorf("ApplyAILabel(%q) = %q, want %q", tt.in, once, tt.want)
			}
			if twice := ApplyAILabel(once, tt.ai); twice != once {
				t.Errorf("not idempotent: %q then %q", once, twice)
			}
		})
	}
}

func TestEffectiveDetails(t *testing.T) {
	concept := model.PostDetails{Title: "C title", Description: "C desc", Hashtags: "#c", AILabel: false}
	vTitle, vTags := "V title", "#v"
	cTitle, ai := "Caller title", true

	got := EffectiveDetails(concept,
		&model.PostDetailsOverride{Title: &vTitle, Hashtags: &vTags},
		&model.PostDetailsOverride{Title: &cTitle, AILabel: &ai},
	)
	want := model.PostDetails{Title: "Caller title", Description: "C desc", Hashtags: "#v", AILabel: true}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got := EffectiveDetails(concept, nil, nil); got != concept {
		t.Errorf("no overrides: %+v", got)
	}
}

func TestSelectVideo(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	videos := []model.VideoFile{
		{Name: "c.mp4", CreatedTime: base.Add(2 * time.Hour)},
		{Name: "b.mp4", CreatedTime: base},
		{Name: "a.mp4", CreatedTime: base},
	}
	if v := SelectVideo(videos, internal.SelectOldest, nil); v.Name != "a.mp4" {
		t.Errorf("oldest = %s", v.Name)
	}
	if v := SelectVideo(videos, internal.SelectRandom, func(n int) int { return n - 1 }); v.Name != "a.mp4" {
		t.Errorf("random = %s", v.Name)
	}
	if v := SelectVideo(videos, internal.SelectRandom, func(int) int { return 0 }); v.Name != "c.mp4" {
		t.Errorf("random = %s", v.Name)
	}
	if SelectVideo(nil, internal.SelectOldest, nil) != nil {
		t.Error("empty queue selected something")
	}
	if videos[0].Name != "c.mp4" {
		t.Error("input reordered")
	}
}
