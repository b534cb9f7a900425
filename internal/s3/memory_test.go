package s3

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, _, err := m.GetBytes(ctx, "missing"); !IsNotExist(err) {
		t.Fatalf("GetBytes missing: err = %v, want ErrNotExist", err)
	}

	if err := m.PutBytes(ctx, "a/1.mp4", []byte("video"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	b, ct, err := m.GetBytes(ctx, "a/1.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "video" || ct != "video/mp4" {
		t.Errorf("got %q %q", b, ct)
	}

	r, err := m.GetReader(ctx, "a/1.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Reader.Close()
	if r.Size != 5 {
		t.Errorf("size = %d, want 5", r.Size)
	}
}

func TestMemoryJSON(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var out map[string]string
	found, err := m.ReadJSON(ctx, "cfg.json", &out)
	if err != nil || found {
		t.Fatalf("ReadJSON missing: found=%v err=%v", found, err)
	}

	if err := m.WriteJSON(ctx, "cfg.json", map[string]string{"name": "cats"}); err != nil {
		t.Fatal(err)
	}
	found, err = m.ReadJSON(ctx, "cfg.json", &out)
	if err != nil || !found {
		t.Fatalf("ReadJSON: found=%v err=%v", found, err)
	}
	if out["name"] != "cats" {
		t.Errorf("name = %q", out["name"])
	}
}

func TestMemoryListCopyDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return base })

	_ = m.PutBytes(ctx, "c/queue/b.mp4", []byte("bb"), "video/mp4")
	_ = m.PutBytes(ctx, "c/queue/a.mp4", []byte("a"), "video/mp4")
	_ = m.PutBytes(ctx, "c/posted/x.mp4", []byte("x"), "video/mp4")

	list, err := m.List(ctx, "c/queue/")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Key != "c/queue/a.mp4" || list[1].Size != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}

	m.SetClock(func() time.Time { return base.Add(time.Hour) })
	if err := m.Copy(ctx, "c/queue/a.mp4", "c/posted/a.mp4"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "c/queue/a.mp4"); err != nil {
		t.Fatal(err)
	}
	posted, _ := m.List(ctx, "c/posted/")
	if len(posted) != 2 {
		t.Fatalf("posted = %+v", posted)
	}
	if !posted[0].LastModified.Equal(base) {
		t.Errorf("copy changed modification time: %v", posted[0].LastModified)
	}
	if err := m.Copy(ctx, "c/queue/a.mp4", "c/posted/z.mp4"); !IsNotExist(err) {
		t.Errorf("copy of deleted key: err = %v", err)
	}
}

func TestMemoryUploadDownload(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Upload(ctx, "v.mp4", strings.NewReader("payload"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	b, err := m.Download(ctx, "v.mp4")
	if err != nil || string(b) != "payload" {
		t.Fatalf("Download = %q, %v", b, err)
	}
	if got := m.Keys(); len(got) != 1 || got[0] != "v.mp4" {
		t.Errorf("Keys = %v", got)
	}
}
