package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Client. Each instance owns its objects; tests create one per case.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject
	now     func() time.Time
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

var _ Client = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject), now: time.Now}
}

// SetClock overrides the modification timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Keys lists every stored key in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) PutBytes(ctx context.Context, key string, b []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: append([]byte(nil), b...), contentType: contentType, modified: m.now()}
	return nil
}

func (m *Memory) GetBytes(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotExist
	}
	return append([]byte(nil), obj.data...), obj.contentType, nil
}

func (m *Memory) GetReader(ctx context.Context, key string) (*ObjectReader, error) {
	b, _, err := m.GetBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ObjectReader{Reader: io.NopCloser(bytes.NewReader(b)), Size: int64(len(b))}, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Copy keeps the source modification time so ordering by age survives a move.
func (m *Memory) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[srcKey]
	if !ok {
		return ErrNotExist
	}
	obj.data = append([]byte(nil), obj.data...)
	m.objects[dstKey] = obj
	return nil
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return m.PutBytes(ctx, key, b, contentType)
}

func (m *Memory) Download(ctx context.Context, key string) ([]byte, error) {
	b, _, err := m.GetBytes(ctx, key)
	return b, err
}

func (m *Memory) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	b, _, err := m.GetBytes(ctx, key)
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

func (m *Memory) WriteJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return m.PutBytes(ctx, key, b, "application/json")
}
