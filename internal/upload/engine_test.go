package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"video-publisher/internal/logging"
)

const (
	testAccount = "1234567890"
	testSession = "17890123456789012"
	testCreate  = "18001234567890000"
	testPublish = "17900987654321000"
	testToken   = "mock-access-token"
)

type chunkCall struct {
	Start, Length int64
	Seq           int
	IsLast        bool
	Range         string
	ContentLength int64
	Header        http.Header
	Params        map[string]any
}

// fakeGraph emulates the start/upload/finish/status/publish endpoints.
type fakeGraph struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	chunks   []chunkCall
	received []byte
	start    url.Values
	finish   url.Values
	publish  url.Values
	polls    int

	// onChunk returns the reply to the n-th chunk call (0-based); nil accepts everything.
	onChunk      func(n int, c chunkCall) (int, string)
	startReply   string
	finishReply  string
	pollReplies  []string
	pollCodes    []int // status per poll; missing or 0 means 200
	publishCode  int
	publishReply string
}

func newFakeGraph(t *testing.T) *fakeGraph {
	f := &fakeGraph{
		t:            t,
		finishReply:  fmt.Sprintf(`{"id":%q,"status_code":"IN_PROGRESS"}`, testCreate),
		pollReplies:  []string{`{"status_code":"IN_PROGRESS"}`, `{"status_code":"FINISHED"}`},
		publishCode:  http.StatusOK,
		publishReply: fmt.Sprintf(`{"id":%q}`, testPublish),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	f.startReply = fmt.Sprintf(`{"upload_session_id":%q,"upload_url":%q}`, testSession, f.srv.URL+"/upload/"+testSession)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGraph) engine(cfg Config) (*Engine, *[]time.Duration) {
	cfg.GraphURL = f.srv.URL + "/graph"
	cfg.VideoGraphURL = f.srv.URL + "/video"
	e := New(cfg, f.srv.Client(), logging.Discard())
	var sleeps []time.Duration
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return e, &sleeps
}

func (f *fakeGraph) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/video/"+testAccount+"/media":
		_ = r.ParseForm()
		switch r.PostForm.Get("upload_phase") {
		case "start":
			f.start = r.PostForm
			f.received = make([]byte, mustInt(r.PostForm.Get("file_size")))
			_, _ = io.WriteString(w, f.startReply)
		case "finish":
			f.finish = r.PostForm
			_, _ = io.WriteString(w, f.finishReply)
		default:
			http.Error(w, "bad phase", http.StatusBadRequest)
		}

	case r.Method == http.MethodPost && path == "/upload/"+testSession:
		body, _ := io.ReadAll(r.Body)
		c := chunkCall{
			Start:         mustInt(r.Header.Get("Offset")),
			Length:        int64(len(body)),
			Range:         r.Header.Get("Content-Range"),
			ContentLength: r.ContentLength,
			Header:        r.Header.Clone(),
		}
		if err := json.Unmarshal([]byte(r.Header.Get("X-Instagram-Rupload-Params")), &c.Params); err != nil {
			f.t.Errorf("rupload params: %v", err)
		}
		c.Seq = int(c.Params["chunk_sequence_number"].(float64))
		c.IsLast = c.Params["is_last"].(bool)
		n := len(f.chunks)
		f.chunks = append(f.chunks, c)

		code, reply := http.StatusOK, `{"success":true}`
		if f.onChunk != nil {
			if cc, rr := f.onChunk(n, c); cc != 0 {
				code, reply = cc, rr
			}
		}
		if code == http.StatusOK && !strings.Contains(reply, "offset") {
			copy(f.received[c.Start:], body)
		}
		w.WriteHeader(code)
		_, _ = io.WriteString(w, reply)

	case r.Method == http.MethodGet && path == "/video/"+testSession:
		if r.URL.Query().Get("access_token") != testToken {
			f.t.Errorf("poll without access token")
		}
		reply := `{"status_code":"FINISHED"}`
		if f.polls < len(f.pollReplies) {
			reply = f.pollReplies[f.polls]
		}
		if f.polls < len(f.pollCodes) && f.pollCodes[f.polls] != 0 {
			w.WriteHeader(f.pollCodes[f.polls])
		}
		f.polls++
		_, _ = io.WriteString(w, reply)

	case r.Method == http.MethodPost && path == "/graph/"+testAccount+"/media_publish":
		_ = r.ParseForm()
		f.publish = r.PostForm
		w.WriteHeader(f.publishCode)
		_, _ = io.WriteString(w, f.publishReply)

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, path)
		http.NotFound(w, r)
	}
}

func mustInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func testVideo(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newRequest(video []byte) *Request {
	return &Request{
		AccountID:   testAccount,
		AccessToken: testToken,
		Video:       bytes.NewReader(video),
		Size:        int64(len(video)),
		EntityName:  "dummy.mp4",
		Caption:     "Test caption",
	}
}

func TestRunTenMegabyteScenario(t *testing.T) {
	f := newFakeGraph(t)
	cfg := DefaultConfig()
	e, sleeps := f.engine(cfg)

	video := testVideo(10_000_000)
	res, err := e.Run(context.Background(), newRequest(video))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MediaID != testPublish || res.CreationID != testCreate || res.SessionID != testSession {
		t.Errorf("unexpected result %+v", res)
	}

	wantLens := []int64{4_194_304, 4_194_304, 1_611_392}
	if len(f.chunks) != len(wantLens) {
		t.Fatalf("chunks = %d, want %d", len(f.chunks), len(wantLens))
	}
	for i, c := range f.chunks {
		if c.Length != wantLens[i] {
			t.Errorf("chunk %d length = %d, want %d", i, c.Length, wantLens[i])
		}
		if c.IsLast != (i == 2) {
			t.Errorf("chunk %d is_last = %v", i, c.IsLast)
		}
		if c.Seq != i {
			t.Errorf("chunk %d sequence = %d", i, c.Seq)
		}
		wantRange := fmt.Sprintf("bytes %d-%d/10000000", c.Start, c.Start+c.Length-1)
		if c.Range != wantRange {
			t.Errorf("chunk %d range = %q, want %q", i, c.Range, wantRange)
		}
		if c.Header.Get("Authorization") != "OAuth "+testToken {
			t.Errorf("chunk %d authorization = %q", i, c.Header.Get("Authorization"))
		}
		if c.Header.Get("X-Entity-Length") != "10000000" || c.Header.Get("X-Entity-Name") != "dummy.mp4" {
			t.Errorf("chunk %d entity headers = %v", i, c.Header)
		}
		if c.ContentLength != c.Length {
			t.Errorf("chunk %d content-length = %d", i, c.ContentLength)
		}
	}
	if !bytes.Equal(f.received, video) {
		t.Error("reassembled bytes differ from the source video")
	}

	if f.start.Get("file_size") != "10000000" || f.start.Get("upload_type") != "resumable" || f.start.Get("media_type") != "REELS" {
		t.Errorf("start form = %v", f.start)
	}
	for k, want := range map[string]string{
		"upload_session_id": testSession,
		"media_type":        "REELS",
		"video_type":        "REELS",
		"clips_subtype":     "REELS",
		"thumb_offset":      "0",
		"caption":           "Test caption",
		"is_ai_generated":   "false",
	} {
		if got := f.finish.Get(k); got != want {
			t.Errorf("finish %s = %q, want %q", k, got, want)
		}
	}
	if _, ok := f.finish["cover_url"]; ok {
		t.Error("cover_url sent without a cover")
	}
	if f.publish.Get("creation_id") != testCreate {
		t.Errorf("publish creation_id = %q", f.publish.Get("creation_id"))
	}

	if f.polls != 2 {
		t.Errorf("polls = %d, want 2", f.polls)
	}
	if len(*sleeps) != 2 || (*sleeps)[0] != cfg.PollInterval {
		t.Errorf("sleeps = %v, want two poll intervals", *sleeps)
	}
}

func TestRuploadParamsCarryMediaSpec(t *testing.T) {
	f := newFakeGraph(t)
	e, _ := f.engine(DefaultConfig())

	req := newRequest(testVideo(100))
	req.Width, req.Height = 720, 1280
	req.Duration = 12 * time.Second
	req.AIGenerated = true
	req.CoverURL = "https://example.com/cover.jpg"
	req.ThumbOffset = 3 * time.Second
	if _, err := e.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	p := f.chunks[0].Params
	if p["media_type"] != "2" || p["upload_id"] != testSession || p["is_clips_video"] != "1" {
		t.Errorf("params = %v", p)
	}
	var spec map[string]float64
	if err := json.Unmarshal([]byte(p["upload_media_spec"].(string)), &spec); err != nil {
		t.Fatal(err)
	}
	if spec["original_width"] != 720 || spec["original_height"] != 1280 || spec["duration_ms"] != 12000 {
		t.Errorf("media spec = %v", spec)
	}
	if f.finish.Get("thumb_offset") != "3000" || f.finish.Get("cover_url") != "https://example.com/cover.jpg" || f.finish.Get("is_ai_generated") != "true" {
		t.Errorf("finish form = %v", f.finish)
	}
}

func TestMediaSpecDefaultsWithoutDuration(t *testing.T) {
	f := newFakeGraph(t)
	e, _ := f.engine(DefaultConfig())
	if _, err := e.Run(context.Background(), newRequest(testVideo(10))); err != nil {
		t.Fatal(err)
	}
	specRaw := f.chunks[0].Params["upload_media_spec"].(string)
	if strings.Contains(specRaw, "duration_ms") {
		t.Errorf("duration_ms sent without a known duration: %s", specRaw)
	}
	if !strings.Contains(specRaw, `"original_width":1080`) || !strings.Contains(specRaw, `"original_height":1920`) {
		t.Errorf("default dimensions missing: %s", specRaw)
	}
}

func TestChunkCoverage(t *testing.T) {
	tests := []struct {
		total, chunk int64
	}{
		{1, 4},
		{4, 4},
		{5, 4},
		{4095, 1024},
		{4096, 1024},
		{10_000, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.chunk), func(t *testing.T) {
			f := newFakeGraph(t)
			cfg := DefaultConfig()
			cfg.ChunkSize = tt.chunk
			e, _ := f.engine(cfg)
			video := testVideo(int(tt.total))
			if _, err := e.Run(context.Background(), newRequest(video)); err != nil {
				t.Fatalf("Run: %v", err)
			}

			var next int64
			for i, c := range f.chunks {
				if c.Start != next {
					t.Fatalf("chunk %d starts at %d, want %d", i, c.Start, next)
				}
				if c.Length <= 0 || c.Length > tt.chunk {
					t.Fatalf("chunk %d length %d", i, c.Length)
				}
				next += c.Length
				if c.IsLast != (next == tt.total) {
					t.Errorf("chunk %d is_last = %v at offset %d", i, c.IsLast, next)
				}
			}
			if next != tt.total {
				t.Errorf("covered %d bytes, want %d", next, tt.total)
			}
			if !bytes.Equal(f.received, video) {
				t.Error("reassembled bytes differ")
			}
			if got := PlanChunks(tt.total, tt.chunk); len(got) != len(f.chunks) {
				t.Errorf("PlanChunks = %d ranges, engine sent %d", len(got), len(f.chunks))
			}
		})
	}
}

func TestDesyncFromMessageRestartsAtServerOffset(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(n int, c chunkCall) (int, string) {
		if n == 1 {
			return http.StatusBadRequest, `{"debug_info":{"type":"OffsetInvalidError","message":"Invalid offset. The maximum accepted offset is 500"}}`
		}
		return 0, ""
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = 1000
	cfg.MaxAttempts = 1 // a resync must not need a retry
	e, sleeps := f.engine(cfg)

	video := testVideo(3000)
	if _, err := e.Run(context.Background(), newRequest(video)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var starts []int64
	for _, c := range f.chunks {
		starts = append(starts, c.Start)
	}
	want := []int64{0, 1000, 500, 1500, 2500}
	if fmt.Sprint(starts) != fmt.Sprint(want) {
		t.Errorf("chunk starts = %v, want %v", starts, want)
	}
	if f.chunks[2].Seq != 0 {
		t.Errorf("chunk index after resync = %d, want 0", f.chunks[2].Seq)
	}
	if (*sleeps)[0] != cfg.ResyncDelay {
		t.Errorf("first sleep = %v, want resync delay", (*sleeps)[0])
	}
	if !bytes.Equal(f.received, video) {
		t.Error("reassembled bytes differ")
	}
}

func TestDesyncFromOffsetField(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(n int, c chunkCall) (int, string) {
		if n == 0 {
			return http.StatusBadRequest, `{"offset": 2000, "debug_info":{"message":"offset mismatch"}}`
		}
		return 0, ""
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = 1000
	e, _ := f.engine(cfg)

	if _, err := e.Run(context.Background(), newRequest(testVideo(3000))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.chunks[1].Start != 2000 || f.chunks[1].Seq != 2 || !f.chunks[1].IsLast {
		t.Errorf("chunk after resync = %+v", f.chunks[1])
	}
	if len(f.chunks) != 2 {
		t.Errorf("chunks = %d, want 2", len(f.chunks))
	}
}

func TestResyncLoopIsBounded(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(n int, c chunkCall) (int, string) {
		// always point somewhere else
		if c.Start == 0 {
			return http.StatusBadRequest, `{"offset": 10}`
		}
		return http.StatusBadRequest, `{"offset": 0}`
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = 100
	cfg.MaxResyncs = 3
	e, _ := f.engine(cfg)

	_, err := e.Run(context.Background(), newRequest(testVideo(300)))
	if !errors.Is(err, ErrResyncLoop) {
		t.Fatalf("err = %v, want ErrResyncLoop", err)
	}
	if len(f.chunks) != 4 {
		t.Errorf("chunk calls = %d, want 4", len(f.chunks))
	}
}

func TestPartialAcceptsKeepResyncBudget(t *testing.T) {
	const total, step = 40000, 1000
	f := newFakeGraph(t)
	f.onChunk = func(n int, c chunkCall) (int, string) {
		next := c.Start + step
		if next >= total {
			return 0, ""
		}
		return http.StatusOK, fmt.Sprintf(`{"success":true,"offset":%d}`, next)
	}
	cfg := DefaultConfig()
	cfg.ChunkSize = 4000
	e, _ := f.engine(cfg)

	if _, err := e.Run(context.Background(), newRequest(testVideo(total))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.chunks) != total/step {
		t.Fatalf("chunk calls = %d, want %d", len(f.chunks), total/step)
	}
	for i, c := range f.chunks {
		if c.Start != int64(i*step) {
			t.Errorf("chunk %d starts at %d, want %d", i, c.Start, i*step)
		}
	}
}

func TestRetryableChunkBacksOffLinearly(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(n int, c chunkCall) (int, string) {
		if n < 2 {
			return http.StatusServiceUnavailable, `{"debug_info":{"message":"try later"}}`
		}
		return 0, ""
	}
	cfg := DefaultConfig()
	cfg.RetryBase = 100 * time.Millisecond
	f.finishReply = fmt.Sprintf(`{"id":%q,"status_code":"FINISHED"}`, testCreate)
	e, sleeps := f.engine(cfg)

	if _, err := e.Run(context.Background(), newRequest(testVideo(10))); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if fmt.Sprint(*sleeps) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
	for i, c := range f.chunks {
		var rc retryContext
		_ = json.Unmarshal([]byte(c.Params["retry_context"].(string)), &rc)
		if rc.NumStepAutoRetry != i {
			t.Errorf("call %d num_step_auto_retry = %d", i, rc.NumStepAutoRetry)
		}
	}
	if f.polls != 0 {
		t.Errorf("polled %d times after FINISHED finish", f.polls)
	}
}

func TestRetryableSignals(t *testing.T) {
	replies := map[string]string{
		"named type":     `{"debug_info":{"type":"ProcessingFailedError","message":"x"}}`,
		"retriable flag": `{"debug_info":{"retriable":true,"type":"Whatever"}}`,
		"transient":      `{"error":{"message":"x","is_transient":true}}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			f := newFakeGraph(t)
			f.onChunk = func(n int, c chunkCall) (int, string) {
				if n == 0 {
					return http.StatusBadRequest, reply
				}
				return 0, ""
			}
			e, _ := f.engine(DefaultConfig())
			if _, err := e.Run(context.Background(), newRequest(testVideo(10))); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(f.chunks) != 2 {
				t.Errorf("chunk calls = %d, want 2", len(f.chunks))
			}
		})
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(int, chunkCall) (int, string) {
		return http.StatusInternalServerError, `{"debug_info":{"message":"down"}}`
	}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 4
	e, sleeps := f.engine(cfg)

	_, err := e.Run(context.Background(), newRequest(testVideo(10)))
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseChunk || !errors.Is(err, ErrRetriesExceeded) {
		t.Fatalf("err = %v, want chunk PhaseError with ErrRetriesExceeded", err)
	}
	if pe.Message != "down" || pe.Status != http.StatusInternalServerError {
		t.Errorf("phase error = %+v", pe)
	}
	if len(f.chunks) != 4 || len(*sleeps) != 3 {
		t.Errorf("calls = %d sleeps = %d, want 4 and 3", len(f.chunks), len(*sleeps))
	}
	if f.finish != nil {
		t.Error("finish called after fatal chunk failure")
	}
}

func TestFatalChunkStopsImmediately(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(int, chunkCall) (int, string) {
		return http.StatusBadRequest, `{"debug_info":{"type":"BadRequestError","message":"nope"}}`
	}
	e, sleeps := f.engine(DefaultConfig())

	_, err := e.Run(context.Background(), newRequest(testVideo(10)))
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhaseChunk || pe.Message != "nope" || pe.Code != "BadRequestError" {
		t.Fatalf("err = %v", err)
	}
	if len(f.chunks) != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d sleeps = %d", len(f.chunks), len(*sleeps))
	}
}

func TestStartFailures(t *testing.T) {
	tests := map[string]string{
		"missing url":   fmt.Sprintf(`{"upload_session_id":%q}`, testSession),
		"empty payload": `{}`,
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFakeGraph(t)
			f.startReply = reply
			e, _ := f.engine(DefaultConfig())
			_, err := e.Run(context.Background(), newRequest(testVideo(10)))
			if p, ok := PhaseOf(err); !ok || p != PhaseStart || !errors.Is(err, ErrMissingField) {
				t.Fatalf("err = %v", err)
			}
			if len(f.chunks) != 0 {
				t.Error("chunks sent without a session")
			}
		})
	}
}

func TestPollOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		codes     []int
		maxPoll   int
		wantErr   error // checked when set; any poll-phase error otherwise
		wantOK    bool
		wantPolls int
	}{
		{"error status", []string{`{"status_code":"ERROR","status":"Error: bad codec"}`}, nil, 10, ErrMediaFailed, false, 1},
		{"expired", []string{`{"status_code":"IN_PROGRESS"}`, `{"status_code":"EXPIRED"}`}, nil, 10, ErrMediaFailed, false, 2},
		{"unknown", []string{`{"status_code":"SOMETHING_NEW"}`}, nil, 10, ErrUnknownStatus, false, 1},
		{"limit", []string{`{"status_code":"IN_PROGRESS"}`, `{"status_code":"IN_PROGRESS"}`, `{"status_code":"IN_PROGRESS"}`}, nil, 2, ErrPollLimit, false, 2},
		{"server error then finished", []string{`{"error":{"message":"temporarily unavailable"}}`, `{"status_code":"FINISHED"}`}, []int{http.StatusInternalServerError}, 10, nil, true, 2},
		{"server errors use up the limit", []string{`{}`, `{}`}, []int{http.StatusBadGateway, http.StatusBadGateway}, 2, ErrPollLimit, false, 2},
		{"client error is fatal", []string{`{"error":{"message":"bad token","code":190}}`}, []int{http.StatusBadRequest}, 10, nil, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGraph(t)
			f.pollReplies = tt.replies
			f.pollCodes = tt.codes
			cfg := DefaultConfig()
			cfg.MaxPolls = tt.maxPoll
			e, _ := f.engine(cfg)

			res, err := e.Run(context.Background(), newRequest(testVideo(10)))
			if f.polls != tt.wantPolls {
				t.Errorf("polls = %d, want %d", f.polls, tt.wantPolls)
			}
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if res.MediaID != testPublish {
					t.Errorf("media id = %q", res.MediaID)
				}
				return
			}
			if p, ok := PhaseOf(err); !ok || p != PhasePoll {
				t.Fatalf("err = %v, want poll error", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if f.publish != nil {
				t.Error("publish called after failed poll")
			}
		})
	}
}

func TestFinishFailedStatusIsFatal(t *testing.T) {
	f := newFakeGraph(t)
	f.finishReply = fmt.Sprintf(`{"id":%q,"status_code":"ERROR"}`, testCreate)
	e, _ := f.engine(DefaultConfig())
	_, err := e.Run(context.Background(), newRequest(testVideo(10)))
	if p, _ := PhaseOf(err); p != PhaseFinish || !errors.Is(err, ErrMediaFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishFailure(t *testing.T) {
	f := newFakeGraph(t)
	f.publishCode = http.StatusBadRequest
	f.publishReply = `{"error":{"message":"Media ID is not available","type":"OAuthException","code":9007}}`
	e, _ := f.engine(DefaultConfig())

	_, err := e.Run(context.Background(), newRequest(testVideo(10)))
	var pe *PhaseError
	if !errors.As(err, &pe) || pe.Phase != PhasePublish {
		t.Fatalf("err = %v", err)
	}
	if pe.Message != "Media ID is not available" || !strings.Contains(err.Error(), "publish") {
		t.Errorf("phase error = %+v", pe)
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	e := New(DefaultConfig(), http.DefaultClient, logging.Discard())
	req := newRequest(testVideo(10))
	req.AccessToken = ""
	if _, err := e.Run(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v", err)
	}
}

func TestCancelledContextStopsBackoff(t *testing.T) {
	f := newFakeGraph(t)
	f.onChunk = func(int, chunkCall) (int, string) {
		return http.StatusServiceUnavailable, `{}`
	}
	e, _ := f.engine(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	e.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := e.Run(ctx, newRequest(testVideo(10)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
