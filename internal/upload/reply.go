package upload

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"video-publisher/internal/httpclient"
)

// remoteError is the failure half of every reply.
type remoteError struct {
	Status    int
	Type      string
	Message   string
	Retriable bool
}

// errorOf extracts the Graph / rupload error fields from a reply body.
func errorOf(status int, body []byte) remoteError {
	re := remoteError{Status: status}
	re.Type = firstString(body, "debug_info.type", "error.type", "error.code", "error_type")
	re.Message = firstString(body, "error.error_user_msg", "error.message", "debug_info.message", "message", "error_message")
	if re.Message == "" && len(body) > 0 && !gjson.ValidBytes(body) {
		re.Message = httpclient.Truncate(strings.TrimSpace(string(body)), 300)
	}
	for _, path := range []string{"debug_info.retriable", "error.is_transient", "is_transient", "retriable"} {
		if gjson.GetBytes(body, path).Bool() {
			re.Retriable = true
		}
	}
	return re
}

func (re remoteError) phaseError(p Phase, err error) *PhaseError {
	return &PhaseError{Phase: p, Status: re.Status, Code: re.Type, Message: re.Message, Err: err}
}

type startReply struct {
	SessionID string
	UploadURL string
}

func parseStart(resp *httpclient.Response) (*startReply, *PhaseError) {
	if !resp.OK() {
		return nil, errorOf(resp.StatusCode, resp.Body).phaseError(PhaseStart, nil)
	}
	r := &startReply{
		SessionID: gjson.GetBytes(resp.Body, "upload_session_id").String(),
		UploadURL: gjson.GetBytes(resp.Body, "upload_url").String(),
	}
	if r.SessionID == "" || r.UploadURL == "" {
		return nil, &PhaseError{Phase: PhaseStart, Status: resp.StatusCode, Message: "upload_session_id/upload_url absent", Err: ErrMissingField}
	}
	return r, nil
}

type chunkVerdict int

const (
	chunkAccepted chunkVerdict = iota
	chunkDesync
	chunkRetry
	chunkFatal
)

type chunkReply struct {
	Verdict chunkVerdict
	Offset  int64 // server-expected offset for chunkDesync
	Err     remoteError
}

var (
	maxOffsetRe      = regexp.MustCompile(`(?i)max(?:imum)?\s+accepted\s+offset\D{0,20}?(\d+)`)
	expectedOffsetRe = regexp.MustCompile(`(?i)expected\s+offset\D{0,20}?(\d+)`)
)

// transientTypes are rupload error types that succeed when the same chunk is resent.
var transientTypes = map[string]bool{
	"ProcessingFailedError": true,
	"TransientError":        true,
	"ServerError":           true,
	"UploadTimeoutError":    true,
}

// reportedOffset finds the server's expected offset in an explicit field or in the message text.
func reportedOffset(body []byte, message string) (int64, bool) {
	for _, path := range []string{"offset", "debug_info.offset", "expected_offset"} {
		if v := gjson.GetBytes(body, path); v.Exists() && (v.Type == gjson.Number || v.Type == gjson.String) {
			if n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64); err == nil {
				return n, true
			}
		}
	}
	for _, re := range []*regexp.Regexp{maxOffsetRe, expectedOffsetRe} {
		if m := re.FindStringSubmatch(message); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// classifyChunk decides what to do after a chunk POST covering [start, end).
func classifyChunk(resp *httpclient.Response, start, end int64) chunkReply {
	re := errorOf(resp.StatusCode, resp.Body)
	failed := !resp.OK() || gjson.GetBytes(resp.Body, "success").Type == gjson.False ||
		gjson.GetBytes(resp.Body, "debug_info").Exists() || gjson.GetBytes(resp.Body, "error").Exists()

	offset, hasOffset := reportedOffset(resp.Body, re.Message)
	if !failed {
		if hasOffset && offset != end {
			return chunkReply{Verdict: chunkDesync, Offset: offset, Err: re}
		}
		return chunkReply{Verdict: chunkAccepted}
	}
	if hasOffset && offset != start {
		return chunkReply{Verdict: chunkDesync, Offset: offset, Err: re}
	}
	if resp.StatusCode >= 500 || transientTypes[re.Type] || re.Retriable {
		return chunkReply{Verdict: chunkRetry, Err: re}
	}
	return chunkReply{Verdict: chunkFatal, Err: re}
}

// Media container statuses.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusPublished  = "PUBLISHED"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
)

type statusClass int

const (
	statusPending statusClass = iota
	statusReady
	statusFailed
	statusUnknown
)

func classifyStatus(code string) statusClass {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", StatusInProgress:
		return statusPending
	case StatusFinished, StatusPublished:
		return statusReady
	case StatusError, StatusExpired:
		return statusFailed
	}
	return statusUnknown
}

// FinishReply carries the container id created by the finish phase.
type FinishReply struct {
	CreationID string
	StatusCode string
}

func parseFinish(resp *httpclient.Response) (*FinishReply, *PhaseError) {
	if !resp.OK() {
		return nil, errorOf(resp.StatusCode, resp.Body).phaseError(PhaseFinish, nil)
	}
	r := &FinishReply{
		CreationID: gjson.GetBytes(resp.Body, "id").String(),
		StatusCode: gjson.GetBytes(resp.Body, "status_code").String(),
	}
	if r.CreationID == "" {
		return nil, &PhaseError{Phase: PhaseFinish, Status: resp.StatusCode, Message: "id absent", Err: ErrMissingField}
	}
	return r, nil
}

type statusReply struct {
	StatusCode string
	Detail     string
}

func parseStatus(resp *httpclient.Response) statusReply {
	return statusReply{
		StatusCode: gjson.GetBytes(resp.Body, "status_code").String(),
		Detail:     firstString(resp.Body, "status", "error_message"),
	}
}

func parsePublish(resp *httpclient.Response) (string, *PhaseError) {
	if !resp.OK() {
		return "", errorOf(resp.StatusCode, resp.Body).phaseError(PhasePublish, nil)
	}
	id := gjson.GetBytes(resp.Body, "id").String()
	if id == "" {
		return "", &PhaseError{Phase: PhasePublish, Status: resp.StatusCode, Message: "id absent", Err: ErrMissingField}
	}
	return id, nil
}

func firstString(body []byte, paths ...string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
