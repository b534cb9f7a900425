package upload

import "fmt"

// Session is the client side of one resumable upload. It lives for a single Engine run.
type Session struct {
	ID         string
	UploadURL  string
	Total      int64
	Offset     int64
	ChunkIndex int

	EntityName  string
	Width       int
	Height      int
	DurationMS  int64
	AIGenerated bool
}

// nextRange returns the half-open byte range of the chunk at the current offset.
func (s *Session) nextRange(chunkSize int64) (start, end int64) {
	start = s.Offset
	end = start + chunkSize
	if end > s.Total {
		end = s.Total
	}
	return start, end
}

// advance records an acknowledged chunk ending at end.
func (s *Session) advance(end int64) {
	s.Offset = end
	s.ChunkIndex++
}

// resync moves the session to the offset the server expects.
func (s *Session) resync(offset, chunkSize int64) {
	if offset < 0 {
		offset = 0
	}
	if offset > s.Total {
		offset = s.Total
	}
	s.Offset = offset
	s.ChunkIndex = int(offset / chunkSize)
}

func (s *Session) done() bool { return s.Offset >= s.Total }

// contentRange formats an inclusive byte range over the total length.
func contentRange(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end-1, total)
}

// PlanChunks lists the [start, end) ranges a clean transfer of total bytes sends.
func PlanChunks(total, chunkSize int64) [][2]int64 {
	if total <= 0 || chunkSize <= 0 {
		return nil
	}
	s := &Session{Total: total}
	var out [][2]int64
	for !s.done() {
		start, end := s.nextRange(chunkSize)
		out = append(out, [2]int64{start, end})
		s.advance(end)
	}
	return out
}
