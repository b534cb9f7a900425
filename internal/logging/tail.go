package logging

import (
	"bufio"
	"os"
)

// TailLastNLines returns up to n trailing lines of the file at path.
func TailLastNLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// errors.log is truncated on every start, so a full scan stays cheap.
	buf := make([]string, 0, n)
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if len(buf) < n {
			buf = append(buf, line)
			continue
		}
		copy(buf, buf[1:])
		buf[n-1] = line
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}
