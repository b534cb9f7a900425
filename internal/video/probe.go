// Package video inspects video files with ffprobe.
package video

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"

	"video-publisher/internal/logging"
)

// probeSem keeps ffprobe runs one at a time, like every other external tool call here.
var probeSem = make(chan struct{}, 1)

// Info is what the uploaders need to know about a video.
type Info struct {
	Width    int
	Height   int
	Duration time.Duration
	Codec    string
}

type Prober struct {
	bin     string
	timeout time.Duration
	log     *logging.Logger
}

func NewProber(bin string, log *logging.Logger) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin, timeout: 30 * time.Second, log: log}
}

// Probe writes data to a temp file and reads its first video stream.
func (p *Prober) Probe(ctx context.Context, data []byte) (*Info, error) {
	f, err := os.CreateTemp("", "probe-*.mp4")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return p.ProbeFile(ctx, f.Name())
}

func (p *Prober) ProbeFile(ctx context.Context, path string) (*Info, error) {
	ctxProbe, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	probeSem <- struct{}{}
	defer func() { <-probeSem }()

	cmd := exec.CommandContext(ctxProbe, p.bin, "-v", "error", "-print_format", "json",
		"-show_format", "-show_streams", "-select_streams", "v:0", path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("ffprobe %s: %s", path, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	info, err := ParseProbe(out)
	if err != nil {
		return nil, err
	}
	p.log.Infof("video: probed %s: %dx%d %s %s", path, info.Width, info.Height, info.Duration, info.Codec)
	return info, nil
}

// ParseProbe reads ffprobe JSON output. Rotated streams report display dimensions.
func ParseProbe(out []byte) (*Info, error) {
	if !gjson.ValidBytes(out) {
		return nil, errors.New("ffprobe: invalid json output")
	}
	stream := gjson.GetBytes(out, "streams.0")
	if !stream.Exists() {
		return nil, errors.New("ffprobe: no video stream")
	}
	info := &Info{
		Width:  int(stream.Get("width").Int()),
		Height: int(stream.Get("height").Int()),
		Codec:  stream.Get("codec_name").String(),
	}

	rotation := stream.Get("tags.rotate").Float()
	if rs := stream.Get("side_data_list.#.rotation").Array(); len(rs) > 0 {
		rotation = rs[0].Float()
	}
	if int(math.Abs(rotation))%180 == 90 {
		info.Width, info.Height = info.Height, info.Width
	}

	secs := gjson.GetBytes(out, "format.duration").Float()
	if secs <= 0 {
		secs = stream.Get("duration").Float()
	}
	if secs > 0 {
		info.Duration = time.Duration(math.Round(secs*1000)) * time.Millisecond
	}
	return info, nil
}
