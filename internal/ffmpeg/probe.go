package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type probeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio, subtitle
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
}

// MediaInfo describes the first video stream of a file.
type MediaInfo struct {
	Duration   float64 `json:"duration"`
	VideoCodec string  `json:"video_codec"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
}

// Prober reads stream metadata with ffprobe.
type Prober struct {
	runner *Runner
	bin    string
}

func NewProber(runner *Runner, ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{runner: runner, bin: ffprobePath}
}

func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	var out bytes.Buffer
	res := p.runner.Run(ctx, &out, p.bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if !res.IsSuccess() {
		return nil, fmt.Errorf("ffprobe: %s", res.Error())
	}
	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var result probeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)

	for _, s := range result.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.VideoCodec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		info.FrameRate = parseFrameRate(s.AvgFrameRate)
		if info.FrameRate == 0 {
			info.FrameRate = parseFrameRate(s.RFrameRate)
		}
		break
	}

	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("no video stream found")
	}
	return info, nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25". It
// returns 0 for unknown rates ("0/0").
func parseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
