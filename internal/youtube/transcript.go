// Package youtube fetches videos and caption transcripts from YouTube.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gifscribe/gifscribe-agent/internal/logging"
)

// ErrNoTranscript is returned when a video has no usable caption track.
var ErrNoTranscript = errors.New("no transcript available")

const (
	// playerResponseMarker marks the start of the player response JSON in
	// the watch page HTML.
	playerResponseMarker = "ytInitialPlayerResponse = "

	defaultBaseURL   = "https://www.youtube.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxWatchPage     = 6 * 1024 * 1024
	maxTimedText     = 2 * 1024 * 1024
)

// TranscriptEntry is one caption line. Entries are ordered by Start and are
// not validated for overlap or sign.
type TranscriptEntry struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// TranscriptOptions configures a TranscriptClient.
type TranscriptOptions struct {
	BaseURL    string
	Languages  []string
	HTTPClient *http.Client
	Retry      RetryPolicy
	// RequestsPerSecond paces outbound requests; zero disables pacing.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// TranscriptClient scrapes caption tracks from the watch page and downloads
// the timedtext XML of the best matching track.
type TranscriptClient struct {
	baseURL string
	langs   []string
	fetch   *fetcher
	logger  *slog.Logger
}

func NewTranscriptClient(opts TranscriptOptions) *TranscriptClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"en"}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &TranscriptClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		langs:   opts.Languages,
		fetch: &fetcher{
			client:    opts.HTTPClient,
			limiter:   limiter,
			policy:    opts.Retry,
			userAgent: defaultUserAgent,
		},
		logger: opts.Logger,
	}
}

// FetchTranscript returns the caption entries of the video at videoURL.
// ErrNoTranscript is returned when the video has no captions.
func (c *TranscriptClient) FetchTranscript(ctx context.Context, videoURL string) ([]TranscriptEntry, error) {
	videoID, err := ExtractVideoID(videoURL)
	if err != nil {
		return nil, err
	}

	page, err := c.fetch.get(ctx, watchPageURL(c.baseURL, videoID), maxWatchPage)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	tracks, err := captionTracks(page)
	if err != nil {
		return nil, err
	}
	track, ok := pickBestTrack(tracks, c.langs)
	if !ok {
		return nil, fmt.Errorf("%w: all caption tracks require a browser token", ErrNoTranscript)
	}

	c.logger.Debug("caption track selected",
		"video_id", videoID,
		"lang", track.LanguageCode,
		"kind", track.Kind,
		"url", logging.SanitizeURL(track.BaseURL),
	)

	body, err := c.fetch.get(ctx, track.BaseURL, maxTimedText)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	return parseTimedText(body)
}

func captionTracks(page []byte) ([]captionTrack, error) {
	idx := bytes.Index(page, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	data := extractJSON(page[idx+len(playerResponseMarker):])
	if data == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var resp playerResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if resp.Captions == nil {
		if resp.PlayabilityStatus != nil && resp.PlayabilityStatus.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoTranscript, resp.PlayabilityStatus.Reason)
		}
		return nil, ErrNoTranscript
	}
	tracks := resp.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, ErrNoTranscript
	}
	return tracks, nil
}

// watchPageURL returns the watch page of videoID under baseURL.
func watchPageURL(baseURL, videoID string) string {
	return baseURL + "/watch?" + url.Values{"v": {videoID}}.Encode()
}

// needsPoToken reports whether a caption track URL can only be fetched by
// a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// extractJSON returns the complete JSON object starting at b[0] by tracking
// brace depth outside of string literals.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// timedText covers both timedtext formats: the default
// <transcript><text start dur> and srv3 <timedtext><body><p t d> in
// milliseconds.
type timedText struct {
	XMLName xml.Name
	Texts   []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
	Body struct {
		Paragraphs []struct {
			T    int64  `xml:"t,attr"`
			D    int64  `xml:"d,attr"`
			Text string `xml:",chardata"`
			Segs []struct {
				Text string `xml:",chardata"`
			} `xml:"s"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseTimedText(body []byte) ([]TranscriptEntry, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	entries := make([]TranscriptEntry, 0, len(tt.Texts)+len(tt.Body.Paragraphs))
	for _, t := range tt.Texts {
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		entries = append(entries, TranscriptEntry{
			Start:    start,
			Duration: dur,
			Text:     cleanText(t.Text),
		})
	}

	for _, p := range tt.Body.Paragraphs {
		text := p.Text
		if len(p.Segs) > 0 {
			var sb strings.Builder
			for _, s := range p.Segs {
				sb.WriteString(s.Text)
			}
			text = sb.String()
		}
		text = cleanText(text)
		// srv3 uses empty paragraphs as line-append markers
		if text == "" {
			continue
		}
		entries = append(entries, TranscriptEntry{
			Start:    float64(p.T) / 1000,
			Duration: float64(p.D) / 1000,
			Text:     text,
		})
	}
	return entries, nil
}

// cleanText unescapes the HTML entities YouTube double-encodes and folds
// line breaks into spaces, since captions are drawn on a single line.
func cleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
