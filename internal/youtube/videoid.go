package youtube

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned when no video ID can be extracted from a link.
var ErrInvalidURL = errors.New("invalid youtube url")

var videoIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID returns the video ID of a YouTube link. It understands
// watch?v=, youtu.be/, /shorts/, /embed/ and /live/ links as well as bare
// IDs, and falls back to the text after the first "v=".
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if videoIDRE.MatchString(raw) {
		return raw, nil
	}

	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		host = strings.TrimPrefix(host, "m.")
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")

		switch {
		case host == "youtu.be" && segments[0] != "":
			return validID(segments[0])
		case strings.HasSuffix(host, "youtube.com") || strings.HasSuffix(host, "youtube-nocookie.com"):
			if v := u.Query().Get("v"); v != "" {
				return validID(v)
			}
			if len(segments) >= 2 {
				switch segments[0] {
				case "shorts", "embed", "live", "v":
					return validID(segments[1])
				}
			}
		}
	}

	// Fallback: everything after the first "v=" up to the next parameter.
	if _, after, ok := strings.Cut(raw, "v="); ok {
		id, _, _ := strings.Cut(after, "&")
		return validID(id)
	}
	return "", ErrInvalidURL
}

func validID(id string) (string, error) {
	id, _, _ = strings.Cut(id, "?")
	if id == "" {
		return "", ErrInvalidURL
	}
	return id, nil
}
