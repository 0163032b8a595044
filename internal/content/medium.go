package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags which variant a Medium holds.
type Kind string

const (
	KindText  Kind = "text"
	KindVideo Kind = "video"
)

// Medium is the tagged union Text(text) | Video(url, seconds). Exactly one
// of Text and VideoURL is meaningful, selected by Kind.
type Medium struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Text builds a text medium.
func Text(body string) Medium {
	return Medium{Kind: KindText, Text: body}
}

// Video builds a video medium from a resolved URL and its length in seconds.
func Video(url string, seconds int) Medium {
	return Medium{Kind: KindVideo, VideoURL: url, Duration: seconds}
}

// IsEmpty reports whether the medium carries nothing a reader could view.
func (m Medium) IsEmpty() bool {
	switch m.Kind {
	case KindVideo:
		return strings.TrimSpace(m.VideoURL) == ""
	default:
		return strings.TrimSpace(m.Text) == ""
	}
}

func (m Medium) check(field string, verr *ValidationError) {
	switch m.Kind {
	case KindText:
		if m.VideoURL != "" || m.Duration != 0 {
			verr.add(field, field+" is text and must not carry video fields")
		}
	case KindVideo:
		if m.Text != "" {
			verr.add(field, field+" is video and must not carry text")
		}
		if m.Duration < 0 {
			verr.add(field, field+" duration must not be negative")
		}
	default:
		verr.add(field, fmt.Sprintf("%s kind must be one of [text video], got %q", field, m.Kind))
	}
}

// UnmarshalJSON accepts a missing kind and infers it from the populated field.
func (m *Medium) UnmarshalJSON(data []byte) error {
	type plain Medium
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Kind == "" {
		if decoded.VideoURL != "" {
			decoded.Kind = KindVideo
		} else {
			decoded.Kind = KindText
		}
	}
	*m = Medium(decoded)
	return nil
}
