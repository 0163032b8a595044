// Package content holds the depth-tiered content model: a published
// Aggregate with hook, main and full tiers plus the responses appended to it.
package content

import (
	"strings"
	"time"
)

// DefaultAuthor is used for creators and responders who leave the name blank.
const DefaultAuthor = "Anonymous User"

// PlaceholderSection is the section title injected when full has none.
const PlaceholderSection = "Introduction"

// Type declares which tiers carry video.
type Type string

const (
	TypeText  Type = "text"
	TypeVideo Type = "video"
	TypeMixed Type = "mixed"
)

// Tier is one depth level, ordered hook < main < full.
type Tier string

const (
	TierHook Tier = "hook"
	TierMain Tier = "main"
	TierFull Tier = "full"
)

// Tiers lists every depth level in reading order.
var Tiers = []Tier{TierHook, TierMain, TierFull}

// ParseTier maps a path or form value onto a Tier.
func ParseTier(raw string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierHook:
		return TierHook, true
	case TierMain:
		return TierMain, true
	case TierFull:
		return TierFull, true
	default:
		return "", false
	}
}

// Depth returns the zero-based depth of the tier, or -1 for unknown values.
func (t Tier) Depth() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return -1
}

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Citation struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty" validate:"omitempty,url"`
}

type Hook struct {
	Medium Medium `json:"medium"`
}

type Main struct {
	Medium     Medium   `json:"medium"`
	Visuals    []string `json:"visuals"`
	KeyPoints  []string `json:"keyPoints"`
	References []string `json:"references"`
}

type Full struct {
	Primary    Medium     `json:"primaryContent"`
	Sections   []Section  `json:"sections"`
	References []Citation `json:"references" validate:"dive"`
	Visuals    []string   `json:"visuals"`
}

// Aggregate is the unit of publication. It is created once and afterwards
// only grows through appended responses.
type Aggregate struct {
	ID          string     `json:"id"`
	Creator     string     `json:"creator"`
	DateCreated time.Time  `json:"dateCreated"`
	Complexity  int        `json:"complexity" validate:"min=1,max=10"`
	Discipline  string     `json:"discipline" validate:"notblank"`
	Topic       string     `json:"topic" validate:"notblank"`
	ContentType Type       `json:"contentType,omitempty" validate:"omitempty,oneof=text video mixed"`
	Hook        Hook       `json:"hook"`
	Main        Main       `json:"main"`
	Full        Full       `json:"full"`
	Responses   []Response `json:"responses"`
}

// Response is reader feedback attached to an Aggregate. Votes and Views
// have no mutation path and stay at zero.
type Response struct {
	ID          string     `json:"id"`
	Medium      Medium     `json:"medium"`
	Citations   []Citation `json:"citations" validate:"dive"`
	Author      string     `json:"author"`
	DateCreated time.Time  `json:"dateCreated"`
	Votes       int        `json:"votes"`
	Views       int        `json:"views"`
}

// NewDraft returns an aggregate carrying the compose defaults.
func NewDraft() Aggregate {
	return Aggregate{
		Creator:    DefaultAuthor,
		Complexity: 5,
		Hook:       Hook{Medium: Text("")},
		Main: Main{
			Medium:     Text(""),
			Visuals:    []string{},
			KeyPoints:  []string{""},
			References: []string{},
		},
		Full: Full{
			Primary:    Text(""),
			Sections:   []Section{{Title: PlaceholderSection}},
			References: []Citation{},
			Visuals:    []string{},
		},
		Responses: []Response{},
	}
}

// NewResponse returns a response with the default author and zero counters.
func NewResponse() Response {
	return Response{
		Medium:    Text(""),
		Citations: []Citation{},
		Author:    DefaultAuthor,
	}
}

// EnsureSections injects the placeholder section when full has none.
func (a *Aggregate) EnsureSections() {
	if len(a.Full.Sections) == 0 {
		a.Full.Sections = []Section{{Title: PlaceholderSection}}
	}
}

// Medium returns the primary medium of a tier.
func (a *Aggregate) Medium(tier Tier) Medium {
	switch tier {
	case TierHook:
		return a.Hook.Medium
	case TierMain:
		return a.Main.Medium
	case TierFull:
		return a.Full.Primary
	default:
		return Medium{}
	}
}

// SetMedium replaces the primary medium of a tier.
func (a *Aggregate) SetMedium(tier Tier, m Medium) {
	switch tier {
	case TierHook:
		a.Hook.Medium = m
	case TierMain:
		a.Main.Medium = m
	case TierFull:
		a.Full.Primary = m
	}
}

// InferType derives the content type from which tiers carry video. Tiers
// with an empty medium do not count.
func InferType(a Aggregate) Type {
	var text, video int
	for _, tier := range Tiers {
		m := a.Medium(tier)
		switch {
		case m.IsEmpty():
		case m.Kind == KindVideo:
			video++
		default:
			text++
		}
	}
	switch {
	case video > 0 && text > 0:
		return TypeMixed
	case video > 0:
		return TypeVideo
	default:
		return TypeText
	}
}
