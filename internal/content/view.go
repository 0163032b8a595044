package content

import "strings"

// View is the projection of one depth tier handed to a viewer.
type View struct {
	ContentID  string     `json:"contentId"`
	Tier       Tier       `json:"tier"`
	Topic      string     `json:"topic"`
	Discipline string     `json:"discipline"`
	Complexity int        `json:"complexity"`
	Creator    string     `json:"creator"`
	Medium     Medium     `json:"medium"`
	KeyPoints  []string   `json:"keyPoints,omitempty"`
	Visuals    []string   `json:"visuals,omitempty"`
	Sections   []Section  `json:"sections,omitempty"`
	References []Citation `json:"references,omitempty"`
	Responses  int        `json:"responseCount"`
}

// View renders one tier. Blank key points are dropped; main references are
// plain strings and are surfaced as citations without URLs.
func (a *Aggregate) View(tier Tier) View {
	v := View{
		ContentID:  a.ID,
		Tier:       tier,
		Topic:      a.Topic,
		Discipline: a.Discipline,
		Complexity: a.Complexity,
		Creator:    a.Creator,
		Medium:     a.Medium(tier),
		Responses:  len(a.Responses),
	}
	switch tier {
	case TierMain:
		for _, point := range a.Main.KeyPoints {
			if strings.TrimSpace(point) != "" {
				v.KeyPoints = append(v.KeyPoints, point)
			}
		}
		v.Visuals = a.Main.Visuals
		for _, ref := range a.Main.References {
			if strings.TrimSpace(ref) != "" {
				v.References = append(v.References, Citation{Text: ref})
			}
		}
	case TierFull:
		v.Sections = a.Full.Sections
		v.Visuals = a.Full.Visuals
		v.References = a.Full.References
	}
	return v
}
