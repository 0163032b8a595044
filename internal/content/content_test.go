package content

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func validDraft() Aggregate {
	a := NewDraft()
	a.ID = "c1"
	a.Topic = "X"
	a.Discipline = "Y"
	a.Hook.Medium = Text("hi")
	return a
}

func TestNewDraftDefaults(t *testing.T) {
	a := NewDraft()
	if a.Creator != DefaultAuthor {
		t.Errorf("expected creator %q, got %q", DefaultAuthor, a.Creator)
	}
	if a.Complexity != 5 {
		t.Errorf("expected complexity 5, got %d", a.Complexity)
	}
	if len(a.Full.Sections) != 1 || a.Full.Sections[0].Title != PlaceholderSection {
		t.Errorf("expected placeholder section, got %+v", a.Full.Sections)
	}
	if len(a.Main.KeyPoints) != 1 || a.Main.KeyPoints[0] != "" {
		t.Errorf("expected one blank key point, got %+v", a.Main.KeyPoints)
	}
	if a.ContentType != "" {
		t.Errorf("expected unset content type, got %q", a.ContentType)
	}
}

func TestValidateAcceptsHookOnlyText(t *testing.T) {
	if err := Validate(validDraft()); err != nil {
		t.Fatalf("expected valid aggregate, got %v", err)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	a := NewDraft()
	a.Complexity = 11
	a.ContentType = "audio"
	a.Full.Sections = nil

	err := Validate(a)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	want := map[string]bool{
		"complexity":    false,
		"discipline":    false,
		"topic":         false,
		"contentType":   false,
		"hook":          false,
		"full.sections": false,
	}
	for _, f := range verr.Fields {
		if _, ok := want[f.Field]; ok {
			want[f.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected a message for %s, got %+v", field, verr.Fields)
		}
	}
}

func TestValidateBlankTopicUsesJSONName(t *testing.T) {
	a := validDraft()
	a.Topic = "   "
	err := Validate(a)
	if err == nil || !strings.Contains(err.Error(), "topic is required") {
		t.Fatalf("expected topic message, got %v", err)
	}
}

func TestValidateHookVideoNeedsURL(t *testing.T) {
	a := validDraft()
	a.Hook.Medium = Video("", 30)
	if err := Validate(a); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected unresolved video to be rejected, got %v", err)
	}
	a.Hook.Medium = Video("https://cdn.example/videos/abc", 30)
	if err := Validate(a); err != nil {
		t.Fatalf("expected resolved video to pass, got %v", err)
	}
}

func TestValidateRejectsMixedMedium(t *testing.T) {
	a := validDraft()
	a.Main.Medium = Medium{Kind: KindText, Text: "body", VideoURL: "https://cdn.example/v"}
	if err := Validate(a); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected text+video medium to be rejected, got %v", err)
	}
}

func TestValidateCitationURL(t *testing.T) {
	a := validDraft()
	a.Full.References = []Citation{{Text: "paper", URL: "not a url"}}
	if err := Validate(a); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected bad citation url to be rejected, got %v", err)
	}
	a.Full.References = []Citation{{Text: "paper"}}
	if err := Validate(a); err != nil {
		t.Fatalf("expected citation without url to pass, got %v", err)
	}
}

func TestValidateResponse(t *testing.T) {
	r := NewResponse()
	if err := ValidateResponse(r); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected empty text response to be rejected, got %v", err)
	}
	r.Medium = Text("thoughtful reply")
	if err := ValidateResponse(r); err != nil {
		t.Fatalf("expected text response to pass, got %v", err)
	}
	r.Medium = Video("", 0)
	if err := ValidateResponse(r); err == nil || !strings.Contains(err.Error(), "uploaded video") {
		t.Fatalf("expected video response without url to be rejected, got %v", err)
	}
}

func TestEnsureSections(t *testing.T) {
	a := validDraft()
	a.Full.Sections = nil
	a.EnsureSections()
	if len(a.Full.Sections) != 1 || a.Full.Sections[0].Title != PlaceholderSection {
		t.Fatalf("expected placeholder section, got %+v", a.Full.Sections)
	}

	a.Full.Sections = []Section{{Title: "Method"}}
	a.EnsureSections()
	if len(a.Full.Sections) != 1 || a.Full.Sections[0].Title != "Method" {
		t.Fatalf("expected supplied sections untouched, got %+v", a.Full.Sections)
	}
}

func TestInferType(t *testing.T) {
	a := validDraft()
	if got := InferType(a); got != TypeText {
		t.Errorf("expected text, got %q", got)
	}
	a.Hook.Medium = Video("https://cdn.example/h", 45)
	if got := InferType(a); got != TypeVideo {
		t.Errorf("expected video, got %q", got)
	}
	a.Full.Primary = Text("long read")
	if got := InferType(a); got != TypeMixed {
		t.Errorf("expected mixed, got %q", got)
	}
}

func TestMediumUnmarshalInfersKind(t *testing.T) {
	var m Medium
	if err := json.Unmarshal([]byte(`{"videoUrl":"https://cdn.example/v","duration":12}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Kind != KindVideo || m.Duration != 12 {
		t.Fatalf("expected video kind, got %+v", m)
	}
	if err := json.Unmarshal([]byte(`{"text":"hello"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Kind != KindText || m.Text != "hello" || m.VideoURL != "" {
		t.Fatalf("expected text kind, got %+v", m)
	}
}

func TestViewFiltersBlankKeyPoints(t *testing.T) {
	a := validDraft()
	a.Main.KeyPoints = []string{"", "first", "  ", "second"}
	a.Main.References = []string{"Smith 2020", ""}

	v := a.View(TierMain)
	if len(v.KeyPoints) != 2 || v.KeyPoints[0] != "first" || v.KeyPoints[1] != "second" {
		t.Fatalf("expected blank key points filtered in order, got %+v", v.KeyPoints)
	}
	if len(v.References) != 1 || v.References[0].Text != "Smith 2020" {
		t.Fatalf("expected one reference, got %+v", v.References)
	}

	hook := a.View(TierHook)
	if hook.Medium.Text != "hi" || hook.KeyPoints != nil || hook.Sections != nil {
		t.Fatalf("hook view leaked deeper tiers: %+v", hook)
	}

	full := a.View(TierFull)
	if len(full.Sections) != 1 {
		t.Fatalf("expected full sections, got %+v", full.Sections)
	}
}

func TestParseTier(t *testing.T) {
	for _, raw := range []string{"hook", "MAIN", " full "} {
		if _, ok := ParseTier(raw); !ok {
			t.Errorf("expected %q to parse", raw)
		}
	}
	if _, ok := ParseTier("deep"); ok {
		t.Error("expected unknown tier to be rejected")
	}
	if TierHook.Depth() >= TierMain.Depth() || TierMain.Depth() >= TierFull.Depth() {
		t.Error("expected hook < main < full")
	}
}

func TestNotPersistedMatchesUnavailable(t *testing.T) {
	if !errors.Is(ErrNotPersisted, ErrUnavailable) {
		t.Fatal("expected ErrNotPersisted to match ErrUnavailable")
	}
	if errors.Is(ErrUnavailable, ErrNotPersisted) {
		t.Fatal("ErrUnavailable must not match ErrNotPersisted")
	}
}
