package domain

import (
	"encoding/json"
	"math"
	"testing"
)

func TestAnalysisMarshalFlattensMetadata(t *testing.T) {
	score := 0.42
	a := Analysis{
		Metadata: Metadata{
			Width:  640,
			Height: 480,
			Tags:   map[string]string{"orientation": "1", "make": "Canon"},
		},
		NSFWScore:      &score,
		Classification: map[string]float64{"tabby cat": 0.91},
		MIME:           "image/jpeg",
	}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal analysis: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if got["width"].(float64) != 640 || got["height"].(float64) != 480 {
		t.Fatalf("expected width/height at top level, got %v", got)
	}
	if got["orientation"] != "1" || got["make"] != "Canon" {
		t.Fatalf("expected flattened tags, got %v", got)
	}
	if got["nsfw_score"].(float64) != 0.42 {
		t.Fatalf("expected nsfw_score 0.42, got %v", got["nsfw_score"])
	}
	if got["mime"] != "image/jpeg" {
		t.Fatalf("expected mime image/jpeg, got %v", got["mime"])
	}
}

func TestAnalysisMarshalOmitsEmptyFields(t *testing.T) {
	a := Analysis{Metadata: Metadata{Width: 10, Height: 20}}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal analysis: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected only width and height, got %v", got)
	}
}

func TestAnalysisMarshalFailsOnNonFiniteScore(t *testing.T) {
	nan := math.NaN()
	a := Analysis{Metadata: Metadata{Width: 1, Height: 1}, NSFWScore: &nan}

	if _, err := json.Marshal(a); err == nil {
		t.Fatalf("expected marshal error for NaN score")
	}
}

func TestSourceDomain(t *testing.T) {
	dom, err := SourceDomain("https://images.example.com/cat.jpg")
	if err != nil {
		t.Fatalf("SourceDomain() error = %v", err)
	}
	if dom != "example.com" {
		t.Fatalf("expected example.com, got %q", dom)
	}

	if _, err := SourceDomain(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := SourceDomain("not a url at all\x7f"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}
