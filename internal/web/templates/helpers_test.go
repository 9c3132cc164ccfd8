package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestFormatHelpers(t *testing.T) {
	if got := formatValues([]float64{0.5, 1e-9}); got != "0.5, 1e-09" {
		t.Errorf("formatValues = %q", got)
	}
	if got := formatValues(nil); got != "-" {
		t.Errorf("formatValues(nil) = %q", got)
	}
	if got := formatCount(12345); got != "12,345" {
		t.Errorf("formatCount = %q", got)
	}
	if got := formatAttrs(map[string]any{"b": 2, "a": "x"}); got != "a=x, b=2" {
		t.Errorf("formatAttrs = %q", got)
	}
	d := 1500 * time.Millisecond
	if got := formatDuration(&d); got != "1.5s" {
		t.Errorf("formatDuration = %q", got)
	}
	past := time.Now().Add(-3 * time.Hour)
	if got := formatTime(&past); got != "3 hours ago" {
		t.Errorf("formatTime = %q", got)
	}
	if got := formatTime(nil); got != "-" {
		t.Errorf("formatTime(nil) = %q", got)
	}
}

func TestStudyPage_Render(t *testing.T) {
	var buf bytes.Buffer
	detail := StudyDetail{
		Name:       "s",
		Directions: []string{"MINIMIZE", "MAXIMIZE"},
		States:     map[string]int{"COMPLETE": 1, "FAIL": 2},
		Trials: []TrialRow{
			{Number: 0, State: "COMPLETE", Values: []float64{1, 2}, Params: map[string]any{"x": "<y>"}, Best: true},
		},
	}
	if err := StudyPage(detail).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"MINIMIZE, MAXIMIZE", "COMPLETE: 1", "FAIL: 2", "x=&lt;y&gt;", `class="best"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestStudyURL_EscapesName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"quadratic", "/studies/quadratic"},
		{"a/b", "/studies/a%2Fb"},
		{"lr?0.1#x", "/studies/lr%3F0.1%23x"},
		{"two words", "/studies/two%20words"},
	}
	for _, tt := range tests {
		if got := string(studyURL(tt.name)); got != tt.want {
			t.Errorf("studyURL(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
