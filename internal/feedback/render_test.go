package feedback

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "sections",
			input:    "## 1. Verdict\nYou were **correct**.\n\n## 7. Score (1-10)\nScore: 8/10",
			contains: []string{"<h2>1. Verdict</h2>", "<strong>correct</strong>", "Score: 8/10"},
		},
		{
			name:     "lists",
			input:    "- mismatched sender\n- urgent tone",
			contains: []string{"<ul>", "<li>mismatched sender</li>"},
		},
		{
			name:     "raw html dropped",
			input:    "Check the link <script>alert(1)</script>",
			excludes: []string{"<script>"},
		},
		{
			name:     "hard wraps",
			input:    "line one\nline two",
			contains: []string{"<br>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.input)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("output contains %q:\n%s", bad, got)
				}
			}
		})
	}
}

func TestRender_Empty(t *testing.T) {
	r := NewRenderer()
	if got, _ := r.Render("  \n"); got != "" {
		t.Errorf("Render(blank) = %q, want empty", got)
	}
	if got, _ := r.RenderPtr(nil); got != "" {
		t.Errorf("RenderPtr(nil) = %q, want empty", got)
	}
	s := "*ok*"
	if got, _ := r.RenderPtr(&s); !strings.Contains(got, "<em>ok</em>") {
		t.Errorf("RenderPtr() = %q", got)
	}
}
