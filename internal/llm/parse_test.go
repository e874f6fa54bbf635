package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestParseEmail(t *testing.T) {
	email, err := ParseEmail(sampleEmail)
	if err != nil {
		t.Fatalf("ParseEmail() error = %v", err)
	}
	if email.Sender != "security@paypa1-support.com" {
		t.Errorf("Sender = %v", email.Sender)
	}
	if email.Subject != "Unusual sign-in detected" {
		t.Errorf("Subject = %v", email.Subject)
	}
	if email.Date != "March 03, 2026" {
		t.Errorf("Date = %v", email.Date)
	}
	if !strings.Contains(email.Content, `<a href="http://paypa1-support.com/verify">`) {
		t.Errorf("Content = %v, want the anchor preserved", email.Content)
	}
	if strings.Contains(email.Content, "Is_spam") {
		t.Error("Content should not include the Is_spam line")
	}
	if !email.IsSpam {
		t.Error("IsSpam = false, want true")
	}
}

func TestParseEmail_Variants(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantSpam bool
		wantErr  bool
	}{
		{
			name:     "bold markdown labels",
			text:     "**Sender:** news@example.com\n**Subject:** Weekly digest\n**Content:**\n<p>Hello</p>\n**Is_spam:** false",
			wantSpam: false,
		},
		{
			name:     "code fence",
			text:     "```\nSender: a@b.com\nSubject: s\nContent:\n<p>x</p>\nIs_spam: TRUE\n```",
			wantSpam: true,
		},
		{
			name:     "content line with colon",
			text:     "Sender: a@b.com\nSubject: s\nContent:\n<p>Note: reset your password</p>\nIs spam: true",
			wantSpam: true,
		},
		{
			name:    "missing subject",
			text:    "Sender: a@b.com\nContent:\n<p>x</p>\nIs_spam: true",
			wantErr: true,
		},
		{
			name:    "missing verdict",
			text:    "Sender: a@b.com\nSubject: s\nContent:\n<p>x</p>",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEmail(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrIncompleteEmail) {
					t.Errorf("ParseEmail() error = %v, want ErrIncompleteEmail", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEmail() error = %v", err)
			}
			if got.IsSpam != tt.wantSpam {
				t.Errorf("IsSpam = %v, want %v", got.IsSpam, tt.wantSpam)
			}
		})
	}
}

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   int
		wantOK bool
	}{
		{
			name:   "section seven out of ten",
			text:   "## 1. Verdict\nCorrect.\n\n## 7. Score (1-10)\nScore: 7/10 because the reasoning was solid.",
			want:   7,
			wantOK: true,
		},
		{
			name:   "section seven plain number",
			text:   "## 7. Score (1–10)\n**Score:** 9 - thorough",
			want:   9,
			wantOK: true,
		},
		{
			name:   "ten",
			text:   "## 7. Score (1-10)\nScore: 10/10",
			want:   10,
			wantOK: true,
		},
		{
			name:   "anywhere out of ten",
			text:   "Overall I would give this 6/10.",
			want:   6,
			wantOK: true,
		},
		{
			name:   "scale phrase",
			text:   "On a scale of 1-10 this is a 4.",
			want:   4,
			wantOK: true,
		},
		{
			name:   "no score",
			text:   "## 1. Verdict\nCorrect.",
			wantOK: false,
		},
		{
			name:   "heading range only",
			text:   "## 7. Score (1-10)\nNo score given.",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractScore(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ExtractScore() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ExtractScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEvaluation_DefaultScore(t *testing.T) {
	if got := ParseEvaluation("Good reasoning.", true); got.Score != 8 || got.ScoreFound {
		t.Errorf("correct: Score = %v, ScoreFound = %v, want 8/false", got.Score, got.ScoreFound)
	}
	if got := ParseEvaluation("Missed the domain.", false); got.Score != 3 {
		t.Errorf("wrong: Score = %v, want 3", got.Score)
	}
}

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantScore  int
		wantRating string
		wantErr    bool
	}{
		{"explicit", "...\nOverall score: 78/100\nEffectiveness rating: High", 78, "High", false},
		{"very high", "Overall Score - 92\nEffectiveness Rating: very  high", 92, "Very High", false},
		{"rating derived", "Overall score: 30/100", 30, "Low", false},
		{"missing", "Looks convincing.", 0, "", true},
		{"out of range", "Overall score: 250", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAssessment(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Error("ParseAssessment() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAssessment() error = %v", err)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.Rating != tt.wantRating {
				t.Errorf("Rating = %v, want %v", got.Rating, tt.wantRating)
			}
		})
	}
}

func TestBuildMessages(t *testing.T) {
	tests := []struct {
		name string
		req  CompletionRequest
		want string
	}{
		{"generate", GenerateEmail{Difficulty: DifficultyHard, TopicHints: []string{"payroll"}}, "Topic ideas: payroll"},
		{"evaluate", EvaluateExplanation{EmailContent: "<p>x</p>", IsSpam: true, Verdict: false, LearnerText: "looks fine"}, "## 7. Score (1-10)"},
		{"assignment", ScoreAssignment{LearnerCraftedEmail: "Dear user"}, "Overall score: N/100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs := BuildMessages(tt.req)
			if system == "" {
				t.Error("system prompt should not be empty")
			}
			if len(msgs) != 1 || msgs[0].Role != RoleUser {
				t.Fatalf("messages = %+v, want one user message", msgs)
			}
			if !strings.Contains(msgs[0].Content, tt.want) {
				t.Errorf("prompt missing %q", tt.want)
			}
		})
	}
}

func TestEvaluatePrompt_GroundTruth(t *testing.T) {
	_, msgs := BuildMessages(EvaluateExplanation{EmailContent: "x", IsSpam: true, Verdict: false, LearnerText: "fine"})
	if !strings.Contains(msgs[0].Content, "This IS a phishing/spam email.") {
		t.Error("prompt should state ground truth")
	}
	if !strings.Contains(msgs[0].Content, "The learner said this IS NOT a phishing/spam email.") {
		t.Error("prompt should state learner verdict")
	}
}
