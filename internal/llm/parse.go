package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrEmptyPayload      = errors.New("empty payload")
	ErrIncompleteEmail   = errors.New("generated email is missing fields")
	ErrMissingAssessment = errors.New("assessment has no overall score")
)

// Payload is the parsed, operation-specific content of a completion.
type Payload interface {
	isPayload()
}

// GeneratedEmail is the parsed result of a GenerateEmail request.
type GeneratedEmail struct {
	Sender  string
	Subject string
	Date    string
	Content string
	IsSpam  bool
}

// Evaluation is the parsed result of an EvaluateExplanation request.
type Evaluation struct {
	Feedback string // markdown
	Score    int    // 1-10
	// ScoreFound is false when no score could be read from the feedback and
	// Score holds the correctness-based default.
	ScoreFound bool
}

// Assessment is the parsed result of a ScoreAssignment request.
type Assessment struct {
	Feedback string
	Score    int // 0-100
	Rating   string
}

func (*GeneratedEmail) isPayload() {}
func (*Evaluation) isPayload()     {}
func (*Assessment) isPayload()     {}

// ParsePayload validates the raw completion text for the request's operation.
func ParsePayload(req CompletionRequest, text string) (Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPayload
	}

	switch r := req.(type) {
	case GenerateEmail:
		return ParseEmail(text)
	case EvaluateExplanation:
		return ParseEvaluation(text, r.Verdict == r.IsSpam), nil
	case ScoreAssignment:
		return ParseAssessment(text)
	}
	return nil, fmt.Errorf("unsupported request %T", req)
}

// ParseEmail reads the Sender/Subject/Date/Content/Is_spam block.
func ParseEmail(text string) (*GeneratedEmail, error) {
	text = stripCodeFence(text)

	email := &GeneratedEmail{}
	var content []string
	inContent := false
	sawVerdict := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		key, value, ok := headerField(trimmed)

		if ok && key == "is_spam" {
			inContent = false
			sawVerdict = true
			email.IsSpam = strings.EqualFold(strings.Trim(value, "<>* "), "true")
			continue
		}
		if inContent {
			content = append(content, line)
			continue
		}
		if !ok {
			continue
		}

		switch key {
		case "sender", "from":
			email.Sender = value
		case "subject":
			email.Subject = value
		case "date":
			email.Date = value
		case "content", "body":
			inContent = true
			if value != "" {
				content = append(content, value)
			}
		}
	}

	email.Content = strings.TrimSpace(strings.Join(content, "\n"))
	if email.Sender == "" || email.Subject == "" || email.Content == "" || !sawVerdict {
		return nil, ErrIncompleteEmail
	}
	return email, nil
}

var (
	sectionScoreRe = regexp.MustCompile(`(?im)^\W*(?:score|rating)[^0-9\n]*(10|[1-9])\b`)
	outOfTenRe     = regexp.MustCompile(`\b(\d{1,2})\s*/\s*10\b`)
	digitsRe       = regexp.MustCompile(`\d+`)
)

// ExtractScore finds a 1-10 score in evaluation feedback.
func ExtractScore(text string) (int, bool) {
	if idx := strings.Index(text, "## 7"); idx >= 0 {
		// Skip the heading line, it carries the "(1-10)" range.
		body := text[idx:]
		if nl := strings.Index(body, "\n"); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = ""
		}
		if m := outOfTenRe.FindStringSubmatch(body); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 10 {
				return n, true
			}
		}
		if m := sectionScoreRe.FindStringSubmatch(body); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}

	if m := outOfTenRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 10 {
			return n, true
		}
	}

	if _, after, ok := strings.Cut(text, "scale of 1-10"); ok {
		line, _, _ := strings.Cut(after, "\n")
		if d := digitsRe.FindString(line); d != "" {
			if n, err := strconv.Atoi(d); err == nil && n >= 1 && n <= 10 {
				return n, true
			}
		}
	}

	return 0, false
}

// DefaultScore is the correctness-only score used when no evaluator score
// is available.
func DefaultScore(correct bool) int {
	if correct {
		return 8
	}
	return 3
}

// ParseEvaluation extracts the score from markdown feedback.
func ParseEvaluation(text string, correct bool) *Evaluation {
	eval := &Evaluation{Feedback: text}
	if n, ok := ExtractScore(text); ok {
		eval.Score = n
		eval.ScoreFound = true
	} else {
		eval.Score = DefaultScore(correct)
	}
	return eval
}

var (
	overallScoreRe = regexp.MustCompile(`(?i)overall\s+score[^0-9\n]*(\d{1,3})`)
	ratingRe       = regexp.MustCompile(`(?i)effectiveness\s+rating[^A-Za-z\n]*(very\s+high|high|medium|low)`)
)

// ParseAssessment reads the overall score and rating lines.
func ParseAssessment(text string) (*Assessment, error) {
	m := overallScoreRe.FindStringSubmatch(text)
	if m == nil {
		return nil, ErrMissingAssessment
	}
	score, err := strconv.Atoi(m[1])
	if err != nil || score > 100 {
		return nil, ErrMissingAssessment
	}

	a := &Assessment{Feedback: text, Score: score}
	if r := ratingRe.FindStringSubmatch(text); r != nil {
		a.Rating = normalizeRating(r[1])
	} else {
		a.Rating = RatingForScore(score)
	}
	return a, nil
}

// RatingForScore buckets a 0-100 score into an effectiveness rating.
func RatingForScore(score int) string {
	switch {
	case score >= 85:
		return "Very High"
	case score >= 65:
		return "High"
	case score >= 40:
		return "Medium"
	default:
		return "Low"
	}
}

func normalizeRating(s string) string {
	switch strings.Join(strings.Fields(strings.ToLower(s)), " ") {
	case "very high":
		return "Very High"
	case "high":
		return "High"
	case "medium":
		return "Medium"
	default:
		return "Low"
	}
}

func headerField(line string) (key, value string, ok bool) {
	line = strings.TrimLeft(line, "*# ")
	k, v, found := strings.Cut(line, ":")
	if !found || strings.ContainsAny(k, " <") && !strings.EqualFold(strings.TrimSpace(k), "is spam") {
		return "", "", false
	}
	k = strings.ToLower(strings.Trim(strings.TrimSpace(k), "*"))
	if k == "is spam" {
		k = "is_spam"
	}
	return k, strings.TrimSpace(strings.Trim(v, " *")), true
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "```")
}
