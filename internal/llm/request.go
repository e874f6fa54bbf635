package llm

import "fmt"

// Operation names a kind of completion request.
type Operation string

const (
	OpGenerateEmail       Operation = "generate_email"
	OpEvaluateExplanation Operation = "evaluate_explanation"
	OpScoreAssignment     Operation = "score_assignment"
)

// Difficulty is the requested subtlety of a generated email.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CompletionRequest is one of GenerateEmail, EvaluateExplanation or
// ScoreAssignment. Each variant carries everything an adapter needs.
type CompletionRequest interface {
	Operation() Operation
	Validate() error
	isCompletionRequest()
}

// GenerateEmail asks for one training email at the given difficulty.
type GenerateEmail struct {
	Difficulty  Difficulty
	TopicHints  []string
	LearnerName string
	// Performance is a short free-text summary of how the learner is doing.
	Performance string
}

// EvaluateExplanation asks for feedback on a learner's reasoning about an email.
type EvaluateExplanation struct {
	EmailContent string
	IsSpam       bool
	Verdict      bool
	LearnerText  string
}

// ScoreAssignment asks for an assessment of a learner-crafted phishing email.
type ScoreAssignment struct {
	LearnerCraftedEmail string
}

func (GenerateEmail) Operation() Operation       { return OpGenerateEmail }
func (EvaluateExplanation) Operation() Operation { return OpEvaluateExplanation }
func (ScoreAssignment) Operation() Operation     { return OpScoreAssignment }

func (GenerateEmail) isCompletionRequest()       {}
func (EvaluateExplanation) isCompletionRequest() {}
func (ScoreAssignment) isCompletionRequest()     {}

func (r GenerateEmail) Validate() error {
	if !r.Difficulty.Valid() {
		return fmt.Errorf("generate email: unknown difficulty %q", r.Difficulty)
	}
	return nil
}

func (r EvaluateExplanation) Validate() error {
	if r.EmailContent == "" {
		return fmt.Errorf("evaluate explanation: email content is required")
	}
	return nil
}

func (r ScoreAssignment) Validate() error {
	if r.LearnerCraftedEmail == "" {
		return fmt.Errorf("score assignment: email is required")
	}
	return nil
}
