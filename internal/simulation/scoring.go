package simulation

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/phishdrill/internal/llm"
)

// RuleBasedScore scores a phase-2 answer on classification correctness
// alone. It produces no feedback.
func RuleBasedScore(correct bool) int {
	return llm.DefaultScore(correct)
}

type indicator struct {
	name   string
	points int
	terms  []string
}

var assignmentIndicators = []indicator{
	{"urgency or pressure", 20, []string{"urgent", "immediately", "within 24 hours", "expire", "suspended", "final notice", "act now", "asap"}},
	{"call to action link", 20, []string{"http://", "https://", "click here", "click the link", "<a "}},
	{"credential or payment request", 20, []string{"password", "verify", "login", "log in", "account details", "payment", "credit card", "ssn"}},
	{"impersonated authority", 15, []string{"security team", "it department", "support team", "bank", "paypal", "microsoft", "amazon", "hr department"}},
	{"personal greeting", 10, []string{"dear ", "hi ", "hello "}},
	{"subject line", 5, []string{"subject:"}},
}

// AssessLocally scores a learner-crafted phishing email with keyword
// heuristics. It backs ScoreAssignment when every provider failed.
func AssessLocally(email string) (score int, rating, feedback string) {
	lower := strings.ToLower(email)
	score = 10

	var found, missing []string
	for _, ind := range assignmentIndicators {
		hit := false
		for _, term := range ind.terms {
			if strings.Contains(lower, term) {
				hit = true
				break
			}
		}
		if hit {
			score += ind.points
			found = append(found, ind.name)
		} else {
			missing = append(missing, ind.name)
		}
	}
	if score > 100 {
		score = 100
	}
	rating = llm.RatingForScore(score)

	var b strings.Builder
	b.WriteString("Automated assessment (no evaluator available).\n\n")
	if len(found) > 0 {
		fmt.Fprintf(&b, "Techniques used: %s.\n", strings.Join(found, ", "))
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "Techniques missing: %s.\n", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, "\nOverall score: %d/100\nEffectiveness rating: %s\n", score, rating)
	return score, rating, b.String()
}
