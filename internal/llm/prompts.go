package llm

import (
	"fmt"
	"strings"
	"time"
)

const generateSystemPrompt = `You are a cybersecurity training email generator. You write single realistic emails for a phishing-awareness exercise and follow the requested output format exactly.`

const evaluateSystemPrompt = `You are a rigorous security trainer. Be firm, specific, and constructive. Do not invent details not present in the email.`

const assignmentSystemPrompt = `You are a security awareness instructor grading a phishing email written by a trainee as an exercise. Grade the craft, not the ethics.`

// BuildMessages renders the chat messages for a completion request.
func BuildMessages(req CompletionRequest) (system string, messages []Message) {
	switch r := req.(type) {
	case GenerateEmail:
		return generateSystemPrompt, []Message{{Role: RoleUser, Content: generatePrompt(r, time.Now())}}
	case EvaluateExplanation:
		return evaluateSystemPrompt, []Message{{Role: RoleUser, Content: evaluatePrompt(r)}}
	case ScoreAssignment:
		return assignmentSystemPrompt, []Message{{Role: RoleUser, Content: assignmentPrompt(r)}}
	}
	return "", nil
}

var difficultyGuidance = map[Difficulty]string{
	DifficultyEasy:   "Make the cues obvious: misspelled lookalike domains, heavy urgency, generic greetings.",
	DifficultyMedium: "Make the cues moderate: a plausible brand with one or two inconsistencies a careful reader would notice.",
	DifficultyHard:   "Make the cues subtle: polished tone, a near-perfect lookalike domain or a legitimate email that superficially resembles a scam.",
}

func generatePrompt(r GenerateEmail, now time.Time) string {
	var b strings.Builder

	b.WriteString("Create ONE realistic email for a phishing simulation.\n\n")
	if r.LearnerName != "" {
		fmt.Fprintf(&b, "Learner name: %s\n", r.LearnerName)
	}
	if r.Performance != "" {
		fmt.Fprintf(&b, "Performance summary: %s\n", r.Performance)
	}
	fmt.Fprintf(&b, "Difficulty: %s. %s\n", r.Difficulty, difficultyGuidance[r.Difficulty])
	if len(r.TopicHints) > 0 {
		fmt.Fprintf(&b, "Topic ideas: %s\n", strings.Join(r.TopicHints, ", "))
	}

	b.WriteString("\nOutput strictly in EXACTLY the following format (no extra commentary, no code fences):\n\n")
	b.WriteString("Sender: <single email address>\n")
	b.WriteString("Subject: <concise subject>\n")
	fmt.Fprintf(&b, "Date: %s\n", now.Format("January 02, 2006"))
	b.WriteString("Content:\n<html><body>\n<!-- email body as HTML paragraphs and links; no external CSS -->\n</body></html>\n")
	b.WriteString("Is_spam: <true|false>\n\n")

	b.WriteString("Guidelines:\n")
	b.WriteString("- If phishing (Is_spam: true): include identifiable red flags (lookalike domains, mismatched link text vs href, urgency, credential or payment requests).\n")
	b.WriteString("- If legitimate (Is_spam: false): realistic tone with legitimate cues and no phishing indicators.\n")
	b.WriteString("- Vary topics; avoid the words \"phishing\" or \"simulation\".\n")
	b.WriteString("- Do NOT include any fields other than Sender, Subject, Date, Content, Is_spam in that exact order.\n")

	return b.String()
}

func evaluatePrompt(r EvaluateExplanation) string {
	var b strings.Builder

	b.WriteString("Evaluate the learner's analysis of a potential phishing email.\n\n")
	b.WriteString("EMAIL (verbatim HTML/text):\n")
	b.WriteString(r.EmailContent)
	b.WriteString("\n\nGround truth:\n")
	fmt.Fprintf(&b, "This %s a phishing/spam email.\n\n", isOrIsNot(r.IsSpam))
	b.WriteString("Learner's verdict:\n")
	fmt.Fprintf(&b, "The learner said this %s a phishing/spam email.\n\n", isOrIsNot(r.Verdict))
	b.WriteString("Learner's explanation (verbatim):\n")
	b.WriteString(r.LearnerText)

	b.WriteString(`

Write feedback in Markdown with these exact sections and headings:

## 1. Verdict
State whether the learner's verdict is Correct or Incorrect, with a one-sentence reason anchored to the email content.

## 2. What we expected to see
At least 3 specific indicators a strong analysis should mention, each with a short why-it-matters.

## 3. What you did well
Bullet points citing correct observations from the explanation.

## 4. Where you went wrong
Bullet points, one per miss or mistake.

## 5. Evidence from the email
Quote 2-4 snippets from the email that support the correct verdict.

## 6. How to improve next time
3 concrete, actionable tips.

## 7. Score (1-10)
Write "Score: N/10" followed by a one-line justification.

Rules:
- Be concise but specific. Prefer bullet points over paragraphs.
- Never claim facts outside the email.
- If the verdict is right but the reasoning is weak, say so explicitly.
`)
	return b.String()
}

func assignmentPrompt(r ScoreAssignment) string {
	var b strings.Builder

	b.WriteString("Evaluate this trainee-written phishing email against four criteria:\n")
	b.WriteString("1. Social engineering tactics (30 points)\n")
	b.WriteString("2. Technical deception such as lookalike domains and disguised links (30 points)\n")
	b.WriteString("3. Psychological triggers such as urgency, fear or curiosity (20 points)\n")
	b.WriteString("4. Overall realism (20 points)\n\n")
	b.WriteString("For each criterion, assign a specific score and explain why.\n\n")
	b.WriteString("EMAIL:\n")
	b.WriteString(r.LearnerCraftedEmail)
	b.WriteString("\n\nEnd your answer with exactly these two lines:\n")
	b.WriteString("Overall score: N/100\n")
	b.WriteString("Effectiveness rating: Low|Medium|High|Very High\n")

	return b.String()
}

func isOrIsNot(b bool) string {
	if b {
		return "IS"
	}
	return "IS NOT"
}
