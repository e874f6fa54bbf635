package simulation

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/llm"
	"github.com/lithammer/shortuuid/v4"
)

type template struct {
	sender  string
	subject string
	content string
	isSpam  bool
}

// templates alternate phishing and legitimate mail so that a run of
// fallback slots still mixes both.
var templates = []template{
	{
		sender:  "security@company-portal.net",
		subject: "Password Reset Required",
		content: `<p>Dear User,</p>
<p>Our systems have detected that your password will expire in 24 hours.</p>
<p>To reset your password, please click the link below:</p>
<p><a href="https://company-portal.net/reset">Reset Password</a></p>
<p>IT Department</p>`,
		isSpam: true,
	},
	{
		sender:  "newsletter@legitimate-news.com",
		subject: "Weekly Technology Update",
		content: `<p>Hello subscriber,</p>
<p>This week's top tech stories:</p>
<ul>
<li>New advances in AI development</li>
<li>Tech company quarterly results</li>
<li>Upcoming product releases</li>
</ul>
<p>Read more on our <a href="https://legitimate-news.com">website</a>.</p>`,
		isSpam: false,
	},
	{
		sender:  "support@cloud-storage.com",
		subject: "Action Required: Account Verification",
		content: `<p>Dear Customer,</p>
<p>We've noticed unusual login attempts on your account.</p>
<p>To secure your account, please verify your identity by clicking the link below:</p>
<p><a href="https://verification.cloud-storage.com/verify">Verify Account</a></p>
<p>If you ignore this message, your account may be temporarily restricted.</p>
<p>Cloud Storage Security Team</p>`,
		isSpam: true,
	},
	{
		sender:  "updates@spotify.com",
		subject: "Your Weekly Music Recommendations",
		content: `<p>Hey music lover!</p>
<p>Based on your listening history, we think you might enjoy these tracks:</p>
<ul>
<li>"Summer Nights" by The Melodics</li>
<li>"Distant Dreams" by Skywave</li>
<li>"Rhythm &amp; Soul" by Urban Collective</li>
</ul>
<p>Check out your personalized playlist on the <a href="https://spotify.com/recommendations">website</a>.</p>
<p>The Spotify Team</p>`,
		isSpam: false,
	},
	{
		sender:  "alert@bank-secure.com",
		subject: "Unusual Activity Detected on Your Account",
		content: `<p>Dear Valued Customer,</p>
<p>We have detected unusual activity on your bank account.</p>
<p>Please verify your identity by clicking the link below and entering your account details:</p>
<p><a href="https://bank-secure.com/verify">Verify Account</a></p>
<p>Bank Security Team</p>`,
		isSpam: true,
	},
	{
		sender:  "no-reply@github.com",
		subject: "Security Alert: New Sign-in to GitHub",
		content: `<p>Hello,</p>
<p>We noticed a new sign-in to your GitHub account from a new device: Chrome on Windows, San Francisco, CA, USA.</p>
<p>If this was you, you can ignore this email. If not, please <a href="https://github.com/settings/security">review your account security</a>.</p>
<p>The GitHub Team</p>`,
		isSpam: false,
	},
	{
		sender:  "customer-service@amaz0n-support.net",
		subject: "Your Amazon Order #7829345 has been Canceled",
		content: `<p>Dear Amazon Customer,</p>
<p>Your recent order (#7829345) has been canceled due to a problem with your payment method.</p>
<p>To update your payment information and reprocess your order, please click the link below:</p>
<p><a href="http://amaz0n-support.net/update-payment">Update Payment Information</a></p>
<p>Amazon Customer Service</p>`,
		isSpam: true,
	},
	{
		sender:  "newsletter@medium.com",
		subject: "Top 5 Stories This Week - Medium Digest",
		content: `<p>Your Weekly Medium Digest</p>
<ul>
<li>How I Built a Successful Tech Startup in 12 Months</li>
<li>The Future of AI: Opportunities and Risks</li>
<li>10 Productivity Hacks That Actually Work</li>
</ul>
<p>Read these stories and more on <a href="https://medium.com">Medium</a>.</p>
<p>You're receiving this email because you're subscribed to Medium's weekly digest.</p>`,
		isSpam: false,
	},
}

// FallbackItemID is the id of the template item for a session slot. The
// same slot always maps to the same id.
func FallbackItemID(sessionID string, slot int) string {
	return shortuuid.NewWithNamespace(fmt.Sprintf("phishdrill:fallback:%s:%d", sessionID, slot))
}

// FallbackItem builds the local template email for a phase-2 slot. The
// choice of template and the reference marker depend only on the session
// and slot.
func FallbackItem(sessionID string, slot int, difficulty llm.Difficulty, now time.Time) *ContentItem {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	idx := (int(h.Sum32()%uint32(len(templates))) + slot) % len(templates)
	t := templates[idx]

	id := FallbackItemID(sessionID, slot)
	ref := id
	if len(ref) > 8 {
		ref = ref[:8]
	}

	return &ContentItem{
		ID:              id,
		IsPredefined:    false,
		IsSpam:          t.isSpam,
		Sender:          t.sender,
		Subject:         t.subject,
		Date:            now.Format("January 2, 2006"),
		Content:         strings.Replace(t.content, "</p>", fmt.Sprintf(" (Ref: %s)</p>", ref), 1),
		Difficulty:      difficulty,
		Source:          SourceLocalTemplate,
		SourceSessionID: sessionID,
		Slot:            slot,
		CreatedAt:       now,
	}
}
