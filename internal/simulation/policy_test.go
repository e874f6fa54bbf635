package simulation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/phishdrill/internal/llm"
)

func TestDefaultDifficulty(t *testing.T) {
	tests := []struct {
		name                          string
		phase1Score, answered, correct int
		want                          llm.Difficulty
	}{
		{"phase1 0", 0, 0, 0, llm.DifficultyEasy},
		{"phase1 2", 2, 0, 0, llm.DifficultyEasy},
		{"phase1 3", 3, 0, 0, llm.DifficultyMedium},
		{"phase1 4", 4, 0, 0, llm.DifficultyMedium},
		{"phase1 5", 5, 0, 0, llm.DifficultyHard},
		{"low accuracy", 1, 2, 0, llm.DifficultyEasy},     // 1/7
		{"mid accuracy", 3, 2, 2, llm.DifficultyMedium},   // 5/7
		{"high accuracy", 5, 3, 3, llm.DifficultyHard},    // 8/8
		{"boundary 0.5", 2, 3, 2, llm.DifficultyMedium},   // 4/8
		{"boundary 0.8", 4, 5, 4, llm.DifficultyHard},     // 8/10
		{"drops after misses", 5, 4, 0, llm.DifficultyMedium}, // 5/9
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultDifficulty(tt.phase1Score, tt.answered, tt.correct); got != tt.want {
				t.Errorf("DefaultDifficulty(%d, %d, %d) = %v, want %v",
					tt.phase1Score, tt.answered, tt.correct, got, tt.want)
			}
		})
	}
}

func TestDefaultDifficulty_MonotonicInCorrect(t *testing.T) {
	rank := map[llm.Difficulty]int{llm.DifficultyEasy: 0, llm.DifficultyMedium: 1, llm.DifficultyHard: 2}
	for p1 := 0; p1 <= Phase1ItemCount; p1++ {
		for answered := 1; answered <= Phase2ItemCount; answered++ {
			prev := -1
			for correct := 0; correct <= answered; correct++ {
				r := rank[DefaultDifficulty(p1, answered, correct)]
				if r < prev {
					t.Errorf("difficulty decreased at p1=%d answered=%d correct=%d", p1, answered, correct)
				}
				prev = r
			}
		}
	}
}

func TestFallbackItem(t *testing.T) {
	now := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)
	a := FallbackItem("sess-1", 2, llm.DifficultyMedium, now)
	b := FallbackItem("sess-1", 2, llm.DifficultyMedium, now)
	c := FallbackItem("sess-1", 3, llm.DifficultyMedium, now)

	if a.ID != b.ID || a.Content != b.Content {
		t.Error("same slot should produce the same item")
	}
	if a.ID == c.ID {
		t.Error("different slots should produce different ids")
	}
	if a.ID != FallbackItemID("sess-1", 2) {
		t.Error("ID should match FallbackItemID")
	}
	if a.IsPredefined {
		t.Error("fallback item should not be predefined")
	}
	if !a.IsFallback() || a.Source != SourceLocalTemplate {
		t.Errorf("Source = %v, want local_template", a.Source)
	}
	if !strings.Contains(a.Content, "(Ref: ") {
		t.Error("content should carry a reference marker")
	}
	if a.SourceSessionID != "sess-1" || a.Slot != 2 {
		t.Errorf("link = %s/%d, want sess-1/2", a.SourceSessionID, a.Slot)
	}
	if a.Date != "August 14, 2025" {
		t.Errorf("Date = %q", a.Date)
	}
}

func TestFallbackItem_MixesSpamAndSafe(t *testing.T) {
	var spam, safe int
	for slot := 0; slot < Phase2ItemCount; slot++ {
		if FallbackItem("any-session", slot, llm.DifficultyEasy, time.Now()).IsSpam {
			spam++
		} else {
			safe++
		}
	}
	if spam == 0 || safe == 0 {
		t.Errorf("spam=%d safe=%d, want both", spam, safe)
	}
}

func TestRuleBasedScore(t *testing.T) {
	if RuleBasedScore(true) != 8 || RuleBasedScore(false) != 3 {
		t.Errorf("RuleBasedScore = %d/%d, want 8/3", RuleBasedScore(true), RuleBasedScore(false))
	}
}

func TestAssessLocally(t *testing.T) {
	strong := `Subject: Urgent: verify your account
Dear John,
Our security team detected a login from a new device. Click here to verify
your password immediately: https://secure-login.example/verify`

	weak := "hey whats up"

	hi, hiRating, feedback := AssessLocally(strong)
	lo, loRating, _ := AssessLocally(weak)

	if hi <= lo {
		t.Errorf("strong score %d should exceed weak score %d", hi, lo)
	}
	if hi != 100 || hiRating != "Very High" {
		t.Errorf("strong = %d %s, want 100 Very High", hi, hiRating)
	}
	if loRating != "Low" {
		t.Errorf("weak rating = %s, want Low", loRating)
	}
	if !strings.Contains(feedback, "Overall score: 100/100") {
		t.Errorf("feedback missing score line: %s", feedback)
	}
}

func TestKeyedMutex_Serializes(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "s1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if k.Len() != 0 {
		t.Errorf("Len() = %d after release, want 0", k.Len())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) should not wait on a: %v", err)
	}
	unlockB()
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want deadline exceeded", err)
	}

	unlock()
	unlock() // second call is a no-op
	if k.Len() != 0 {
		t.Errorf("Len() = %d, want 0", k.Len())
	}
}
