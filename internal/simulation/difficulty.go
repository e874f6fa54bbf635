package simulation

import "github.com/felixgeelhaar/phishdrill/internal/llm"

// DifficultyPolicy picks the difficulty of the next generated email from
// the phase-1 score and the phase-2 answers so far.
type DifficultyPolicy func(phase1Score, answered, correct int) llm.Difficulty

// DefaultDifficulty is a step function of running accuracy. Before any
// phase-2 answer it uses the phase-1 score alone.
func DefaultDifficulty(phase1Score, answered, correct int) llm.Difficulty {
	if answered <= 0 {
		switch {
		case phase1Score <= 2:
			return llm.DifficultyEasy
		case phase1Score < Phase1ItemCount:
			return llm.DifficultyMedium
		default:
			return llm.DifficultyHard
		}
	}

	accuracy := float64(phase1Score+correct) / float64(Phase1ItemCount+answered)
	switch {
	case accuracy < 0.5:
		return llm.DifficultyEasy
	case accuracy < 0.8:
		return llm.DifficultyMedium
	default:
		return llm.DifficultyHard
	}
}
