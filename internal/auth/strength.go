package auth

import "github.com/nbutton23/zxcvbn-go"

// ZxcvbnScorer scores passwords with the zxcvbn estimator.
type ZxcvbnScorer struct{}

func (ZxcvbnScorer) Score(password string, userInputs ...string) Strength {
	result := zxcvbn.PasswordStrength(password, userInputs)
	return Strength{
		Score:       result.Score,
		Suggestions: suggestionsFor(result.Score),
	}
}

func suggestionsFor(score int) []string {
	switch {
	case score >= 3:
		return nil
	case score == 2:
		return []string{
			"Add another word or two. Uncommon words are better.",
			"Avoid predictable substitutions like '@' instead of 'a'.",
		}
	default:
		return []string{
			"Use a few words, avoid common phrases.",
			"Avoid sequences, repeated characters and dates.",
			"Do not reuse your email address or name.",
		}
	}
}
