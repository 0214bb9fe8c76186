package domain

import "time"

// AgeBracket classifies a subject's developmental stage.
type AgeBracket string

const (
	AgeBracketEarly AgeBracket = "early"
	AgeBracketMid   AgeBracket = "mid"
	AgeBracketLater AgeBracket = "later"
)

func ValidAgeBracket(b string) bool {
	switch AgeBracket(b) {
	case AgeBracketEarly, AgeBracketMid, AgeBracketLater:
		return true
	}
	return false
}

// Brackets holds the inclusive upper bounds, in weeks, of the early and mid brackets.
type Brackets struct {
	EarlyMaxWeeks int `yaml:"early_max_weeks" json:"early_max_weeks"`
	MidMaxWeeks   int `yaml:"mid_max_weeks" json:"mid_max_weeks"`
}

var DefaultBrackets = Brackets{EarlyMaxWeeks: 4, MidMaxWeeks: 26}

// Classify maps an age in weeks to a bracket. An unknown age is treated as later,
// which applies the strictest confidence bar.
func (b Brackets) Classify(ageWeeks *int) AgeBracket {
	if ageWeeks == nil {
		return AgeBracketLater
	}
	switch {
	case *ageWeeks <= b.EarlyMaxWeeks:
		return AgeBracketEarly
	case *ageWeeks <= b.MidMaxWeeks:
		return AgeBracketMid
	default:
		return AgeBracketLater
	}
}

// BracketPolicy is the confidence bar and inference lifetime for one bracket.
type BracketPolicy struct {
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	TTLDays       int     `yaml:"ttl_days" json:"ttl_days"`
}

// TTL returns the lifetime as a duration.
func (p BracketPolicy) TTL() time.Duration {
	return time.Duration(p.TTLDays) * 24 * time.Hour
}

// DefaultBracketPolicies: younger subjects change quickly, so their facts
// surface at a lower bar and decay sooner.
var DefaultBracketPolicies = map[AgeBracket]BracketPolicy{
	AgeBracketEarly: {MinConfidence: 0.45, TTLDays: 14},
	AgeBracketMid:   {MinConfidence: 0.50, TTLDays: 30},
	AgeBracketLater: {MinConfidence: 0.55, TTLDays: 90},
}

// PolicyConfig is the override document accepted from a policy file. Zero
// fields keep their defaults.
type PolicyConfig struct {
	Brackets Brackets                     `yaml:"brackets" json:"brackets"`
	Policies map[AgeBracket]BracketPolicy `yaml:"policies" json:"policies"`
}
