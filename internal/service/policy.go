package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrPolicyInvalidBracket    = errors.New("invalid age bracket in policy")
	ErrPolicyBracketOrder      = errors.New("early_max_weeks must be below mid_max_weeks")
	ErrPolicyInvalidConfidence = errors.New("min_confidence must be within [0, 1]")
	ErrPolicyInvalidTTL        = errors.New("ttl_days must be positive")
)

// PolicyService maps a subject's age to the confidence bar and inference
// lifetime for its bracket. It holds no state beyond its configuration.
type PolicyService struct {
	brackets domain.Brackets
	policies map[domain.AgeBracket]domain.BracketPolicy
	logger   *zap.Logger
}

func NewPolicyService(logger *zap.Logger) *PolicyService {
	policies := make(map[domain.AgeBracket]domain.BracketPolicy, len(domain.DefaultBracketPolicies))
	for b, p := range domain.DefaultBracketPolicies {
		policies[b] = p
	}
	return &PolicyService{
		brackets: domain.DefaultBrackets,
		policies: policies,
		logger:   logger,
	}
}

// NewPolicyServiceFromConfig applies cfg over the defaults and validates the result.
func NewPolicyServiceFromConfig(cfg domain.PolicyConfig, logger *zap.Logger) (*PolicyService, error) {
	s := NewPolicyService(logger)

	if cfg.Brackets.EarlyMaxWeeks > 0 {
		s.brackets.EarlyMaxWeeks = cfg.Brackets.EarlyMaxWeeks
	}
	if cfg.Brackets.MidMaxWeeks > 0 {
		s.brackets.MidMaxWeeks = cfg.Brackets.MidMaxWeeks
	}
	if s.brackets.EarlyMaxWeeks >= s.brackets.MidMaxWeeks {
		return nil, ErrPolicyBracketOrder
	}

	for bracket, override := range cfg.Policies {
		if !domain.ValidAgeBracket(string(bracket)) {
			return nil, fmt.Errorf("%w: %q", ErrPolicyInvalidBracket, bracket)
		}
		p := s.policies[bracket]
		if override.MinConfidence != 0 {
			p.MinConfidence = override.MinConfidence
		}
		if override.TTLDays != 0 {
			p.TTLDays = override.TTLDays
		}
		if p.MinConfidence < 0 || p.MinConfidence > 1 {
			return nil, fmt.Errorf("%w: %s=%v", ErrPolicyInvalidConfidence, bracket, p.MinConfidence)
		}
		if p.TTLDays <= 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrPolicyInvalidTTL, bracket, p.TTLDays)
		}
		s.policies[bracket] = p
	}

	logger.Info("confidence policy configured",
		zap.Int("early_max_weeks", s.brackets.EarlyMaxWeeks),
		zap.Int("mid_max_weeks", s.brackets.MidMaxWeeks),
		zap.Any("policies", s.policies),
	)
	return s, nil
}

func (s *PolicyService) Bracket(ageWeeks *int) domain.AgeBracket {
	return s.brackets.Classify(ageWeeks)
}

// PolicyFor returns the minimum confidence and TTL in days for a bracket.
func (s *PolicyService) PolicyFor(bracket domain.AgeBracket) (float64, int) {
	p, ok := s.policies[bracket]
	if !ok {
		p = s.policies[domain.AgeBracketLater]
	}
	return p.MinConfidence, p.TTLDays
}

func (s *PolicyService) MinConfidence(ageWeeks *int) float64 {
	minConfidence, _ := s.PolicyFor(s.Bracket(ageWeeks))
	return minConfidence
}

// ExpiresAt is the instant an inference created at now stops being promptable.
func (s *PolicyService) ExpiresAt(now time.Time, ageWeeks *int) time.Time {
	_, ttlDays := s.PolicyFor(s.Bracket(ageWeeks))
	return now.Add(domain.BracketPolicy{TTLDays: ttlDays}.TTL())
}
