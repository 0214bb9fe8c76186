package service

import (
	"testing"
	"time"

	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func weeks(n int) *int { return &n }

func TestPolicyService_Bracket(t *testing.T) {
	p := NewPolicyService(zap.NewNop())
	tests := []struct {
		name string
		age  *int
		want domain.AgeBracket
	}{
		{"unknown", nil, domain.AgeBracketLater},
		{"newborn", weeks(0), domain.AgeBracketEarly},
		{"early boundary", weeks(4), domain.AgeBracketEarly},
		{"mid start", weeks(5), domain.AgeBracketMid},
		{"mid boundary", weeks(26), domain.AgeBracketMid},
		{"later", weeks(27), domain.AgeBracketLater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Bracket(tt.age))
		})
	}
}

func TestPolicyService_Defaults(t *testing.T) {
	p := NewPolicyService(zap.NewNop())

	assert.InDelta(t, 0.45, p.MinConfidence(weeks(2)), 1e-9)
	assert.InDelta(t, 0.50, p.MinConfidence(weeks(12)), 1e-9)
	assert.InDelta(t, 0.55, p.MinConfidence(weeks(40)), 1e-9)
	assert.InDelta(t, 0.55, p.MinConfidence(nil), 1e-9)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, now.AddDate(0, 0, 14).Equal(p.ExpiresAt(now, weeks(2))))
	assert.True(t, now.AddDate(0, 0, 30).Equal(p.ExpiresAt(now, weeks(12))))
	assert.True(t, now.AddDate(0, 0, 90).Equal(p.ExpiresAt(now, nil)))

	minConfidence, ttl := p.PolicyFor("bogus")
	assert.InDelta(t, 0.55, minConfidence, 1e-9)
	assert.Equal(t, 90, ttl)
}

func TestNewPolicyServiceFromConfig_Overrides(t *testing.T) {
	p, err := NewPolicyServiceFromConfig(domain.PolicyConfig{
		Brackets: domain.Brackets{EarlyMaxWeeks: 8},
		Policies: map[domain.AgeBracket]domain.BracketPolicy{
			domain.AgeBracketEarly: {MinConfidence: 0.4},
			domain.AgeBracketLater: {TTLDays: 60},
		},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, domain.AgeBracketEarly, p.Bracket(weeks(6)))
	assert.InDelta(t, 0.4, p.MinConfidence(weeks(6)), 1e-9)

	minConfidence, ttl := p.PolicyFor(domain.AgeBracketEarly)
	assert.InDelta(t, 0.4, minConfidence, 1e-9)
	assert.Equal(t, 14, ttl, "unset fields keep their default")

	minConfidence, ttl = p.PolicyFor(domain.AgeBracketLater)
	assert.InDelta(t, 0.55, minConfidence, 1e-9)
	assert.Equal(t, 60, ttl)
}

func TestNewPolicyServiceFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  domain.PolicyConfig
		want error
	}{
		{
			name: "bracket order",
			cfg:  domain.PolicyConfig{Brackets: domain.Brackets{EarlyMaxWeeks: 30}},
			want: ErrPolicyBracketOrder,
		},
		{
			name: "unknown bracket",
			cfg:  domain.PolicyConfig{Policies: map[domain.AgeBracket]domain.BracketPolicy{"newborn": {TTLDays: 7}}},
			want: ErrPolicyInvalidBracket,
		},
		{
			name: "confidence out of range",
			cfg:  domain.PolicyConfig{Policies: map[domain.AgeBracket]domain.BracketPolicy{domain.AgeBracketMid: {MinConfidence: 1.5}}},
			want: ErrPolicyInvalidConfidence,
		},
		{
			name: "negative ttl",
			cfg:  domain.PolicyConfig{Policies: map[domain.AgeBracket]domain.BracketPolicy{domain.AgeBracketMid: {TTLDays: -1}}},
			want: ErrPolicyInvalidTTL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyServiceFromConfig(tt.cfg, zap.NewNop())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
