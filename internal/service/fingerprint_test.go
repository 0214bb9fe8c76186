package service

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Format(t *testing.T) {
	subject := uuid.New()
	key, err := Fingerprint(&subject, "family_diet", map[string]any{"allergies": []any{"egg"}})
	require.NoError(t, err)

	parts := strings.Split(key, "::")
	require.Len(t, parts, 3)
	assert.Equal(t, subject.String(), parts[0])
	assert.Equal(t, "family_diet", parts[1])
	assert.Len(t, parts[2], 64)
}

func TestFingerprint_NoSubject(t *testing.T) {
	key, err := Fingerprint(nil, "care_framework", map[string]any{"framework": "moms_on_call"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "none::care_framework::"))
}

func TestFingerprint_StableAcrossKeyOrderAndSliceTypes(t *testing.T) {
	subject := uuid.New()
	a := map[string]any{
		"source": "chat",
		"places": []any{map[string]any{"type": "park", "name": "Riverside Park"}},
		"tags":   []string{"outdoor"},
	}
	b := map[string]any{
		"tags":   []any{"outdoor"},
		"places": []any{map[string]any{"name": "Riverside Park", "type": "park"}},
		"source": "chat",
	}

	ka, err := Fingerprint(&subject, "places_of_interest", a)
	require.NoError(t, err)
	kb, err := Fingerprint(&subject, "places_of_interest", b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestFingerprint_DiffersByPayloadSubjectAndType(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	payload := map[string]any{"max_usd": 150.0}

	base, err := Fingerprint(&s1, "gear_budget", payload)
	require.NoError(t, err)

	otherPayload, err := Fingerprint(&s1, "gear_budget", map[string]any{"max_usd": 200.0})
	require.NoError(t, err)
	otherSubject, err := Fingerprint(&s2, "gear_budget", payload)
	require.NoError(t, err)
	otherType, err := Fingerprint(&s1, "bpa_free_preference", payload)
	require.NoError(t, err)

	assert.NotEqual(t, base, otherPayload)
	assert.NotEqual(t, base, otherSubject)
	assert.NotEqual(t, base, otherType)
}

func TestCanonicalJSON(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": "<x>", "y": true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":true,"z":"<x>"},"b":1}`, string(out))

	empty, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestFingerprint_UnencodablePayload(t *testing.T) {
	_, err := Fingerprint(nil, "bad", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
