package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const noSubject = "none"

// Fingerprint returns the dedupe key for a fact:
// "<subject|none>::<fact_type>::<sha256 of canonical payload>".
func Fingerprint(subjectID *uuid.UUID, factType string, payload map[string]any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", factType, err)
	}
	sum := sha256.Sum256(canonical)

	subject := noSubject
	if subjectID != nil {
		subject = subjectID.String()
	}
	return subject + "::" + factType + "::" + hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON encodes v with sorted object keys at every depth, compact
// separators and no HTML escaping. A nil map encodes as {}.
func CanonicalJSON(payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
