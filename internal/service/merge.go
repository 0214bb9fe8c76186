package service

import (
	"fmt"
	"sync"
)

// Merger combines the payload already stored for a knowledge key with a newly
// detected one. Implementations must be total: every pair of payloads merges.
type Merger interface {
	Merge(existing, incoming map[string]any) map[string]any
}

// MergerFunc adapts a plain function to Merger.
type MergerFunc func(existing, incoming map[string]any) map[string]any

func (f MergerFunc) Merge(existing, incoming map[string]any) map[string]any {
	return f(existing, incoming)
}

// ReplaceMerger keeps only the incoming payload.
var ReplaceMerger Merger = MergerFunc(func(_, incoming map[string]any) map[string]any {
	return copyPayload(incoming)
})

// MergeRegistry maps a fact type to its merge strategy. Unregistered types
// fall back to ReplaceMerger.
type MergeRegistry struct {
	mu      sync.RWMutex
	mergers map[string]Merger
}

func NewMergeRegistry() *MergeRegistry {
	return &MergeRegistry{mergers: make(map[string]Merger)}
}

func (r *MergeRegistry) Register(factType string, m Merger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergers[factType] = m
}

// Lookup returns the merger for factType and whether one was registered.
func (r *MergeRegistry) Lookup(factType string) (Merger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mergers[factType]
	return m, ok
}

func (r *MergeRegistry) Merge(factType string, existing, incoming map[string]any) map[string]any {
	m, ok := r.Lookup(factType)
	if !ok {
		m = ReplaceMerger
	}
	return m.Merge(copyPayload(existing), copyPayload(incoming))
}

// DefaultMergeRegistry registers the household fact types that accumulate
// across mentions instead of being overwritten.
func DefaultMergeRegistry() *MergeRegistry {
	r := NewMergeRegistry()
	r.Register("child_activity_preferences", MergerFunc(mergeActivityPreferences))
	r.Register("child_milestone_profile", MergerFunc(mergeMilestoneProfile))
	r.Register("child_prematurity", MergerFunc(mergePrematurity))
	r.Register("places_of_interest", MergerFunc(mergePlaces))
	r.Register("family_diet", MergerFunc(mergeFamilyDiet))
	r.Register("child_solids_profile", MergerFunc(mergeChildSolids))
	return r
}

const defaultSourceTag = "chat"

func mergeActivityPreferences(existing, incoming map[string]any) map[string]any {
	source, ok := incoming["source"]
	if !ok || source == nil {
		source = defaultSourceTag
	}
	return map[string]any{
		"favorite_activities": UnionStrings(existing["favorite_activities"], incoming["favorite_activities"]),
		"tags":                UnionStrings(existing["tags"], incoming["tags"]),
		"source":              source,
	}
}

func mergeMilestoneProfile(existing, incoming map[string]any) map[string]any {
	merged := copyPayload(existing)
	for k, v := range incoming {
		if truthy(v) {
			merged[k] = v
		}
	}
	if _, ok := merged["source"]; !ok {
		if src, ok := incoming["source"]; ok && src != nil {
			merged["source"] = src
		} else {
			merged["source"] = defaultSourceTag
		}
	}
	return merged
}

func mergePrematurity(existing, incoming map[string]any) map[string]any {
	merged := LastNonNull(existing, incoming, "is_premature", "gestational_age_weeks", "weeks_early")
	merged["source"] = ReconcileSource(existing, incoming)
	return merged
}

func mergePlaces(existing, incoming map[string]any) map[string]any {
	merged := copyPayload(existing)
	merged["places"] = AppendUniqueBy(existing["places"], incoming["places"], "name", "type")
	merged["source"] = ReconcileSource(existing, incoming)
	return merged
}

func mergeFamilyDiet(existing, incoming map[string]any) map[string]any {
	merged := copyPayload(existing)
	for _, field := range []string{"diet_patterns", "avoid_ingredients", "allergies"} {
		merged[field] = UnionStrings(existing[field], incoming[field])
	}
	merged["source"] = ReconcileSource(existing, incoming)
	return merged
}

func mergeChildSolids(existing, incoming map[string]any) map[string]any {
	merged := LastNonNull(existing, incoming, "solids_started", "approach", "age_started_months")
	for _, field := range []string{"favorite_foods", "disliked_foods", "allergens_introduced"} {
		merged[field] = UnionStrings(existing[field], incoming[field])
	}
	merged["source"] = ReconcileSource(existing, incoming)
	return merged
}

// UnionStrings appends the unique non-empty strings of additions to base.
// Base strings are kept as they are. Either side may be []string or []any.
func UnionStrings(base, additions any) []string {
	out := append([]string{}, toStrings(base)...)
	seen := make(map[string]struct{}, len(out))
	for _, v := range out {
		seen[v] = struct{}{}
	}
	for _, v := range toStrings(additions) {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// LastNonNull copies existing and overwrites each named field with the
// incoming value when that value is present and not nil.
func LastNonNull(existing, incoming map[string]any, fields ...string) map[string]any {
	merged := copyPayload(existing)
	for _, f := range fields {
		if v, ok := incoming[f]; ok && v != nil {
			merged[f] = v
		}
	}
	return merged
}

// AppendUniqueBy appends structured items from additions whose composite key
// (the values of keyFields) is not already present in base. Base items are
// kept as-is.
func AppendUniqueBy(base, additions any, keyFields ...string) []any {
	out := []any{}
	seen := make(map[string]struct{})
	compositeKey := func(item map[string]any) string {
		parts := make([]any, len(keyFields))
		for i, f := range keyFields {
			parts[i] = item[f]
		}
		return fmt.Sprintf("%#v", parts)
	}
	if len(keyFields) == 0 {
		return append(append(out, toAnys(base)...), toAnys(additions)...)
	}

	for _, item := range toObjects(base) {
		out = append(out, item)
		if name, _ := item[keyFields[0]].(string); name != "" {
			seen[compositeKey(item)] = struct{}{}
		}
	}
	for _, item := range toObjects(additions) {
		k := compositeKey(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// ReconcileSource joins two differing source tags as "a+b". Otherwise the one
// present wins, defaulting to "chat".
func ReconcileSource(existing, incoming map[string]any) string {
	a, _ := existing["source"].(string)
	b, _ := incoming["source"].(string)
	switch {
	case a != "" && b != "" && a != b:
		return a + "+" + b
	case b != "":
		return b
	case a != "":
		return a
	}
	return defaultSourceTag
}

func copyPayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toObjects(v any) []map[string]any {
	switch vv := v.(type) {
	case []map[string]any:
		return vv
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, x := range vv {
			if m, ok := x.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func toAnys(v any) []any {
	objs := toObjects(v)
	out := make([]any, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

func truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	case float64:
		return vv != 0
	case int:
		return vv != 0
	case []any:
		return len(vv) > 0
	case []string:
		return len(vv) > 0
	case map[string]any:
		return len(vv) > 0
	}
	return true
}
