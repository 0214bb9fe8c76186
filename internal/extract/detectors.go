package extract

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	numberRe      = regexp.MustCompile(`\$?(\d+(?:\.\d+)?)`)
	minutesRe     = regexp.MustCompile(`(\d+)\s*minutes?`)
	hoursRe       = regexp.MustCompile(`(\d+)\s*hours?`)
	bornAtRe      = regexp.MustCompile(`born at (\d+(?:\.\d+)?) weeks`)
	weeksEarlyRe  = regexp.MustCompile(`(\d+(?:\.\d+)?) weeks early`)
	solidsAgeRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:months|mos)`)
	cityRe        = regexp.MustCompile(`in\s+([A-Za-z\s]+)`)
	fullTermWeeks = 40.0
)

func detectCareFramework(m message) map[string]any {
	if !strings.Contains(m.lower, "moms on call") {
		return nil
	}
	return map[string]any{"framework": "moms_on_call", "evidence": m.raw, "source": payloadSource}
}

func detectFeedingStructure(m message) map[string]any {
	hasFormula := false
	for _, e := range m.events {
		if strings.Contains(strings.ToLower(e.Substance), "formula") {
			hasFormula = true
			break
		}
	}
	breast := m.containsAny("breast")
	combo := m.containsAny("combo", "combination", "mixed")
	if !((combo && (breast || hasFormula)) || (breast && hasFormula)) {
		return nil
	}
	return map[string]any{"structure": "combo", "evidence": m.raw, "source": payloadSource}
}

var activitySignals = []struct {
	keywords []string
	activity string
	tags     []string
}{
	{[]string{"water play", "bath", "splash"}, "water play", []string{"sensory", "water"}},
	{[]string{"reading", "books"}, "reading books", []string{"reading", "quiet_play"}},
	{[]string{"music", "dance", "dancing"}, "music and dancing", []string{"music", "gross_motor"}},
	{[]string{"animals", "dog", "cat"}, "animals", []string{"animals", "social"}},
	{[]string{"climb", "rough-and-tumble", "rough and tumble"}, "climbing/rough-and-tumble", []string{"gross_motor", "high_energy"}},
}

func detectActivities(m message) map[string]any {
	activities := newOrderedSet()
	tags := newOrderedSet()
	for _, s := range activitySignals {
		if m.containsAny(s.keywords...) {
			activities.add(s.activity)
			tags.add(s.tags...)
		}
	}
	if m.containsAny("outside", "outdoors") {
		tags.add("outdoor")
	}
	if m.containsAny("quiet") {
		tags.add("quiet_play")
	}
	if activities.len() == 0 && tags.len() == 0 {
		return nil
	}
	return map[string]any{
		"favorite_activities": activities.items,
		"tags":                tags.items,
		"source":              payloadSource,
	}
}

type phrase struct{ text, value string }

var milestonePatterns = []struct {
	field   string
	phrases []phrase
}{
	{"gross_motor", []phrase{
		{"rolling over", "rolling"},
		{"just started rolling", "rolling"},
		{"just started crawling", "crawling"},
		{"pulling up to stand", "pulling_to_stand"},
		{"cruising", "cruising"},
		{"walking now", "walking"},
		{"just started walking", "walking"},
	}},
	{"fine_motor", []phrase{
		{"pincer grasp", "pincer_grasp"},
		{"picking up small puffs", "pincer_grasp"},
		{"stacking blocks", "stacking_blocks"},
		{"reaches and grasps", "grasping"},
		{"grasping toys", "grasping"},
	}},
	{"language", []phrase{
		{"cooing", "cooing"},
		{"babbling", "babbling"},
		{"saying 'mama' and 'dada'", "first_words"},
		{"two words", "two_word_phrases"},
		{"first words", "first_words"},
	}},
	{"social", []phrase{
		{"smiles at us all the time", "smiling"},
		{"stranger anxiety", "stranger_anxiety"},
		{"interactive play", "interactive_play"},
		{"peekaboo", "interactive_play"},
	}},
}

func detectMilestones(m message) map[string]any {
	if m.containsAny("might", "maybe", "probably") {
		return nil
	}
	payload := map[string]any{}
	for _, group := range milestonePatterns {
		for _, p := range group.phrases {
			if strings.Contains(m.lower, p.text) {
				payload[group.field] = p.value
				break
			}
		}
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}

func detectBPAFree(m message) map[string]any {
	if !m.containsAny("bpa-free", "bpa free") {
		return nil
	}
	// Curiosity about the label is not a preference.
	if m.containsAny("read an article", "read about", "saw bpa-free", "what does bpa-free mean", "heard about") {
		return nil
	}
	scope := "general"
	switch {
	case m.containsAny("snack", "container", "storage"):
		scope = "food_storage"
	case m.containsAny("bottle"):
		scope = "bottles"
	}
	return map[string]any{"scope": scope, "source": payloadSource}
}

func detectGearBudget(m message) map[string]any {
	if !m.containsAny("gear", "stroller", "items") {
		return nil
	}
	if !m.containsAny("keep", "under", "budget", "stay") {
		return nil
	}
	match := numberRe.FindStringSubmatch(m.lower)
	if match == nil {
		return nil
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return map[string]any{"max_usd": v, "source": payloadSource}
}

func detectDailyOutdoor(m message) map[string]any {
	if !m.containsAny("outside", "outdoors") {
		return nil
	}
	if !m.containsAny("every day", "daily", "each day", "every afternoon") {
		return nil
	}
	var minutes any
	if v, ok := extractMinutes(m.lower); ok {
		minutes = v
	}
	return map[string]any{"target_minutes": minutes, "source": payloadSource}
}

func extractMinutes(lower string) (int, bool) {
	if match := minutesRe.FindStringSubmatch(lower); match != nil {
		if v, err := strconv.Atoi(match[1]); err == nil {
			return v, true
		}
	}
	if match := hoursRe.FindStringSubmatch(lower); match != nil {
		if v, err := strconv.Atoi(match[1]); err == nil {
			return v * 60, true
		}
	}
	if strings.Contains(lower, "an hour") {
		return 60, true
	}
	return 0, false
}

func detectPrematurity(m message) map[string]any {
	if m.containsAny("read an article", "read about", "saw preterm", "what does premature mean") {
		return nil
	}
	payload := map[string]any{"source": payloadSource}
	detected := false

	if match := bornAtRe.FindStringSubmatch(m.lower); match != nil {
		if g, err := strconv.ParseFloat(match[1], 64); err == nil {
			payload["gestational_age_weeks"] = g
			payload["weeks_early"] = round1(math.Max(0, fullTermWeeks-g))
			payload["is_premature"] = g < 37
			detected = true
		}
	}
	if match := weeksEarlyRe.FindStringSubmatch(m.lower); match != nil {
		if early, err := strconv.ParseFloat(match[1], 64); err == nil {
			payload["weeks_early"] = early
			payload["gestational_age_weeks"] = round1(math.Max(0, fullTermWeeks-early))
			payload["is_premature"] = early >= 2
			detected = true
		}
	}
	if m.containsAny("premature", "preterm", "nicu") {
		if _, ok := payload["is_premature"]; !ok {
			payload["is_premature"] = true
		}
		detected = true
	}
	if !detected {
		return nil
	}
	return payload
}

var placePatterns = []struct {
	placeType string
	keywords  []string
}{
	{"park", []string{"park", "playground"}},
	{"grandparent_home", []string{"grandma", "grandpa", "grandparents", "nana", "nana's", "grandma's"}},
	{"library", []string{"library"}},
	{"childcare", []string{"daycare", "preschool"}},
	{"pediatrician_office", []string{"pediatrician", "doctor's office"}},
	{"other", []string{"parklet", "play cafe"}},
}

var (
	frequencyWords = []string{"usually", "often", "every", "weekly", "regular", "always", "daily", "monthly"}
	weekdayWords   = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
)

// detectPlaces only fires for recurring visits; a one-off trip is not a
// place of interest.
func detectPlaces(m message) map[string]any {
	recurring := m.containsAny(frequencyWords...) || m.containsAny(weekdayWords...)
	if !recurring {
		return nil
	}
	for _, p := range placePatterns {
		for _, kw := range p.keywords {
			if !strings.Contains(m.lower, kw) {
				continue
			}
			name := capturePlaceName(m.folded, kw)
			if name == "" {
				name = titleCase(kw) + " near us"
			}
			var city any
			if c := extractCity(m.raw); c != "" {
				city = c
			}
			place := map[string]any{
				"name":  name,
				"type":  p.placeType,
				"city":  city,
				"notes": m.raw,
			}
			return map[string]any{"places": []any{place}, "source": payloadSource}
		}
	}
	return nil
}

func capturePlaceName(text, keyword string) string {
	re, err := regexp.Compile(`(?i)(?:to|at|the)\s+([\w\s]+?\s+` + regexp.QuoteMeta(keyword) + `)`)
	if err != nil {
		return ""
	}
	match := re.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return titleCase(strings.TrimSpace(match[1]))
}

func extractCity(text string) string {
	match := cityRe.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return titleCase(strings.TrimSpace(match[1]))
}

var dietPatterns = []struct {
	name    string
	phrases []string
}{
	{"vegetarian", []string{"vegetarian"}},
	{"pescatarian", []string{"pescatarian"}},
	{"kosher", []string{"kosher"}},
	{"dairy-free", []string{"dairy-free", "dairy free"}},
	{"gluten-free", []string{"gluten-free", "gluten free"}},
}

type termPattern struct {
	term string
	re   *regexp.Regexp
}

var (
	avoidPatterns   = termPatterns(`(?:avoid|dont eat|don't eat|without)\b[^.]*?\b%s\b`, "pork", "shellfish", "beef", "sugar", "processed foods")
	allergyPatterns = termPatterns(`allergic to\b[^.]*\b%ss?\b`, "peanut", "egg", "dairy", "milk")
)

func termPatterns(format string, terms ...string) []termPattern {
	out := make([]termPattern, len(terms))
	for i, t := range terms {
		out[i] = termPattern{term: t, re: regexp.MustCompile(fmt.Sprintf(format, regexp.QuoteMeta(t)))}
	}
	return out
}

func detectFamilyDiet(m message) map[string]any {
	patterns := []string{}
	for _, p := range dietPatterns {
		if m.containsAny(p.phrases...) {
			patterns = append(patterns, p.name)
		}
	}
	avoids := map[string]struct{}{}
	for _, p := range avoidPatterns {
		if p.re.MatchString(m.lower) {
			avoids[singularFood(p.term)] = struct{}{}
		}
	}
	allergies := map[string]struct{}{}
	for _, p := range allergyPatterns {
		if p.re.MatchString(m.lower) || m.containsAny(p.term+" allergy", p.term+"s allergy") {
			allergies[p.term] = struct{}{}
		}
	}
	if len(patterns) == 0 && len(avoids) == 0 && len(allergies) == 0 {
		return nil
	}
	return map[string]any{
		"diet_patterns":     patterns,
		"avoid_ingredients": sortedKeys(avoids),
		"allergies":         sortedKeys(allergies),
		"source":            payloadSource,
	}
}

func singularFood(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if strings.HasSuffix(term, "s") && term != "shellfish" {
		return strings.TrimSuffix(term, "s")
	}
	return term
}

var (
	solidFoods     = []string{"avocado", "sweet potato", "peas", "bananas", "carrot", "apple"}
	positiveWords  = []string{"love", "loves", "like", "likes", "favorite", "enjoy"}
	negativeWords  = []string{"hate", "hates", "dislike", "dislikes", "not a fan"}
	solidAllergens = []string{"peanut", "egg", "milk"}
)

func detectSolids(m message) map[string]any {
	if !strings.Contains(m.lower, "solids") {
		return nil
	}
	payload := map[string]any{"source": payloadSource}
	detected := false

	switch {
	case m.containsAny("hasn't started solids", "has not started solids"):
		payload["solids_started"] = false
		detected = true
	case m.containsAny("started solids"):
		payload["solids_started"] = true
		detected = true
	}

	switch {
	case m.containsAny("blw", "baby-led"):
		payload["approach"] = "blw"
		detected = true
	case m.containsAny("puree"):
		payload["approach"] = "puree"
		detected = true
	case m.containsAny("combo", "combination"):
		payload["approach"] = "combo"
		detected = true
	}

	if match := solidsAgeRe.FindStringSubmatch(m.lower); match != nil {
		if v, err := strconv.ParseFloat(match[1], 64); err == nil {
			payload["age_started_months"] = v
			detected = true
		}
	}

	favorites := newOrderedSet()
	dislikes := newOrderedSet()
	allergens := newOrderedSet()
	positive := m.containsAny(positiveWords...)
	negative := m.containsAny(negativeWords...)
	for _, food := range solidFoods {
		if !strings.Contains(m.lower, food) {
			continue
		}
		if positive || m.containsAny("with "+food, "and "+food) {
			favorites.add(food)
		}
		if negative {
			dislikes.add(food)
		}
	}
	for _, a := range solidAllergens {
		if m.containsAny("introduced "+a, a+" introduced", a+" allergy", "allergic to "+a) {
			allergens.add(a)
		}
	}
	if allergens.len() > 0 {
		payload["allergens_introduced"] = allergens.items
		detected = true
	}
	if favorites.len() > 0 {
		payload["favorite_foods"] = favorites.items
		detected = true
	}
	if dislikes.len() > 0 {
		payload["disliked_foods"] = dislikes.items
		detected = true
	}
	if !detected {
		return nil
	}
	return payload
}

type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{items: []string{}, seen: map[string]struct{}{}}
}

func (s *orderedSet) add(vs ...string) {
	for _, v := range vs {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) len() int { return len(s.items) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// titleCase builds a fresh caser each call; casers carry state and are not
// safe to share across goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
