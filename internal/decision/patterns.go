package decision

import (
	"fmt"
	"regexp"
	"strings"

	"meetsense/internal/logging"
)

// Pattern-path confidence levels. Ordering of the matchers encodes severity:
// refusal is checked before multi-intent splitting, which is checked before
// entity detection.
const (
	confidenceRefusal         = 0.95
	confidenceMultiIntent     = 0.95
	confidenceGreeting        = 1.0
	confidenceProductSignal   = 0.92
	confidenceSituationAdvice = 0.90
	confidenceEntityFull      = 0.85
	confidenceEntityAcronym   = 0.70
)

// refusalPatterns catch out-of-scope topics. A hit short-circuits all
// further processing.
var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bweather\b`),
	regexp.MustCompile(`(?i)\bstock\s+(price|market|ticker)s?\b`),
	regexp.MustCompile(`(?i)\b(share\s+price|market\s+cap)\b`),
	regexp.MustCompile(`(?i)\b(home\s+address|phone\s+number|social\s+security|date\s+of\s+birth|salary)\b`),
	regexp.MustCompile(`(?i)\btell\s+me\s+a\s+joke\b`),
	regexp.MustCompile(`(?i)\bwrite\s+(me\s+)?a\s+(poem|story|song|haiku|novel|screenplay)\b`),
	regexp.MustCompile(`(?i)\b(creative\s+writing|fan\s*fiction)\b`),
}

// multiIntentPatterns detect questions bundling a lookup with a follow-on
// action ("summarize X and then email Y"). These need a split confirmation
// before anything runs.
var multiIntentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\band\s+then\s+(email|send|post|share|draft|create|schedule|update)\b`),
	regexp.MustCompile(`(?i)\bthen\s+(email|send|post|share)\s+(it|that|them|this)\b`),
	regexp.MustCompile(`(?i)\b(summarize|recap|review)\b.+\band\s+(email|send|forward)\b`),
}

var splitSeparator = regexp.MustCompile(`(?i)\s+and\s+then\s+|\s*,\s*then\s+`)

// greetings is the closed list matched exactly (after trimming and lowering).
var greetings = map[string]bool{
	"hello":           true,
	"hi":              true,
	"hey":             true,
	"yo":              true,
	"good morning":    true,
	"good afternoon":  true,
	"good evening":    true,
	"thanks":          true,
	"thank you":       true,
	"help":            true,
	"what can you do": true,
}

// strategicAdvicePatterns catch phrases implying internal roadmap or
// value-prop reasoning, which route straight to product knowledge.
var strategicAdvicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(our|the)\s+roadmap\b`),
	regexp.MustCompile(`(?i)\bvalue\s+prop(osition)?\b`),
	regexp.MustCompile(`(?i)\b(position(ing)?|differentiat\w*)\b.*\b(against|vs|versus|compet\w*)\b`),
	regexp.MustCompile(`(?i)\bhow\s+should\s+we\s+(position|price|pitch|message)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+should\s+we\s+build\s+next\b`),
	regexp.MustCompile(`(?i)\bcompetitive\s+(advantage|landscape)\b`),
}

// situationPatterns describe a customer situation...
var situationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(is\s+asking|asked\s+(for|about)|wants?|said\s+they|complained|pushed\s+back|is\s+threatening|churn\w*)\b`),
}

// ...and advicePatterns ask what to do about it. Both together redirect an
// entity match to product knowledge.
var advicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+should\s+(we|i)\s+(do|say|tell|offer|respond)\b`),
	regexp.MustCompile(`(?i)\bhow\s+(should|do)\s+(we|i)\s+(respond|reply|handle|answer)\b`),
	regexp.MustCompile(`(?i)\bany\s+(advice|suggestions?|recommendations?)\b`),
}

// broadeningPattern widens an entity question across the meeting corpus.
var broadeningPattern = regexp.MustCompile(`(?i)\b(all|every|across|each)\b`)

// corpusPattern recognizes references to the meeting population at large.
var corpusPattern = regexp.MustCompile(`(?i)\b(customers?|clients?|accounts?|meetings?|calls?|convos?|conversations?)\b`)

// acronymPattern: all-caps 2-5 chars. Checked against the first word only.
var acronymPattern = regexp.MustCompile(`^[A-Z]{2,5}$`)

// apostrophePattern: capitalized-with-apostrophe first word (Pete's, O'Reilly).
var apostrophePattern = regexp.MustCompile(`^[A-Z][a-z]*['’][A-Za-z]+$`)

// namedMatcher pairs a matcher with its name for the audit trail.
type namedMatcher struct {
	name string
	fn   func(question string, entities []string) *ClassificationResult
}

// PatternMatcher runs the deterministic keyword/regex classifiers in fixed
// priority order, short-circuiting on the first hit.
type PatternMatcher struct {
	matchers []namedMatcher
}

// NewPatternMatcher builds the matcher chain. Order is load-bearing.
func NewPatternMatcher() *PatternMatcher {
	m := &PatternMatcher{}
	m.matchers = []namedMatcher{
		{"refusal", m.matchRefusal},
		{"multi_intent", m.matchMultiIntent},
		{"greeting", m.matchGreeting},
		{"strategic_advice", m.matchStrategicAdvice},
		{"entity", m.matchEntity},
	}
	return m
}

// MatchKeyword applies the matcher chain. A nil result signals the caller to
// invoke the ambiguity resolver.
func (m *PatternMatcher) MatchKeyword(question string, entities []string) *ClassificationResult {
	timer := logging.StartTimer(logging.CategoryPatterns, "PatternMatcher.MatchKeyword")
	defer timer.Stop()

	for _, matcher := range m.matchers {
		if res := matcher.fn(question, entities); res != nil {
			logging.PatternsDebug("matcher %q hit: intent=%s confidence=%.2f", matcher.name, res.Intent, res.Confidence)
			return res
		}
	}
	logging.PatternsDebug("no deterministic match for question")
	return nil
}

func (m *PatternMatcher) matchRefusal(question string, _ []string) *ClassificationResult {
	for _, p := range refusalPatterns {
		if p.MatchString(question) {
			return &ClassificationResult{
				Intent:     IntentRefuse,
				Method:     MethodPattern,
				Confidence: confidenceRefusal,
				Reason:     "question matches an out-of-scope topic",
				Metadata:   &Metadata{MatchedSignals: []string{p.String()}},
			}
		}
	}
	return nil
}

func (m *PatternMatcher) matchMultiIntent(question string, _ []string) *ClassificationResult {
	for _, p := range multiIntentPatterns {
		if !p.MatchString(question) {
			continue
		}
		options := splitOptions(question)
		return &ClassificationResult{
			Intent:         IntentClarify,
			Method:         MethodPattern,
			Confidence:     confidenceMultiIntent,
			Reason:         "question bundles multiple requests",
			NeedsSplit:     true,
			SplitOptions:   options,
			ClarifyMessage: buildSplitMessage(options),
			Metadata:       &Metadata{MatchedSignals: []string{p.String()}},
		}
	}
	return nil
}

// splitOptions enumerates the sub-requests of a bundled question.
func splitOptions(question string) []string {
	parts := splitSeparator.Split(question, -1)
	options := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.Trim(part, ".?!,"))
		if part != "" {
			options = append(options, part)
		}
	}
	return options
}

func buildSplitMessage(options []string) string {
	var sb strings.Builder
	sb.WriteString("That looks like more than one request. I can take them one at a time:\n")
	for i, opt := range options {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, opt))
	}
	sb.WriteString("Reply with a number to start, or rephrase to a single request.")
	return sb.String()
}

func (m *PatternMatcher) matchGreeting(question string, _ []string) *ClassificationResult {
	normalized := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(question), "!.?,")))
	if !greetings[normalized] {
		return nil
	}
	return &ClassificationResult{
		Intent:     IntentGeneralHelp,
		Method:     MethodKeyword,
		Confidence: confidenceGreeting,
		Reason:     "exact greeting match",
		Metadata:   &Metadata{MatchedSignals: []string{normalized}},
	}
}

func (m *PatternMatcher) matchStrategicAdvice(question string, _ []string) *ClassificationResult {
	for _, p := range strategicAdvicePatterns {
		if p.MatchString(question) {
			return &ClassificationResult{
				Intent:     IntentProductKnowledge,
				Method:     MethodProductSignal,
				Confidence: confidenceProductSignal,
				Reason:     "strategic-advice signal implies internal product reasoning",
				Metadata:   &Metadata{MatchedSignals: []string{p.String()}},
			}
		}
	}
	return nil
}

// matchEntity scans for known organization names (authoritative full match)
// or a weak acronym-style first-word match, then routes by quantifier and
// the situation-plus-advice sub-pattern.
func (m *PatternMatcher) matchEntity(question string, entities []string) *ClassificationResult {
	entity, method, confidence := detectEntity(question, entities)
	if entity == "" {
		// No named entity: a broadening quantifier over the meeting corpus
		// is still a deterministic multi-meeting signal.
		if broadeningPattern.MatchString(question) && corpusPattern.MatchString(question) {
			return &ClassificationResult{
				Intent:     IntentMultiMeeting,
				Method:     MethodPattern,
				Confidence: confidenceEntityFull,
				Reason:     "broadening quantifier over the meeting corpus",
				Metadata:   &Metadata{MatchedSignals: []string{"broadening_quantifier"}},
			}
		}
		return nil
	}

	signals := []string{fmt.Sprintf("entity:%s", entity)}

	// A situation description plus an advice request beats the normal entity
	// routing: the user wants product guidance, not a transcript lookup.
	if matchesAny(question, situationPatterns) && matchesAny(question, advicePatterns) {
		return &ClassificationResult{
			Intent:     IntentProductKnowledge,
			Method:     MethodSituationAdvice,
			Confidence: confidenceSituationAdvice,
			Reason:     fmt.Sprintf("situation about %s plus an advice request", entity),
			Metadata:   &Metadata{MatchedSignals: append(signals, "situation_advice")},
		}
	}

	intent := IntentSingleMeeting
	reason := fmt.Sprintf("question about known entity %s", entity)
	if broadeningPattern.MatchString(question) {
		intent = IntentMultiMeeting
		reason = fmt.Sprintf("question about %s broadened across meetings", entity)
		signals = append(signals, "broadening_quantifier")
	}

	return &ClassificationResult{
		Intent:     intent,
		Method:     method,
		Confidence: confidence,
		Reason:     reason,
		Metadata:   &Metadata{MatchedSignals: signals},
	}
}

// detectEntity returns the matched entity, the detection method, and its
// confidence. Full-name matches are authoritative; acronym-style first-word
// matches are weak and must be routed through LLM validation by the caller.
func detectEntity(question string, entities []string) (string, DetectionMethod, float64) {
	lower := strings.ToLower(question)
	for _, name := range entities {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			return name, MethodEntity, confidenceEntityFull
		}
	}

	// Acronym heuristic: the first word, when it looks like a company
	// shorthand, is treated as a weak entity reference. Known source of
	// false positives; always validated downstream.
	first := firstWord(question)
	if first == "" {
		return "", "", 0
	}
	if acronymPattern.MatchString(first) || apostrophePattern.MatchString(first) {
		return first, MethodEntityAcronym, confidenceEntityAcronym
	}

	return "", "", 0
}

func firstWord(question string) string {
	fields := strings.Fields(strings.TrimSpace(question))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,!?:;")
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
