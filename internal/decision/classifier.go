package decision

import (
	"context"
	"fmt"
	"strings"

	"meetsense/internal/config"
	"meetsense/internal/llm"
	"meetsense/internal/logging"
)

// Classifier orchestrates pattern matching, entity detection, confidence
// scoring, and LLM validation into one classification per question.
type Classifier struct {
	patterns   *PatternMatcher
	entities   *EntityCache
	client     llm.Client
	followUp   FollowUpDetector
	thresholds config.Thresholds
}

// NewClassifier wires the classifier. followUp may be nil.
func NewClassifier(patterns *PatternMatcher, entities *EntityCache, client llm.Client, followUp FollowUpDetector, thresholds config.Thresholds) *Classifier {
	return &Classifier{
		patterns:   patterns,
		entities:   entities,
		client:     client,
		followUp:   followUp,
		thresholds: thresholds,
	}
}

// Classify resolves the question to a deterministic classification, applying
// LLM validation where the confidence gate demands it. A nil result means no
// deterministic signal exists and the ambiguity resolver must take over.
func (c *Classifier) Classify(ctx context.Context, question string, thread *ThreadContext) *ClassificationResult {
	timer := logging.StartTimer(logging.CategoryDecision, "Classifier.Classify")
	defer timer.Stop()

	if res := c.detectFollowUp(ctx, question, thread); res != nil {
		return res
	}

	entities := c.entities.Names(ctx)
	res := c.patterns.MatchKeyword(question, entities)
	if res == nil {
		return nil
	}

	if c.needsValidation(res) {
		c.validate(ctx, question, res)
	}
	return res
}

// detectFollowUp consults the external follow-up detector when thread
// context exists. Detector failures are non-fatal; classification proceeds.
func (c *Classifier) detectFollowUp(ctx context.Context, question string, thread *ThreadContext) *ClassificationResult {
	if c.followUp == nil || thread == nil || len(thread.Messages) == 0 {
		return nil
	}

	fu, err := c.followUp.Detect(ctx, question, thread)
	if err != nil {
		logging.Get(logging.CategoryDecision).Warn("follow-up detection failed: %v", err)
		return nil
	}
	if fu == nil || !fu.IsFollowUp || !fu.Intent.Valid() {
		return nil
	}

	logging.DecisionDebug("follow-up detected: intent=%s confidence=%.2f", fu.Intent, fu.Confidence)
	return &ClassificationResult{
		Intent:     fu.Intent,
		Method:     MethodFollowUpDetection,
		Confidence: fu.Confidence,
		Reason:     fu.Reason,
		Metadata:   &Metadata{MatchedSignals: []string{"follow_up"}},
	}
}

// needsValidation applies the confidence gate. Rules are evaluated in order;
// the first that applies decides.
func (c *Classifier) needsValidation(res *ClassificationResult) bool {
	switch {
	case res.Method == MethodPattern && res.Confidence >= 0.9:
		return false
	case res.Method == MethodEntity:
		// Full-entity matches are trusted.
		return false
	case res.Method == MethodProductSignal || res.Method == MethodSituationAdvice:
		return false
	case res.Intent == IntentClarify || res.Intent == IntentRefuse:
		return false
	case res.Method == MethodKeyword || res.Method == MethodEntityAcronym:
		return true
	case res.Confidence < c.thresholds.Validation:
		return true
	default:
		return false
	}
}

type validationVerdict struct {
	Confirmed       bool   `json:"confirmed"`
	SuggestedIntent string `json:"suggested_intent"`
	Reason          string `json:"reason"`
}

const validationSystemPrompt = `You audit intent classifications for a meeting-assistant bot.
You receive a question, the deterministic classifier's intent, its reason, and matched signals.
Valid intents: SINGLE_MEETING, MULTI_MEETING, PRODUCT_KNOWLEDGE, DOCUMENT_SEARCH, EXTERNAL_RESEARCH, SLACK_SEARCH, GENERAL_HELP, REFUSE, CLARIFY.

Respond with JSON only:
{"confirmed": true, "reason": "..."}
or
{"confirmed": false, "suggested_intent": "ONE_OF_THE_VALID_INTENTS", "reason": "..."}`

// validate double-checks a low-trust deterministic result with a single LLM
// call. Policy is fail-open: on any failure the deterministic result stands,
// because it already represents a grounded signal.
func (c *Classifier) validate(ctx context.Context, question string, res *ClassificationResult) {
	timer := logging.StartTimer(logging.CategoryLLM, "Classifier.validate")
	defer timer.Stop()

	if res.Metadata == nil {
		res.Metadata = &Metadata{}
	}
	signals := res.Metadata.MatchedSignals

	userPrompt := fmt.Sprintf(`Question: %q
Deterministic intent: %s
Detection method: %s
Confidence: %.2f
Reason: %s
Matched signals: %s`,
		question, res.Intent, res.Method, res.Confidence, res.Reason, strings.Join(signals, ", "))

	resp, err := c.client.CompleteWithSystem(ctx, validationSystemPrompt, userPrompt)
	if err != nil {
		c.failOpen(res, fmt.Sprintf("validation call failed: %v", err))
		return
	}

	var verdict validationVerdict
	if err := llm.DecodeJSON(resp, &verdict); err != nil {
		c.failOpen(res, fmt.Sprintf("validation response unparseable: %v", err))
		return
	}

	if verdict.Confirmed {
		res.Metadata.ValidationTrace = append(res.Metadata.ValidationTrace,
			fmt.Sprintf("confirmed %s: %s", res.Intent, verdict.Reason))
		logging.LLMDebug("validation confirmed intent %s", res.Intent)
		return
	}

	suggested, err := ParseIntent(verdict.SuggestedIntent)
	if err != nil {
		// Unknown suggestion is rejected, never defaulted.
		c.failOpen(res, fmt.Sprintf("validation suggested %s", err))
		return
	}

	logging.Decision("validation override: %s -> %s (%s)", res.Intent, suggested, verdict.Reason)
	res.Metadata.OriginalIntent = res.Intent
	res.Metadata.OriginalReason = res.Reason
	res.Metadata.OriginalMethod = res.Method
	res.Metadata.ValidationTrace = append(res.Metadata.ValidationTrace,
		fmt.Sprintf("override %s -> %s: %s", res.Intent, suggested, verdict.Reason))
	res.Intent = suggested
	res.Method = MethodLLMValidated
	res.Reason = verdict.Reason
}

// failOpen keeps the deterministic result and records why validation was
// skipped. This is the one place an automatic "do nothing different"
// override is acceptable.
func (c *Classifier) failOpen(res *ClassificationResult, reason string) {
	logging.Get(logging.CategoryLLM).Warn("fail-open: %s", reason)
	res.Metadata.ValidationTrace = append(res.Metadata.ValidationTrace, "fail-open: "+reason)
}
