package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetsense/internal/config"
)

func TestInterpretHighConfidenceProposal(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["aggregate_insights", "summary"],
		"confidence": 0.82,
		"summary": "find recurring feature requests across recent customer calls",
		"partial_answer": "",
		"alternatives": []
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "what keeps coming up lately", "", nil)
	assert.Equal(t, IntentMultiMeeting, interp.Intent)
	assert.Equal(t, []Contract{ContractAggregateInsights, ContractSummary}, interp.Contracts)
	assert.Equal(t, 0.82, interp.Confidence)
	assert.Empty(t, interp.Err)
}

func TestInterpretLowConfidenceBuildsClarifyMessage(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "DOCUMENT_SEARCH",
		"contracts": ["list"],
		"confidence": 0.4,
		"summary": "find the onboarding document",
		"partial_answer": "",
		"alternatives": [
			{"intent": "PRODUCT_KNOWLEDGE", "summary": "how onboarding works in the product"},
			{"intent": "SINGLE_MEETING", "summary": "what a customer said about onboarding"}
		]
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "onboarding?", "no deterministic match", nil)
	assert.Equal(t, IntentDocumentSearch, interp.Intent)
	assert.Equal(t, 0.4, interp.Confidence)
	assert.Contains(t, interp.Message, "I think you're asking: find the onboarding document")
	assert.Contains(t, interp.Message, "1. how onboarding works in the product")
	assert.Contains(t, interp.Message, "2. what a customer said about onboarding")
	assert.Contains(t, interp.Message, "Reply with a number")
	assert.NotContains(t, interp.Message, "partial answer")
}

func TestInterpretPartialAnswerGatedByConfidence(t *testing.T) {
	response := func(confidence string) string {
		return `{
			"intent": "PRODUCT_KNOWLEDGE",
			"contracts": ["direct_answer"],
			"confidence": ` + confidence + `,
			"summary": "whether we support SSO",
			"partial_answer": "We support SAML-based SSO on the business tier.",
			"alternatives": []
		}`
	}

	r := NewAmbiguityResolver(&fakeLLM{responses: []string{response("0.55")}}, config.DefaultThresholds())
	interp := r.Interpret(context.Background(), "sso?", "", nil)
	assert.Contains(t, interp.Message, "partial answer", "confidence above the gate includes it")

	r = NewAmbiguityResolver(&fakeLLM{responses: []string{response("0.45")}}, config.DefaultThresholds())
	interp = r.Interpret(context.Background(), "sso?", "", nil)
	assert.NotContains(t, interp.Message, "partial answer", "confidence below the gate omits it")
}

func TestInterpretCapsAlternativesAtThree(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["summary"],
		"confidence": 0.5,
		"summary": "something across meetings",
		"alternatives": [
			{"intent": "SINGLE_MEETING", "summary": "one"},
			{"intent": "PRODUCT_KNOWLEDGE", "summary": "two"},
			{"intent": "DOCUMENT_SEARCH", "summary": "three"},
			{"intent": "SLACK_SEARCH", "summary": "four"}
		]
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "hm", "", nil)
	assert.Len(t, interp.Alternatives, 3)
}

func TestInterpretDropsInvalidAlternatives(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["summary"],
		"confidence": 0.5,
		"summary": "something",
		"alternatives": [
			{"intent": "NOT_A_THING", "summary": "bogus"},
			{"intent": "SINGLE_MEETING", "summary": "real"}
		]
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "hm", "", nil)
	require.Len(t, interp.Alternatives, 1)
	assert.Equal(t, IntentSingleMeeting, interp.Alternatives[0].Intent)
}

func TestInterpretUnknownContractFailsClosed(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["aggregate-insights"],
		"confidence": 0.8,
		"summary": "themes across customers"
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "what are customers saying", "", nil)
	assert.Equal(t, IntentClarify, interp.Intent)
	assert.Zero(t, interp.Confidence)
	assert.Equal(t, FallbackClarifyMessage, interp.Message)
	assert.Contains(t, interp.Err, "unknown contract")
}

func TestInterpretUnknownIntentFailsClosed(t *testing.T) {
	client := &fakeLLM{responses: []string{`{"intent": "EXECUTE_WORKFLOW", "confidence": 0.99}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "run it", "", nil)
	assert.Equal(t, IntentClarify, interp.Intent)
	assert.Zero(t, interp.Confidence)
	assert.Equal(t, FallbackClarifyMessage, interp.Message)
	assert.NotEmpty(t, interp.Err)
}

func TestInterpretLLMErrorFailsClosed(t *testing.T) {
	client := &fakeLLM{err: errors.New("provider down")}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "anything", "", nil)
	assert.Equal(t, IntentClarify, interp.Intent)
	assert.Zero(t, interp.Confidence)
	assert.Equal(t, FallbackClarifyMessage, interp.Message)
	assert.Contains(t, interp.Err, "interpretation call failed")
}

func TestInterpretGarbageResponseFailsClosed(t *testing.T) {
	client := &fakeLLM{responses: []string{"Sorry, I cannot help with that."}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "anything", "", nil)
	assert.Equal(t, IntentClarify, interp.Intent)
	assert.Equal(t, FallbackClarifyMessage, interp.Message)
}

func TestInterpretClampsConfidence(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "PRODUCT_KNOWLEDGE",
		"contracts": ["direct_answer"],
		"confidence": 1.7,
		"summary": "overconfident"
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "hm", "", nil)
	assert.Equal(t, 1.0, interp.Confidence)
}

func TestInterpretDefaultsEmptyContractsToSummary(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "GENERAL_HELP",
		"confidence": 0.7,
		"summary": "asking what the bot can do"
	}`}}
	r := NewAmbiguityResolver(client, config.DefaultThresholds())

	interp := r.Interpret(context.Background(), "so what now", "", nil)
	assert.Equal(t, []Contract{ContractSummary}, interp.Contracts)
}

func TestBuildInterpretPromptIncludesThreadAndTruncates(t *testing.T) {
	long := make([]byte, 450)
	for i := range long {
		long[i] = 'x'
	}
	thread := &ThreadContext{Messages: []Message{
		{Text: "summarize the Les Schwab call"},
		{Text: string(long), IsBot: true},
	}}

	prompt := buildInterpretPrompt("and pricing?", "no match", thread)
	assert.Contains(t, prompt, "User: summarize the Les Schwab call")
	assert.Contains(t, prompt, "Assistant: ")
	assert.Contains(t, prompt, "... (truncated)")
	assert.NotContains(t, prompt, string(long))
	assert.Contains(t, prompt, `Question: "and pricing?"`)
	assert.Contains(t, prompt, "no match")
}

func TestBuildInterpretPromptTruncatesAtRuneBoundary(t *testing.T) {
	// 200 three-byte runes is 600 bytes; byte 400 lands mid-rune.
	thread := &ThreadContext{Messages: []Message{
		{Text: strings.Repeat("語", 200), IsBot: true},
	}}

	prompt := buildInterpretPrompt("and?", "", thread)
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "... (truncated)")
}
