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

func newTestOrchestrator(client *fakeLLM, counts *fakeCounts) *Orchestrator {
	return New(Deps{
		Client:     client,
		Entities:   testEntities(),
		Counts:     counts,
		Thresholds: config.DefaultThresholds(),
	})
}

const scopeUnbounded = `{"has_time_range": false, "scope_type": "none", "specific_companies": [], "meeting_limit": 0}`

func TestRunEntityQuestion(t *testing.T) {
	client := &fakeLLM{}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "what did Les Schwab say about pricing", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentSingleMeeting, res.Intent)
	assert.Equal(t, MethodEntity, res.Method)
	assert.True(t, res.Layers.SingleMeeting)
	assert.True(t, res.Layers.ProductIdentity)
	assert.False(t, res.Layers.MultiMeeting)
	assert.Equal(t, ContractSummary, res.Contract)
	require.NotNil(t, res.Metadata)
	assert.NotEmpty(t, res.Metadata.RequestID)
	assert.Zero(t, client.callCount(), "trusted entity match needs no LLM at all")
}

func TestRunMultiIntentSplitIsTerminal(t *testing.T) {
	client := &fakeLLM{}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "summarize the Les Schwab call and then email it to the team", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, MethodPattern, res.Method)
	assert.Equal(t, ContractDirectAnswer, res.Contract)
	assert.Contains(t, res.ClarifyMessage, "more than one request")
	assert.Contains(t, res.ClarifyMessage, "1. ")
	assert.Contains(t, res.ClarifyMessage, "2. ")
	assert.Zero(t, client.callCount(), "split clarification never consults the LLM")
}

func TestRunRefusalIsTerminal(t *testing.T) {
	client := &fakeLLM{}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "what's the weather in Denver", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentRefuse, res.Intent)
	assert.Equal(t, MethodPattern, res.Method)
	assert.NotEmpty(t, res.ClarifyMessage)
	assert.False(t, res.Layers.SingleMeeting)
	assert.False(t, res.Layers.MultiMeeting)
	assert.Zero(t, client.callCount())
}

func TestRunBroadenedQuestionWithBoundedScope(t *testing.T) {
	client := &fakeLLM{responses: []string{
		confirmVerdict,
		`{"has_time_range": true, "scope_type": "all", "specific_companies": [], "meeting_limit": 0}`,
	}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "what feature requests came up across all customers last month", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentMultiMeeting, res.Intent)
	assert.Equal(t, MethodPattern, res.Method)
	assert.True(t, res.Layers.MultiMeeting)
	assert.Equal(t, ContractAggregateInsights, res.Contract)
	require.NotNil(t, res.Scope)
	assert.True(t, res.Scope.HasTimeRange)
	assert.Empty(t, res.ClarifyMessage)
	assert.Empty(t, res.ScopeNote, "explicit scope earns no note")
	assert.Equal(t, 2, client.callCount(), "one validation call plus one scope call")
}

func TestRunUnboundedAggregateBlocksOnTimeRange(t *testing.T) {
	client := &fakeLLM{responses: []string{confirmVerdict, scopeUnbounded}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "find patterns across all customers", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, MethodAggregateScopeCheck, res.Method)
	assert.Contains(t, res.ClarifyMessage, "about 340 meetings")
	assert.Contains(t, res.ClarifyMessage, "1. Last month")
	require.NotNil(t, res.Proposed)
	assert.Equal(t, IntentMultiMeeting, res.Proposed.Intent)
	assert.Contains(t, res.Proposed.Contracts, ContractAggregateInsights)
	require.NotNil(t, res.Scope)
	assert.True(t, res.Scope.AllCustomers)
	assert.Contains(t, res.Metadata.MatchedSignals, "aggregate_scope_check")
}

func TestRunUnboundedAggregateSmallPopulationProceeds(t *testing.T) {
	client := &fakeLLM{responses: []string{confirmVerdict, scopeUnbounded}}
	o := newTestOrchestrator(client, &fakeCounts{count: 37})

	res := o.Run(context.Background(), "find patterns across all customers", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentMultiMeeting, res.Intent)
	assert.Equal(t, ContractAggregateInsights, res.Contract)
	assert.Contains(t, res.ScopeNote, "all customers (37 meetings)")
	assert.Empty(t, res.ClarifyMessage)
}

func TestRunPopulationAtThresholdProceeds(t *testing.T) {
	client := &fakeLLM{responses: []string{confirmVerdict, scopeUnbounded}}
	o := newTestOrchestrator(client, &fakeCounts{count: 100})

	res := o.Run(context.Background(), "find patterns across all customers", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentMultiMeeting, res.Intent, "the block fires strictly above the threshold")
}

func TestRunMeetingCountFailureFailsOpen(t *testing.T) {
	client := &fakeLLM{responses: []string{confirmVerdict, scopeUnbounded}}
	o := newTestOrchestrator(client, &fakeCounts{err: errors.New("count service down")})

	res := o.Run(context.Background(), "find patterns across all customers", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentMultiMeeting, res.Intent, "no population figure means nothing to block on")
}

func TestRunScopeCheckFailureClarifies(t *testing.T) {
	client := &fakeLLM{responses: []string{confirmVerdict, "not json at all"}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "find patterns across all customers", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, MethodDefault, res.Method)
	assert.Equal(t, FallbackClarifyMessage, res.ClarifyMessage)
	require.NotNil(t, res.Metadata)
	assert.NotEmpty(t, res.Metadata.ClassificationError)
}

func TestRunAmbiguousQuestionAcceptedInterpretation(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "PRODUCT_KNOWLEDGE",
		"contracts": ["direct_answer"],
		"confidence": 0.75,
		"summary": "asking whether the product supports SSO",
		"alternatives": []
	}`}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "sso situation?", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentProductKnowledge, res.Intent)
	assert.Equal(t, MethodLLM, res.Method)
	assert.True(t, res.Layers.ProductSSOT)
	assert.Equal(t, ContractDirectAnswer, res.Contract, "the proposal's chain drives the contract")
	require.NotNil(t, res.Proposed)
	assert.Empty(t, res.ClarifyMessage)
}

func TestRunAmbiguousQuestionLowConfidenceClarifies(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["aggregate_insights"],
		"confidence": 0.45,
		"summary": "recent themes across customer calls",
		"alternatives": [{"intent": "GENERAL_HELP", "summary": "asking what the bot can do"}]
	}`}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "thoughts?", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, MethodLLM, res.Method)
	assert.False(t, res.Layers.MultiMeeting, "a sub-threshold proposal must never execute")
	require.NotNil(t, res.Proposed, "the proposal rides along for telemetry")
	assert.Equal(t, IntentMultiMeeting, res.Proposed.Intent)
	assert.Contains(t, res.ClarifyMessage, "recent themes across customer calls")
	assert.Contains(t, res.ClarifyMessage, "1. asking what the bot can do")
}

func TestRunConfidenceAtInterpretationThresholdExecutes(t *testing.T) {
	client := &fakeLLM{responses: []string{`{
		"intent": "DOCUMENT_SEARCH",
		"contracts": ["list"],
		"confidence": 0.6,
		"summary": "find the security whitepaper",
		"alternatives": []
	}`}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "that security doc", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentDocumentSearch, res.Intent, "the gate is inclusive at the threshold")
	assert.True(t, res.Layers.DocumentContext)
}

func TestRunMisspelledContractNeverExecutes(t *testing.T) {
	// A near-miss contract spelling must not slip past the scope check as a
	// non-aggregate contract; the whole interpretation is rejected.
	client := &fakeLLM{responses: []string{`{
		"intent": "MULTI_MEETING",
		"contracts": ["aggregate-insights"],
		"confidence": 0.8,
		"summary": "themes across customers"
	}`}}
	o := newTestOrchestrator(client, &fakeCounts{count: 150})

	res := o.Run(context.Background(), "what are customers saying lately", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, FallbackClarifyMessage, res.ClarifyMessage)
	assert.False(t, res.Layers.MultiMeeting)
	require.NotNil(t, res.Metadata)
	assert.Contains(t, res.Metadata.ClassificationError, "unknown contract")
	assert.Equal(t, 1, client.callCount(), "rejected interpretation makes no further LLM calls")
}

func TestRunTotalLLMFailureDegradesToClarify(t *testing.T) {
	client := &fakeLLM{err: errors.New("provider down")}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "thoughts?", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentClarify, res.Intent)
	assert.Equal(t, FallbackClarifyMessage, res.ClarifyMessage)
	require.NotNil(t, res.Metadata)
	assert.NotEmpty(t, res.Metadata.ClassificationError)
}

func TestRunGreetingValidationFailureStillAnswers(t *testing.T) {
	// The validator is down, but greetings are a grounded signal: fail-open.
	client := &fakeLLM{err: errors.New("provider down")}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "hello", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentGeneralHelp, res.Intent)
	assert.Equal(t, MethodKeyword, res.Method)
	assert.Equal(t, ContractDirectAnswer, res.Contract)
}

func TestRunValidationOverrideFlowsIntoResult(t *testing.T) {
	client := &fakeLLM{responses: []string{
		`{"confirmed": false, "suggested_intent": "PRODUCT_KNOWLEDGE", "reason": "SLA is jargon, not a customer"}`,
	}}
	o := newTestOrchestrator(client, &fakeCounts{count: 340})

	res := o.Run(context.Background(), "SLA coverage for enterprise", nil)
	require.NotNil(t, res)
	assert.Equal(t, IntentProductKnowledge, res.Intent)
	assert.Equal(t, MethodLLMValidated, res.Method)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, IntentSingleMeeting, res.Metadata.OriginalIntent)
	assert.Equal(t, MethodEntityAcronym, res.Metadata.OriginalMethod)
}

func TestRunAlwaysReturnsWellFormedResult(t *testing.T) {
	client := &fakeLLM{err: errors.New("provider down")}
	o := newTestOrchestrator(client, &fakeCounts{err: errors.New("count service down")})

	questions := []string{
		"",
		"thoughts?",
		"hello",
		"what did Les Schwab say about pricing",
		"find patterns across all customers",
	}
	for _, q := range questions {
		res := o.Run(context.Background(), q, nil)
		require.NotNil(t, res, "question %q", q)
		assert.True(t, res.Intent.Valid(), "question %q", q)
		assert.NotEmpty(t, res.Contract, "question %q", q)
		assert.NotEmpty(t, res.ContractChain, "question %q", q)
		require.NotNil(t, res.Metadata, "question %q", q)
		assert.NotEmpty(t, res.Metadata.RequestID, "question %q", q)
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	// "日" is three bytes; a five-byte cut lands mid-rune and must back up.
	got := truncate("日本語", 5)
	assert.Equal(t, "日...", got)
	assert.True(t, utf8.ValidString(got))

	got = truncate(strings.Repeat("é", 100), 99)
	assert.True(t, utf8.ValidString(got))
}

func TestRunIsDeterministicForDeterministicPaths(t *testing.T) {
	o := newTestOrchestrator(&fakeLLM{}, &fakeCounts{count: 340})

	for _, q := range []string{
		"what did Les Schwab say about pricing",
		"what's the weather in Denver",
	} {
		first := o.Run(context.Background(), q, nil)
		second := o.Run(context.Background(), q, nil)
		first.Metadata, second.Metadata = nil, nil // request IDs differ
		assert.Equal(t, first, second, "question %q", q)
	}
}
