// Package decision implements the decision layer: a deterministic-first,
// LLM-assisted pipeline that resolves a user question to exactly one intent,
// a gated set of context layers, and an ordered answer-contract chain.
package decision

import "fmt"

// Intent is the single top-level classification of what the user wants.
type Intent string

const (
	IntentSingleMeeting    Intent = "SINGLE_MEETING"
	IntentMultiMeeting     Intent = "MULTI_MEETING"
	IntentProductKnowledge Intent = "PRODUCT_KNOWLEDGE"
	IntentDocumentSearch   Intent = "DOCUMENT_SEARCH"
	IntentExternalResearch Intent = "EXTERNAL_RESEARCH"
	IntentSlackSearch      Intent = "SLACK_SEARCH"
	IntentGeneralHelp      Intent = "GENERAL_HELP"
	IntentRefuse           Intent = "REFUSE"
	IntentClarify          Intent = "CLARIFY"
)

// AllIntents lists every valid intent. Kept in sync with the constants above;
// LayersFor must stay total over this set.
var AllIntents = []Intent{
	IntentSingleMeeting,
	IntentMultiMeeting,
	IntentProductKnowledge,
	IntentDocumentSearch,
	IntentExternalResearch,
	IntentSlackSearch,
	IntentGeneralHelp,
	IntentRefuse,
	IntentClarify,
}

// ParseIntent maps a string (typically LLM output) to an Intent. Unknown
// values are rejected rather than defaulted; callers route rejections into
// the clarification failure path.
func ParseIntent(s string) (Intent, error) {
	candidate := Intent(s)
	for _, known := range AllIntents {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// Valid reports whether i is a member of the closed intent enum.
func (i Intent) Valid() bool {
	_, err := ParseIntent(string(i))
	return err == nil
}

// DetectionMethod records which signal produced a classification.
type DetectionMethod string

const (
	MethodKeyword             DetectionMethod = "keyword"
	MethodPattern             DetectionMethod = "pattern"
	MethodEntity              DetectionMethod = "entity"
	MethodEntityAcronym       DetectionMethod = "entity_acronym"
	MethodLLM                 DetectionMethod = "llm"
	MethodLLMValidated        DetectionMethod = "llm_validated"
	MethodDefault             DetectionMethod = "default"
	MethodFollowUpDetection   DetectionMethod = "follow_up_detection"
	MethodProductSignal       DetectionMethod = "product_signal"
	MethodSituationAdvice     DetectionMethod = "situation_advice"
	MethodAggregateScopeCheck DetectionMethod = "aggregate_scope_check"
)

// Contract names an answer-shape specification consumed by the answer
// generator. A chain is an ordered sequence of contracts for multi-step
// requests.
type Contract string

const (
	ContractSummary           Contract = "summary"
	ContractList              Contract = "list"
	ContractYesNo             Contract = "yes_no"
	ContractComparison        Contract = "comparison"
	ContractAggregateInsights Contract = "aggregate_insights"
	ContractTimeline          Contract = "timeline"
	ContractDraft             Contract = "draft"
	ContractDirectAnswer      Contract = "direct_answer"
)

// AllContracts lists every valid contract.
var AllContracts = []Contract{
	ContractSummary,
	ContractList,
	ContractYesNo,
	ContractComparison,
	ContractAggregateInsights,
	ContractTimeline,
	ContractDraft,
	ContractDirectAnswer,
}

// ParseContract maps a string (typically LLM output) to a Contract. Unknown
// values are rejected rather than defaulted; callers route rejections into
// the clarification failure path.
func ParseContract(s string) (Contract, error) {
	candidate := Contract(s)
	for _, known := range AllContracts {
		if candidate == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown contract %q", s)
}

// IsAggregate reports whether a contract answers across the meeting
// population rather than a single conversation.
func (c Contract) IsAggregate() bool {
	return c == ContractAggregateInsights || c == ContractTimeline
}

// Message is a single turn in a conversation thread.
type Message struct {
	Text  string `json:"text"`
	IsBot bool   `json:"is_bot"`
}

// ThreadContext is the ordered conversation history supplied by the chat
// surface. Read-only; the decision layer never fetches history itself.
type ThreadContext struct {
	Messages []Message `json:"messages"`
}

// Alternative is one enumerated interpretation offered in a clarification.
type Alternative struct {
	Intent  Intent `json:"intent"`
	Summary string `json:"summary"`
}

// ProposedInterpretation is the best-guess reading of an ambiguous question.
// Its contract chain is the single source of truth for multi-step requests.
type ProposedInterpretation struct {
	Intent    Intent     `json:"intent"`
	Contracts []Contract `json:"contracts"`
	Summary   string     `json:"summary"`
}

// Metadata carries the audit trail for one classification.
type Metadata struct {
	RequestID           string          `json:"request_id,omitempty"`
	MatchedSignals      []string        `json:"matched_signals,omitempty"`
	RejectedIntents     []Intent        `json:"rejected_intents,omitempty"`
	ValidationTrace     []string        `json:"validation_trace,omitempty"`
	OriginalIntent      Intent          `json:"original_intent,omitempty"`
	OriginalReason      string          `json:"original_reason,omitempty"`
	OriginalMethod      DetectionMethod `json:"original_method,omitempty"`
	ClassificationError string          `json:"classification_error,omitempty"`
}

// ClassificationResult is the immutable output of intent classification.
// Created once per question; the only permitted reassignment of intent after
// creation is the logged LLM-validation override, which happens before the
// result leaves the classifier.
type ClassificationResult struct {
	Intent         Intent                  `json:"intent"`
	Method         DetectionMethod         `json:"detection_method"`
	Confidence     float64                 `json:"confidence"`
	Reason         string                  `json:"reason"`
	Metadata       *Metadata               `json:"decision_metadata,omitempty"`
	Proposed       *ProposedInterpretation `json:"proposed_interpretation,omitempty"`
	Alternatives   []Alternative           `json:"alternatives,omitempty"`
	ClarifyMessage string                  `json:"clarify_message,omitempty"`
	NeedsSplit     bool                    `json:"needs_split,omitempty"`
	SplitOptions   []string                `json:"split_options,omitempty"`
}

// ScopeType is the customer breadth of an aggregate question.
type ScopeType string

const (
	ScopeAll      ScopeType = "all"
	ScopeSpecific ScopeType = "specific"
	ScopeNone     ScopeType = "none"
)

// ScopeInfo holds the time-range/customer-breadth constraints of an
// aggregate question. Computed once per MULTI_MEETING question and passed
// downstream so later stages never re-derive scope from free text.
type ScopeInfo struct {
	AllCustomers      bool      `json:"all_customers"`
	ScopeType         ScopeType `json:"scope_type"`
	SpecificCompanies []string  `json:"specific_companies,omitempty"`
	HasTimeRange      bool      `json:"has_time_range"`
	MeetingLimit      int       `json:"meeting_limit,omitempty"`
}

// ContextLayers is the fixed record of permission flags controlling what
// data the downstream answer generator may read. Derived purely from Intent.
type ContextLayers struct {
	ProductIdentity bool `json:"product_identity"`
	ProductSSOT     bool `json:"product_ssot"`
	SingleMeeting   bool `json:"single_meeting"`
	MultiMeeting    bool `json:"multi_meeting"`
	DocumentContext bool `json:"document_context"`
	SlackSearch     bool `json:"slack_search"`
}

// Result is the terminal output of one decision-layer run, consumed by the
// answer-generation collaborator.
type Result struct {
	Intent         Intent                  `json:"intent"`
	Method         DetectionMethod         `json:"intent_detection_method"`
	Layers         ContextLayers           `json:"context_layers"`
	Contract       Contract                `json:"answer_contract"`
	ContractChain  []Contract              `json:"contract_chain,omitempty"`
	ClarifyMessage string                  `json:"clarify_message,omitempty"`
	Proposed       *ProposedInterpretation `json:"proposed_interpretation,omitempty"`
	Scope          *ScopeInfo              `json:"scope,omitempty"`
	ScopeNote      string                  `json:"scope_note,omitempty"`
	Metadata       *Metadata               `json:"decision_metadata,omitempty"`
}
