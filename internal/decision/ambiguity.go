package decision

import (
	"context"
	"fmt"
	"strings"

	"meetsense/internal/config"
	"meetsense/internal/llm"
	"meetsense/internal/logging"
)

// Interpretation is the ambiguity resolver's proposal for an unmatched
// question. It is only ever a proposal: the resolver never executes.
type Interpretation struct {
	Intent        Intent
	Contracts     []Contract
	Confidence    float64
	Alternatives  []Alternative
	Summary       string
	PartialAnswer string
	Message       string
	Err           string // classification error on total LLM failure
}

// AmbiguityResolver interprets questions no deterministic signal could
// classify. Hard invariant: this path may never cause execution by itself;
// the orchestrator decides whether a proposal clears the confidence gate.
type AmbiguityResolver struct {
	client     llm.Client
	thresholds config.Thresholds
}

// NewAmbiguityResolver builds the resolver.
func NewAmbiguityResolver(client llm.Client, thresholds config.Thresholds) *AmbiguityResolver {
	return &AmbiguityResolver{client: client, thresholds: thresholds}
}

// FallbackClarifyMessage is returned verbatim on total LLM failure.
const FallbackClarifyMessage = "I wasn't able to work out what you're asking for. " +
	"Could you rephrase, or mention the customer or meeting you have in mind?"

const interpretSystemPrompt = `You interpret ambiguous questions for a meeting-assistant bot that answers from customer meeting transcripts, product knowledge, documents, and Slack.

Valid intents: SINGLE_MEETING (one customer's meetings), MULTI_MEETING (across meetings/customers), PRODUCT_KNOWLEDGE (our product, roadmap, positioning), DOCUMENT_SEARCH, EXTERNAL_RESEARCH, SLACK_SEARCH, GENERAL_HELP.
Valid contracts: summary, list, yes_no, comparison, aggregate_insights, timeline, draft, direct_answer.

Respond with JSON only:
{
  "intent": "BEST_GUESS_INTENT",
  "contracts": ["primary", "then", "others"],
  "confidence": 0.0-1.0,
  "summary": "one-line restatement of what the user most likely wants",
  "partial_answer": "a short partial answer if one is safely possible, else empty",
  "alternatives": [{"intent": "OTHER_INTENT", "summary": "reading"}]
}
List at most three alternatives. Be honest about confidence.`

// Interpret asks the LLM for a best-guess reading of an unmatched question.
// Below the interpretation threshold the outcome is a clarification with a
// generated disambiguation message; on total failure it is the fixed
// fallback clarification with confidence 0.
func (r *AmbiguityResolver) Interpret(ctx context.Context, question, failureReason string, thread *ThreadContext) Interpretation {
	timer := logging.StartTimer(logging.CategoryLLM, "AmbiguityResolver.Interpret")
	defer timer.Stop()

	userPrompt := buildInterpretPrompt(question, failureReason, thread)

	resp, err := r.client.CompleteWithSystem(ctx, interpretSystemPrompt, userPrompt)
	if err != nil {
		return r.failClosed(fmt.Sprintf("interpretation call failed: %v", err))
	}

	var parsed struct {
		Intent        string   `json:"intent"`
		Contracts     []string `json:"contracts"`
		Confidence    float64  `json:"confidence"`
		Summary       string   `json:"summary"`
		PartialAnswer string   `json:"partial_answer"`
		Alternatives  []struct {
			Intent  string `json:"intent"`
			Summary string `json:"summary"`
		} `json:"alternatives"`
	}
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		return r.failClosed(fmt.Sprintf("interpretation response unparseable: %v", err))
	}

	intent, err := ParseIntent(parsed.Intent)
	if err != nil {
		// Unknown intents go down the clarification failure path, never a
		// permissive default.
		return r.failClosed(fmt.Sprintf("interpretation rejected: %v", err))
	}

	contracts := make([]Contract, 0, len(parsed.Contracts))
	for _, raw := range parsed.Contracts {
		contract, err := ParseContract(raw)
		if err != nil {
			// Same posture as unknown intents: an unrecognized contract
			// means the interpretation cannot be trusted to drive execution.
			return r.failClosed(fmt.Sprintf("interpretation rejected: %v", err))
		}
		contracts = append(contracts, contract)
	}
	if len(contracts) == 0 {
		contracts = []Contract{ContractSummary}
	}

	alternatives := make([]Alternative, 0, 3)
	for _, alt := range parsed.Alternatives {
		altIntent, err := ParseIntent(alt.Intent)
		if err != nil {
			continue
		}
		alternatives = append(alternatives, Alternative{Intent: altIntent, Summary: alt.Summary})
		if len(alternatives) == 3 {
			break
		}
	}

	interp := Interpretation{
		Intent:        intent,
		Contracts:     contracts,
		Confidence:    clamp01(parsed.Confidence),
		Alternatives:  alternatives,
		Summary:       parsed.Summary,
		PartialAnswer: parsed.PartialAnswer,
	}
	interp.Message = r.buildClarifyMessage(question, interp)

	logging.DecisionDebug("interpretation: intent=%s confidence=%.2f alternatives=%d",
		interp.Intent, interp.Confidence, len(interp.Alternatives))
	return interp
}

func buildInterpretPrompt(question, failureReason string, thread *ThreadContext) string {
	var sb strings.Builder
	if thread != nil && len(thread.Messages) > 0 {
		sb.WriteString("## Recent Conversation\n")
		for _, msg := range thread.Messages {
			role := "User"
			if msg.IsBot {
				role = "Assistant"
			}
			text := msg.Text
			if len(text) > 400 {
				text = truncate(text, 400) + " (truncated)"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", role, text))
		}
		sb.WriteString("\n---\n\n")
	}
	sb.WriteString(fmt.Sprintf("Question: %q\n", question))
	if failureReason != "" {
		sb.WriteString(fmt.Sprintf("Deterministic classification failed because: %s\n", failureReason))
	}
	return sb.String()
}

// buildClarifyMessage assembles the user-facing disambiguation message:
// restated best guess, optional partial answer, up to three enumerated
// alternatives, and a closing prompt.
func (r *AmbiguityResolver) buildClarifyMessage(question string, interp Interpretation) string {
	var sb strings.Builder

	if interp.Summary != "" {
		sb.WriteString(fmt.Sprintf("I think you're asking: %s\n", interp.Summary))
	} else {
		sb.WriteString(fmt.Sprintf("I'm not sure what you're asking with %q.\n", question))
	}

	if interp.PartialAnswer != "" && interp.Confidence > r.thresholds.PartialAnswer {
		sb.WriteString(fmt.Sprintf("\nHere's a partial answer in case it helps: %s\n", interp.PartialAnswer))
	}

	if len(interp.Alternatives) > 0 {
		sb.WriteString("\nOr did you mean:\n")
		for i, alt := range interp.Alternatives {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, alt.Summary))
		}
	}

	sb.WriteString("\nReply with a number, or rephrase with more detail.")
	return sb.String()
}

// failClosed returns the fixed fallback clarification with confidence 0.
// Interpretation never fails open: without a grounded signal there is
// nothing safe to trust.
func (r *AmbiguityResolver) failClosed(reason string) Interpretation {
	logging.Get(logging.CategoryLLM).Warn("interpretation fail-closed: %s", reason)
	return Interpretation{
		Intent:     IntentClarify,
		Contracts:  []Contract{},
		Confidence: 0,
		Message:    FallbackClarifyMessage,
		Err:        reason,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
