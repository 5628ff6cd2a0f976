package decision

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"meetsense/internal/config"
	"meetsense/internal/llm"
	"meetsense/internal/logging"
	"meetsense/internal/store"
)

// stage names the orchestrator's state machine states for the trace log.
type stage string

const (
	stageClassifying       stage = "CLASSIFYING"
	stageLayering          stage = "LAYERING"
	stageContractSelecting stage = "CONTRACT_SELECTING"
	stageScopeChecking     stage = "SCOPE_CHECKING"
	stageDone              stage = "DONE"
	stageClarifyTerminal   stage = "CLARIFY_TERMINAL"
)

// Orchestrator sequences classification, layer computation, contract
// selection, and scope checking into one decision per question. Each run is
// independent; the entity cache is the only shared state.
type Orchestrator struct {
	classifier *Classifier
	resolver   *AmbiguityResolver
	selector   ContractSelector
	scope      *ScopeChecker
	counts     store.MeetingCountStore
	thresholds config.Thresholds
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Client     llm.Client
	Entities   *EntityCache
	Counts     store.MeetingCountStore
	FollowUp   FollowUpDetector   // optional
	Selector   ContractSelector   // optional, defaults to HeuristicSelector
	Thresholds config.Thresholds
}

// New wires an orchestrator from its dependencies.
func New(deps Deps) *Orchestrator {
	if deps.Selector == nil {
		deps.Selector = &HeuristicSelector{}
	}
	if deps.Thresholds == (config.Thresholds{}) {
		deps.Thresholds = config.DefaultThresholds()
	}
	return &Orchestrator{
		classifier: NewClassifier(NewPatternMatcher(), deps.Entities, deps.Client, deps.FollowUp, deps.Thresholds),
		resolver:   NewAmbiguityResolver(deps.Client, deps.Thresholds),
		selector:   deps.Selector,
		scope:      NewScopeChecker(deps.Client),
		counts:     deps.Counts,
		thresholds: deps.Thresholds,
	}
}

// Run resolves a question to exactly one intent, its context layers, and an
// answer-contract chain. It always returns a well-formed Result: total
// failure degrades to a generic clarification, never to an error the caller
// must untangle.
func (o *Orchestrator) Run(ctx context.Context, question string, thread *ThreadContext) *Result {
	timer := logging.StartTimer(logging.CategoryDecision, "Orchestrator.Run")
	defer timer.Stop()

	meta := &Metadata{RequestID: uuid.NewString()}
	logging.Decision("[%s] %s question=%q", meta.RequestID, stageClassifying, truncate(question, 120))

	cls := o.classifier.Classify(ctx, question, thread)
	if cls == nil {
		return o.resolve(ctx, question, "no keyword, pattern, or entity match", thread, meta)
	}
	mergeMetadata(meta, cls.Metadata)

	// Pattern-level CLARIFY (multi-intent split) and REFUSE are terminal.
	if cls.Intent == IntentRefuse || cls.Intent == IntentClarify {
		return o.terminal(cls, meta)
	}

	return o.finish(ctx, question, thread, cls, meta)
}

// resolve runs the ambiguity resolver and applies the execution gate: a
// proposal at or above the interpretation threshold drives execution; below
// it the outcome is a clarification carrying the proposal for telemetry.
func (o *Orchestrator) resolve(ctx context.Context, question, failureReason string, thread *ThreadContext, meta *Metadata) *Result {
	interp := o.resolver.Interpret(ctx, question, failureReason, thread)
	if interp.Err != "" {
		meta.ClassificationError = interp.Err
	}

	proposed := &ProposedInterpretation{
		Intent:    interp.Intent,
		Contracts: interp.Contracts,
		Summary:   interp.Summary,
	}

	if interp.Err == "" && interp.Confidence >= o.thresholds.Interpretation && interp.Intent != IntentClarify {
		logging.Decision("[%s] interpretation accepted: intent=%s confidence=%.2f",
			meta.RequestID, interp.Intent, interp.Confidence)
		cls := &ClassificationResult{
			Intent:       interp.Intent,
			Method:       MethodLLM,
			Confidence:   interp.Confidence,
			Reason:       interp.Summary,
			Proposed:     proposed,
			Alternatives: interp.Alternatives,
		}
		return o.finish(ctx, question, thread, cls, meta)
	}

	logging.Decision("[%s] %s interpretation below threshold (%.2f < %.2f)",
		meta.RequestID, stageClarifyTerminal, interp.Confidence, o.thresholds.Interpretation)
	return &Result{
		Intent:         IntentClarify,
		Method:         MethodLLM,
		Layers:         LayersFor(IntentClarify),
		Contract:       ContractDirectAnswer,
		ContractChain:  []Contract{ContractDirectAnswer},
		ClarifyMessage: interp.Message,
		Proposed:       proposed,
		Metadata:       meta,
	}
}

// finish runs LAYERING, CONTRACT_SELECTING, and, for aggregate multi-meeting
// questions, SCOPE_CHECKING.
func (o *Orchestrator) finish(ctx context.Context, question string, thread *ThreadContext, cls *ClassificationResult, meta *Metadata) *Result {
	logging.DecisionDebug("[%s] %s intent=%s", meta.RequestID, stageLayering, cls.Intent)
	layers := LayersFor(cls.Intent)

	logging.DecisionDebug("[%s] %s", meta.RequestID, stageContractSelecting)
	contract, chain, err := o.selector.Select(ctx, question, cls.Intent)
	if err != nil {
		logging.Get(logging.CategoryDecision).Warn("[%s] contract selection failed, defaulting to summary: %v", meta.RequestID, err)
		contract, chain = ContractSummary, []Contract{ContractSummary}
	}
	// The proposal's chain, when present, is the single source of truth.
	if cls.Proposed != nil && len(cls.Proposed.Contracts) > 0 {
		contract, chain = cls.Proposed.Contracts[0], cls.Proposed.Contracts
	}

	result := &Result{
		Intent:        cls.Intent,
		Method:        cls.Method,
		Layers:        layers,
		Contract:      contract,
		ContractChain: chain,
		Proposed:      cls.Proposed,
		Metadata:      meta,
	}

	if cls.Intent == IntentMultiMeeting && contract.IsAggregate() {
		if blocked := o.checkScope(ctx, question, thread, result, meta); blocked != nil {
			return blocked
		}
	}

	logging.Decision("[%s] %s intent=%s contract=%s", meta.RequestID, stageDone, result.Intent, result.Contract)
	return result
}

// checkScope runs the aggregate scope check. It either annotates the result
// (scope, scope note) and returns nil, or returns a blocking clarification.
func (o *Orchestrator) checkScope(ctx context.Context, question string, thread *ThreadContext, result *Result, meta *Metadata) *Result {
	logging.DecisionDebug("[%s] %s", meta.RequestID, stageScopeChecking)

	scope, defaulted, err := o.scope.CheckSpecificity(ctx, question, thread)
	if err != nil {
		// Transport/parse failure surfaces as a clarification, never as a
		// silently defaulted scope.
		meta.ClassificationError = err.Error()
		logging.Get(logging.CategoryScope).Warn("[%s] %v", meta.RequestID, err)
		return &Result{
			Intent:         IntentClarify,
			Method:         MethodDefault,
			Layers:         LayersFor(IntentClarify),
			Contract:       ContractDirectAnswer,
			ContractChain:  []Contract{ContractDirectAnswer},
			ClarifyMessage: FallbackClarifyMessage,
			Metadata:       meta,
		}
	}
	result.Scope = scope

	if scope.HasTimeRange || !scope.AllCustomers {
		return nil
	}

	count := o.meetingCount(ctx, meta)
	if count > o.thresholds.MeetingPopulation {
		logging.Decision("[%s] %s blocking on time range (population %d > %d)",
			meta.RequestID, stageClarifyTerminal, count, o.thresholds.MeetingPopulation)
		meta.MatchedSignals = append(meta.MatchedSignals, "aggregate_scope_check")
		return &Result{
			Intent:         IntentClarify,
			Method:         MethodAggregateScopeCheck,
			Layers:         LayersFor(IntentClarify),
			Contract:       ContractDirectAnswer,
			ContractChain:  []Contract{ContractDirectAnswer},
			ClarifyMessage: TimeRangeClarifyMessage(count),
			Scope:          scope,
			Proposed: &ProposedInterpretation{
				Intent:    IntentMultiMeeting,
				Contracts: result.ContractChain,
				Summary:   "aggregate search across all customers",
			},
			Metadata: meta,
		}
	}

	result.ScopeNote = GenerateScopeNote(scope, defaulted, count)
	return nil
}

// meetingCount looks up the candidate population. Lookup failure fails open
// to zero: without a population figure there is nothing to block on.
func (o *Orchestrator) meetingCount(ctx context.Context, meta *Metadata) int {
	if o.counts == nil {
		return 0
	}
	count, err := o.counts.CountMeetings(ctx)
	if err != nil {
		logging.Get(logging.CategoryScope).Warn("[%s] meeting count lookup failed: %v", meta.RequestID, err)
		return 0
	}
	return count
}

// terminal builds the result for REFUSE and pattern-level CLARIFY outcomes.
func (o *Orchestrator) terminal(cls *ClassificationResult, meta *Metadata) *Result {
	logging.Decision("[%s] %s intent=%s (%s)", meta.RequestID, stageClarifyTerminal, cls.Intent, cls.Reason)
	message := cls.ClarifyMessage
	if cls.Intent == IntentRefuse && message == "" {
		message = "That's outside what I can help with. I answer questions about your customer meetings, product, and documents."
	}
	return &Result{
		Intent:         cls.Intent,
		Method:         cls.Method,
		Layers:         LayersFor(cls.Intent),
		Contract:       ContractDirectAnswer,
		ContractChain:  []Contract{ContractDirectAnswer},
		ClarifyMessage: message,
		Proposed:       cls.Proposed,
		Metadata:       meta,
	}
}

// mergeMetadata folds a classification's audit trail into the request-level
// metadata so the result carries one coherent trace.
func mergeMetadata(dst *Metadata, src *Metadata) {
	if src == nil {
		return
	}
	dst.MatchedSignals = append(dst.MatchedSignals, src.MatchedSignals...)
	dst.RejectedIntents = append(dst.RejectedIntents, src.RejectedIntents...)
	dst.ValidationTrace = append(dst.ValidationTrace, src.ValidationTrace...)
	if src.OriginalIntent != "" {
		dst.OriginalIntent = src.OriginalIntent
		dst.OriginalReason = src.OriginalReason
		dst.OriginalMethod = src.OriginalMethod
	}
	if src.ClassificationError != "" {
		dst.ClassificationError = src.ClassificationError
	}
}

// truncate shortens s to at most max bytes, backing up to a rune boundary so
// multi-byte characters are never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
