package decision

import (
	"context"
	"regexp"
)

// ContractSelector chooses the answer contract (and chain) for a classified
// question. The production selector lives with the answer generator; the
// heuristic one here keeps the CLI and tests self-contained.
type ContractSelector interface {
	Select(ctx context.Context, question string, intent Intent) (Contract, []Contract, error)
}

var (
	aggregatePhrasing  = regexp.MustCompile(`(?i)\b(patterns?|trends?|themes?|common|recurring|overall|in\s+general|most\s+(often|common))\b`)
	listPhrasing       = regexp.MustCompile(`(?i)\b(list|which|what\s+are|enumerate|top\s+\d+)\b`)
	comparisonPhrasing = regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference\s+between)\b`)
	timelinePhrasing   = regexp.MustCompile(`(?i)\b(timeline|over\s+time|history\s+of|progression)\b`)
	yesNoPhrasing      = regexp.MustCompile(`(?i)^(is|are|was|were|does|do|did|can|could|will|would|has|have|should)\b`)
)

// HeuristicSelector maps intent plus question shape to a contract.
type HeuristicSelector struct{}

// Select returns the primary contract and its chain. The chain currently
// has a single element except for aggregate questions, which close with a
// summary step.
func (s *HeuristicSelector) Select(_ context.Context, question string, intent Intent) (Contract, []Contract, error) {
	switch intent {
	case IntentRefuse, IntentClarify:
		return ContractDirectAnswer, []Contract{ContractDirectAnswer}, nil
	case IntentGeneralHelp:
		return ContractDirectAnswer, []Contract{ContractDirectAnswer}, nil
	}

	var primary Contract
	switch {
	case intent == IntentMultiMeeting && (aggregatePhrasing.MatchString(question) || timelinePhrasing.MatchString(question)):
		if timelinePhrasing.MatchString(question) {
			primary = ContractTimeline
		} else {
			primary = ContractAggregateInsights
		}
	case intent == IntentMultiMeeting:
		primary = ContractAggregateInsights
	case comparisonPhrasing.MatchString(question):
		primary = ContractComparison
	case listPhrasing.MatchString(question):
		primary = ContractList
	case yesNoPhrasing.MatchString(question):
		primary = ContractYesNo
	default:
		primary = ContractSummary
	}

	chain := []Contract{primary}
	if primary.IsAggregate() {
		chain = append(chain, ContractSummary)
	}
	return primary, chain, nil
}
