package decision

import (
	"context"
	"fmt"
	"strings"

	"meetsense/internal/llm"
	"meetsense/internal/logging"
)

// ScopeChecker determines whether a multi-meeting aggregate question carries
// enough time/customer specificity to run.
type ScopeChecker struct {
	client llm.Client
}

// NewScopeChecker builds the checker.
func NewScopeChecker(client llm.Client) *ScopeChecker {
	return &ScopeChecker{client: client}
}

const scopeSystemPrompt = `You extract scope constraints from questions about customer meetings.
The question may rely on context from earlier in the conversation; honor scope stated there (for example a company named two messages ago).

Respond with JSON only:
{
  "has_time_range": true/false,
  "scope_type": "all" | "specific" | "none",
  "specific_companies": ["names", "if", "any"],
  "meeting_limit": 0
}
"scope_type" is "specific" when the question targets named companies, "all" when it explicitly spans every customer, "none" when it says nothing about breadth. "meeting_limit" is a number only when the user bounds the search ("last 5 calls"), else 0.`

// CheckSpecificity runs the single scope-extraction LLM call with the full
// thread history. scope_type "none" is normalized to "all" for execution;
// the returned defaulted flag records that the breadth was never stated.
func (s *ScopeChecker) CheckSpecificity(ctx context.Context, question string, thread *ThreadContext) (*ScopeInfo, bool, error) {
	timer := logging.StartTimer(logging.CategoryScope, "ScopeChecker.CheckSpecificity")
	defer timer.Stop()

	var sb strings.Builder
	if thread != nil && len(thread.Messages) > 0 {
		sb.WriteString("## Conversation so far\n")
		for _, msg := range thread.Messages {
			role := "User"
			if msg.IsBot {
				role = "Assistant"
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", role, msg.Text))
		}
		sb.WriteString("\n---\n\n")
	}
	sb.WriteString(fmt.Sprintf("Question: %q", question))

	resp, err := s.client.CompleteWithSystem(ctx, scopeSystemPrompt, sb.String())
	if err != nil {
		return nil, false, fmt.Errorf("scope check failed: %w", err)
	}

	var parsed struct {
		HasTimeRange      bool     `json:"has_time_range"`
		ScopeType         string   `json:"scope_type"`
		SpecificCompanies []string `json:"specific_companies"`
		MeetingLimit      int      `json:"meeting_limit"`
	}
	if err := llm.DecodeJSON(resp, &parsed); err != nil {
		return nil, false, fmt.Errorf("scope response unparseable: %w", err)
	}

	scopeType := ScopeType(parsed.ScopeType)
	switch scopeType {
	case ScopeAll, ScopeSpecific, ScopeNone:
	default:
		return nil, false, fmt.Errorf("scope check returned unknown scope_type %q", parsed.ScopeType)
	}

	defaulted := scopeType == ScopeNone
	if defaulted {
		// Unstated breadth executes as all customers.
		scopeType = ScopeAll
	}

	info := &ScopeInfo{
		AllCustomers:      scopeType == ScopeAll,
		ScopeType:         scopeType,
		SpecificCompanies: parsed.SpecificCompanies,
		HasTimeRange:      parsed.HasTimeRange,
		MeetingLimit:      parsed.MeetingLimit,
	}

	logging.ScopeDebug("scope: type=%s defaulted=%v timeRange=%v companies=%v limit=%d",
		info.ScopeType, defaulted, info.HasTimeRange, info.SpecificCompanies, info.MeetingLimit)
	return info, defaulted, nil
}

// TimeRangeClarifyMessage is the blocking clarification sent when an
// aggregate would scan an unbounded meeting population.
func TimeRangeClarifyMessage(meetingCount int) string {
	return fmt.Sprintf(
		"That search would cover about %d meetings. Which time range should I look at?\n"+
			"1. Last month\n2. Last quarter\n3. All time\n"+
			"Reply with a number or name a range.", meetingCount)
}

// GenerateScopeNote produces the non-blocking note attached when scope was
// defaulted but the population is small enough to proceed.
func GenerateScopeNote(scope *ScopeInfo, defaulted bool, meetingCount int) string {
	if scope == nil || !defaulted || !scope.AllCustomers {
		return ""
	}
	return fmt.Sprintf(
		"Searched across all customers (%d meetings). Mention a company or time range to narrow this.",
		meetingCount)
}
