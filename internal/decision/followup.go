package decision

import "context"

// FollowUpResult is the external follow-up detector's verdict.
type FollowUpResult struct {
	IsFollowUp bool
	Intent     Intent
	Confidence float64
	Reason     string
}

// FollowUpDetector decides whether a question continues the prior thread
// (e.g. "what about pricing?" after a meeting lookup). The capability is
// owned by the conversation service; the decision layer only consumes it.
// A nil detector disables follow-up handling.
type FollowUpDetector interface {
	Detect(ctx context.Context, question string, thread *ThreadContext) (*FollowUpResult, error)
}
