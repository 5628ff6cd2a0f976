package decision

import (
	"context"
	"errors"
	"sync"
)

// fakeLLM scripts responses for the LLM call sites. Responses are consumed
// in order; the last one repeats.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const confirmVerdict = `{"confirmed": true, "reason": "deterministic signal holds"}`

// fakeFollowUp scripts the external follow-up detector.
type fakeFollowUp struct {
	result *FollowUpResult
	err    error
}

func (f *fakeFollowUp) Detect(ctx context.Context, question string, thread *ThreadContext) (*FollowUpResult, error) {
	return f.result, f.err
}

// fakeCounts scripts the meeting population.
type fakeCounts struct {
	count int
	err   error
}

func (f *fakeCounts) CountMeetings(ctx context.Context) (int, error) {
	return f.count, f.err
}

// testEntities returns an entity cache preloaded with a known company and a
// refresh function that never fires during tests.
func testEntities(names ...string) *EntityCache {
	if len(names) == 0 {
		names = []string{"Les Schwab", "Acme Manufacturing"}
	}
	return NewEntityCache(func(ctx context.Context) ([]string, error) {
		return names, nil
	})
}
