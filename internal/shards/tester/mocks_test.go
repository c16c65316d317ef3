package tester

import (
	"context"
	"sync"

	"testforge/internal/prompt"
	"testforge/internal/types"
)

// llmReply is one scripted LLM answer.
type llmReply struct {
	text string
	err  error
}

// fakeLLM replays scripted replies per system prompt. The last reply of a
// script repeats once the script is exhausted. A nil script blocks until the
// context is done.
type fakeLLM struct {
	mu       sync.Mutex
	scripts  map[string][]llmReply
	calls    map[string]int
	lastUser map[string]string
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		scripts:  map[string][]llmReply{},
		calls:    map[string]int{},
		lastUser: map[string]string{},
	}
}

func (f *fakeLLM) onGenerate(replies ...llmReply) *fakeLLM {
	f.scripts[prompt.TestGenSystemPrompt] = replies
	return f
}

func (f *fakeLLM) onFeedback(replies ...llmReply) *fakeLLM {
	f.scripts[prompt.FeedbackSystemPrompt] = replies
	return f
}

func (f *fakeLLM) callCount(systemPrompt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[systemPrompt]
}

func (f *fakeLLM) userPrompt(systemPrompt string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUser[systemPrompt]
}

func (f *fakeLLM) Complete(ctx context.Context, userPrompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", userPrompt)
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	n := f.calls[systemPrompt]
	f.calls[systemPrompt]++
	f.lastUser[systemPrompt] = userPrompt
	script := f.scripts[systemPrompt]
	f.mu.Unlock()

	if len(script) == 0 {
		<-ctx.Done()
		return "", types.LLMError("fake", ctx.Err())
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].text, script[n].err
}

var _ types.LLMClient = (*fakeLLM)(nil)

// stubRunner returns canned runner output and records what it was asked to run.
type stubRunner struct {
	mu     sync.Mutex
	output string
	err    error

	calls      int
	moduleName string
	source     string
	testSource string
}

func (s *stubRunner) Run(_ context.Context, moduleName, originalSource, testSource string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.moduleName = moduleName
	s.source = originalSource
	s.testSource = testSource
	return s.output, s.err
}

var _ types.TestRunner = (*stubRunner)(nil)
