package tester

import (
	"context"
	"time"

	"testforge/internal/articulation"
	"testforge/internal/logging"
	"testforge/internal/prompt"
	"testforge/internal/types"
)

// feedbackState names the steps of feedback generation for logging.
type feedbackState string

const (
	stateParseStats     feedbackState = "PARSE_STATS"
	stateLLMRequest     feedbackState = "LLM_REQUEST"
	stateLLMParse       feedbackState = "LLM_PARSE"
	stateLLMUnavailable feedbackState = "LLM_UNAVAILABLE"
	stateFallback       feedbackState = "FALLBACK"
	stateOK             feedbackState = "OK"
)

// FeedbackOrchestrator turns raw runner output into a feedback record. The
// score always comes from the parsed statistics; the LLM only contributes
// prose, and any LLM problem degrades to calculated feedback.
type FeedbackOrchestrator struct {
	client       types.LLMClient
	builder      *prompt.Builder
	timeout      time.Duration
	minTestCases int
}

// NewFeedbackOrchestrator creates an orchestrator. client may be nil.
func NewFeedbackOrchestrator(client types.LLMClient, cfg TesterConfig) *FeedbackOrchestrator {
	cfg = cfg.withDefaults()
	return &FeedbackOrchestrator{
		client:       client,
		builder:      prompt.NewBuilder(cfg.Prompt),
		timeout:      cfg.LLMTimeout,
		minTestCases: cfg.MinTestCases,
	}
}

func logTransition(from, to feedbackState) {
	logging.TesterDebug("feedback: %s -> %s", from, to)
}

// GenerateFeedback parses testOutput and produces a feedback record. It never
// returns nil.
func (o *FeedbackOrchestrator) GenerateFeedback(ctx context.Context, testOutput, originalCode string) *types.FeedbackRecord {
	stats := ParseRunOutput(testOutput)
	logging.Tester("feedback: parsed %s", stats)

	if o.client == nil {
		logTransition(stateParseStats, stateLLMUnavailable)
		logTransition(stateLLMUnavailable, stateFallback)
		return calculatedFeedback(stats, o.minTestCases)
	}

	logTransition(stateParseStats, stateLLMRequest)
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.client.CompleteWithSystem(callCtx, prompt.FeedbackSystemPrompt,
		o.builder.BuildFeedbackPrompt(stats, originalCode, testOutput))
	if err != nil {
		logging.TesterWarn("feedback: LLM request failed: %v", err)
		logTransition(stateLLMRequest, stateFallback)
		return calculatedFeedback(stats, o.minTestCases)
	}

	logTransition(stateLLMRequest, stateLLMParse)
	record, err := articulation.ParseFeedback(raw)
	if err != nil {
		logging.TesterWarn("feedback: could not parse LLM response: %v", err)
		logTransition(stateLLMParse, stateFallback)
		return calculatedFeedback(stats, o.minTestCases)
	}

	if record.Score != stats.Score() {
		logging.TesterDebug("feedback: replacing LLM score %.2f with computed %.2f", record.Score, stats.Score())
	}
	record.Score = stats.Score()
	record.Summary = stats
	record.Source = types.SourceLLM
	record.ScoringExplanation = withConsistencyNote(record.ScoringExplanation, stats)

	calculated := calculatedFeedback(stats, o.minTestCases)
	if record.CodeQuality == nil {
		record.CodeQuality = calculated.CodeQuality
	}
	if record.PerformanceInsights == nil {
		record.PerformanceInsights = calculated.PerformanceInsights
	}

	logTransition(stateLLMParse, stateOK)
	return record
}
