package evolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/zenzeng/endgameos/pkg/provider/llm"
	"github.com/zenzeng/endgameos/pkg/types"
)

// passSentinel is the exact response the attribution prompt returns when no
// lesson is worth recording.
const passSentinel = "PASS"

// Evolve runs a micro-evolution pass over one completed chat turn: it asks
// the reasoning backend to self-attribute the interaction, and on a
// non-PASS verdict persists the resulting strategy as an Experience.
//
// Errors from the reasoning backend are logged and swallowed rather than
// propagated — evolution is a best-effort side channel and must never fail
// the chat turn that triggered it.
func (s *Service) Evolve(ctx context.Context, userID, userQuery, response, feedback string) {
	resp, err := s.reasoner.Complete(ctx, attributionRequest(userQuery, response, feedback))
	if err != nil {
		s.logger.Error("evolution: self-attribution failed", "error", err, "user_id", userID)
		return
	}
	if resp == nil {
		return
	}
	content := strings.TrimSpace(resp.Content)
	if content == passSentinel {
		return
	}

	trigger, insight, strategy := parseTIS(content)
	if trigger == "" || strategy == "" {
		s.logger.Warn("evolution: self-attribution response did not parse", "content", content, "user_id", userID)
		return
	}

	s.recordExperience(ctx, userID, trigger, insight, strategy, "micro")
}

// attributionRequest builds the self-attribution prompt: given the query,
// the Self's response, and optional user feedback, either PASS or emit a
// TRIGGER/INSIGHT/STRATEGY strategy.
func attributionRequest(userQuery, response, feedback string) llm.CompletionRequest {
	var b strings.Builder
	b.WriteString("You are reviewing one of your own interactions after the fact.\n\n")
	fmt.Fprintf(&b, "User input: %q\n", userQuery)
	fmt.Fprintf(&b, "Your response: %q\n", response)
	if feedback != "" {
		fmt.Fprintf(&b, "User feedback: %q\n", feedback)
	} else {
		b.WriteString("User feedback: none given\n")
	}
	b.WriteString("\nIf the response was already good, reply with exactly \"PASS\" and nothing else.\n")
	b.WriteString("If there is room to improve (wrong tone, missed the user's emotional state, an ")
	b.WriteString("unrealistic suggestion, an overlong answer), respond with exactly these three lines:\n")
	b.WriteString("TRIGGER: <the scenario in one sentence>\n")
	b.WriteString("INSIGHT: <what went wrong>\n")
	b.WriteString("STRATEGY: <a concrete instruction for next time>\n")

	return llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.2,
	}
}

// parseTIS extracts TRIGGER/INSIGHT/STRATEGY fields from a line-oriented
// response. Any field not present is returned empty.
func parseTIS(content string) (trigger, insight, strategy string) {
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "TRIGGER:"):
			trigger = strings.TrimSpace(strings.TrimPrefix(line, "TRIGGER:"))
		case strings.HasPrefix(line, "INSIGHT:"):
			insight = strings.TrimSpace(strings.TrimPrefix(line, "INSIGHT:"))
		case strings.HasPrefix(line, "STRATEGY:"):
			strategy = strings.TrimSpace(strings.TrimPrefix(line, "STRATEGY:"))
		}
	}
	return trigger, insight, strategy
}

// recordExperience persists one distilled strategy into both stores: the
// graph store for structured display, the vector store (keyed by the same
// id) for similarity retrieval via GetGuidance. The embedding is computed
// from trigger and insight, since guidance lookups happen in a similar
// scenario to when the lesson was learned, not when it was phrased; the text
// stored beside it is the strategy, which is what GetGuidance returns.
func (s *Service) recordExperience(ctx context.Context, userID, trigger, insight, strategy, source string) {
	id := "exp_" + shortID()

	if err := s.graph.AddExperience(ctx, userID, id, trigger, insight, strategy); err != nil {
		s.logger.Error("evolution: persist experience failed", "error", err, "user_id", userID)
		return
	}

	content := fmt.Sprintf("Scenario: %s\nInsight: %s", trigger, insight)
	vectors, err := s.embedder.EmbedBatch(ctx, []string{content})
	if err != nil || len(vectors) == 0 {
		s.logger.Error("evolution: embed experience failed", "error", err, "user_id", userID)
		return
	}

	if err := s.vectors.AddExperienceVector(ctx, id, strategy, vectors[0]); err != nil {
		s.logger.Error("evolution: index experience vector failed", "error", err, "user_id", userID)
		return
	}

	s.metrics.RecordExperienceRecorded(ctx, source)
	s.logger.Info("evolution: strategy recorded", "id", id, "source", source, "user_id", userID)
}

// GetGuidance embeds the current query and returns up to three nearest
// experience strategies, newline-joined and bullet-prefixed for direct
// inclusion in a prompt. Returns "" on any failure or when nothing is found.
func (s *Service) GetGuidance(ctx context.Context, query string) string {
	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		s.logger.Error("evolution: embed guidance query failed", "error", err)
		return ""
	}

	strategies, err := s.vectors.SearchExperiences(ctx, vectors[0], guidanceResults)
	if err != nil {
		s.logger.Error("evolution: search experiences failed", "error", err)
		return ""
	}
	if len(strategies) == 0 {
		return ""
	}

	lines := make([]string, len(strategies))
	for i, strat := range strategies {
		lines[i] = "- " + strat
	}
	return strings.Join(lines, "\n")
}
