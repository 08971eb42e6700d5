package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ConsolidateNodes pools the deduplicated node summaries gathered across a
// batch of chunk-level extractions and asks the model, in a single call, to
// semantically cluster near-duplicate names (nicknames, abbreviations,
// singular/plural variants) under one standard name, and to prune nodes
// unrelated to visionContext.
//
// Callers are expected to fall back to naive name-based dedup if this call
// fails — ConsolidateNodes itself does not retry.
func (l *Layer) ConsolidateNodes(ctx context.Context, summaries []NodeSummary, visionContext string) (ConsolidationResult, error) {
	empty := ConsolidationResult{Mapping: map[string]string{}, StandardNodes: []StandardNode{}}
	if len(summaries) == 0 {
		return empty, nil
	}

	prompt, err := consolidationPrompt(summaries, visionContext)
	if err != nil {
		return empty, fmt.Errorf("perception: build consolidation prompt: %w", err)
	}

	resp, err := l.extractor.Complete(ctx, completionRequest(prompt))
	if err != nil {
		return empty, fmt.Errorf("perception: consolidate nodes: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return empty, nil
	}

	var result ConsolidationResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &result); err != nil {
		return empty, fmt.Errorf("perception: parse consolidation response: %w", err)
	}
	if result.Mapping == nil {
		result.Mapping = map[string]string{}
	}
	if result.StandardNodes == nil {
		result.StandardNodes = []StandardNode{}
	}
	return result, nil
}

func consolidationPrompt(summaries []NodeSummary, visionContext string) (string, error) {
	summariesJSON, err := json.Marshal(summaries)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a senior data architect and entity-alignment specialist. Below is a preliminary ")
	b.WriteString("entity list extracted from multiple text chunks. Because extraction ran chunk by chunk, it ")
	b.WriteString("contains heavy duplication and semantic overlap.\n\n")
	fmt.Fprintf(&b, "Vision context: %s\n\n", visionContext)
	b.WriteString("Task:\n")
	b.WriteString("1. Semantic clustering: merge nicknames, abbreviations, and title+surname variants of the ")
	b.WriteString("same Person/Organization into one; merge Goal/Project/Task nodes describing the same thing.\n")
	b.WriteString("2. Pick the most formal, complete, non-redundant name as the standard name for each cluster.\n")
	b.WriteString("3. Strategic pruning: drop nodes unrelated to the vision context, or too vague to act on.\n")
	b.WriteString("4. Information fusion: merge multiple descriptions of the same entity into one concise content.\n\n")
	b.WriteString(`Respond with JSON only: {"mapping": {"original name": "standard name"}, "standard_nodes": [{"name","type","content"}]}` + "\n\n")
	fmt.Fprintf(&b, "Entities to merge: %s\n", summariesJSON)
	return b.String(), nil
}
