package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// arbitrationPrefilterThreshold is the minimum Jaro-Winkler similarity a
// name pair must clear before an LLM arbitration call is worth paying for.
// Pairs below this are assumed distinct without consulting the model.
const arbitrationPrefilterThreshold = 0.55

// ArbitrateMerge judges whether a cluster of candidate names refer to the
// same entity, and if so proposes a standard name to merge them under.
//
// Before spending an LLM call, it runs a cheap Jaro-Winkler pre-filter
// across every pair in names: if no pair clears arbitrationPrefilterThreshold,
// the cluster is assumed to contain genuinely distinct names and the call is
// skipped.
func (l *Layer) ArbitrateMerge(ctx context.Context, names []string) (ArbitrationResult, error) {
	if len(names) < 2 {
		return ArbitrationResult{ShouldMerge: false}, nil
	}
	if !anyPairSimilar(names, arbitrationPrefilterThreshold) {
		return ArbitrationResult{ShouldMerge: false, Reason: "pre-filter: no sufficiently similar name pair"}, nil
	}

	prompt := arbitrationPrompt(names)
	resp, err := l.extractor.Complete(ctx, completionRequest(prompt))
	if err != nil {
		return ArbitrationResult{ShouldMerge: false, Reason: fmt.Sprintf("system error: %v", err)}, nil
	}
	if resp == nil || resp.Content == "" {
		return ArbitrationResult{ShouldMerge: false}, nil
	}

	var result ArbitrationResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &result); err != nil {
		return ArbitrationResult{ShouldMerge: false, Reason: fmt.Sprintf("system error: unparseable arbitration response: %v", err)}, nil
	}
	return result, nil
}

// anyPairSimilar reports whether any two distinct names in names have a
// case-insensitive Jaro-Winkler similarity at or above threshold.
func anyPairSimilar(names []string, threshold float64) bool {
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := strings.ToLower(names[i]), strings.ToLower(names[j])
			if a == b {
				return true
			}
			if matchr.JaroWinkler(a, b, false) >= threshold {
				return true
			}
		}
	}
	return false
}

func arbitrationPrompt(names []string) string {
	namesJSON, _ := json.Marshal(names)
	var b strings.Builder
	b.WriteString("You are a knowledge graph administrator. Here is a set of concept names that look similar:\n")
	fmt.Fprintf(&b, "%s\n\n", namesJSON)
	b.WriteString("Should they be merged into one entity?\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Merge only if they are synonyms, abbreviations, singular/plural, or case variants ")
	b.WriteString("(e.g. \"RustLang\" and \"Rust\", \"AI\" and \"Artificial Intelligence\").\n")
	b.WriteString("2. Do not merge if they are clearly distinct things (e.g. \"Java\" and \"JavaScript\").\n")
	b.WriteString("3. If merging, provide the most standard, general name as master_name.\n\n")
	b.WriteString(`Respond with JSON only: {"should_merge": true/false, "master_name": "...", "reason": "..."}`)
	return b.String()
}
