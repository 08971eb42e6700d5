package memoryservice

import (
	"strings"

	"github.com/zenzeng/endgameos/internal/config"
)

// defaultStopPhrases are short, low-value turns that never pass the
// attention filter regardless of configuration.
var defaultStopPhrases = []string{"ok", "okay", "thanks", "thank you", "bye", "yes", "no", "got it", "sure"}

// defaultLogicalMarkers are connective words that let text pass the filter
// even without a configured core keyword.
var defaultLogicalMarkers = []string{"because", "so", "if", "define", "therefore", "since", "means that"}

// PassesAttentionFilter reports whether text is worth extracting from: it
// must be long enough, must not be a bare acknowledgement, and must contain
// either a configured core keyword or a logical marker.
//
// This is the same gate applied per-turn by [Service.ProcessChatInteraction]
// and per-chunk by the ingestion orchestrator — both treat an uninformative
// fragment identically.
func PassesAttentionFilter(text string, cfg config.AttentionConfig) bool {
	if len(text) < 20 {
		return false
	}

	trimmed := strings.ToLower(strings.TrimSpace(text))
	stopPhrases := cfg.StopPhrases
	if len(stopPhrases) == 0 {
		stopPhrases = defaultStopPhrases
	}
	for _, sp := range stopPhrases {
		if trimmed == strings.ToLower(sp) {
			return false
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range cfg.CoreKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}

	markers := cfg.LogicalMarkers
	if len(markers) == 0 {
		markers = defaultLogicalMarkers
	}
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}

	return false
}
