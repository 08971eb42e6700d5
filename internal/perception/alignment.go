package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// defaultAlignmentScore and defaultAlignmentReason are returned whenever the
// alignment call fails or the backend produces no usable content, so the
// retrieval assembler always has a neutral note to append rather than
// omitting the section entirely.
const (
	defaultAlignmentScore  = 0.5
	defaultAlignmentReason = "unknown"
)

// ScoreAlignment asks the extraction backend to judge how closely text (a
// user's current message) tracks visionText (the Self's stated end-state).
// On any failure it returns the neutral default rather than an error, since
// a degraded alignment note is preferable to blocking retrieval.
func (l *Layer) ScoreAlignment(ctx context.Context, text, visionText string) AlignmentResult {
	fallback := AlignmentResult{Score: defaultAlignmentScore, Reason: defaultAlignmentReason}
	if visionText == "" {
		return fallback
	}

	resp, err := l.extractor.Complete(ctx, completionRequest(alignmentPrompt(text, visionText)))
	if err != nil || resp == nil || resp.Content == "" {
		return fallback
	}

	var result AlignmentResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &result); err != nil {
		l.logger.Warn("perception: parse alignment response failed", "error", err)
		return fallback
	}
	if result.Score < 0 || result.Score > 1 {
		return fallback
	}
	if result.Reason == "" {
		result.Reason = defaultAlignmentReason
	}
	return result
}

func alignmentPrompt(text, visionText string) string {
	var b strings.Builder
	b.WriteString("Compare the user's current message to their stated long-term vision. Judge how well the ")
	b.WriteString("message's intent supports or moves toward that vision.\n\n")
	fmt.Fprintf(&b, "Vision:\n%s\n\n", visionText)
	fmt.Fprintf(&b, "Current message:\n%s\n\n", text)
	b.WriteString(`Respond with JSON only: {"score": 0.0-1.0, "reason": "one short sentence"}`)
	return b.String()
}
