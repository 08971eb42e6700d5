package ingest

import "strings"

// ChunkText splits text into overlapping windows of target size with
// overlap, preferring to break at a newline in the back half of the window
// so chunks don't split mid-thought. Forward progress is guaranteed
// (next start > previous start) even when no natural break exists.
//
// An empty string yields no chunks. A string no longer than size yields
// exactly one chunk.
func ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return []string{}
	}
	if size <= 0 {
		size = 4000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		breakAt := preferredBreak(text, start, end)
		chunks = append(chunks, text[start:breakAt])

		next := breakAt - overlap
		if next <= start {
			next = breakAt
		}
		start = next
	}
	return chunks
}

// preferredBreak looks for the last newline in the back half of [start, end)
// and breaks there; falls back to the hard window boundary end otherwise.
func preferredBreak(text string, start, end int) int {
	backHalf := start + (end-start)/2
	if backHalf < start {
		backHalf = start
	}
	if idx := strings.LastIndexByte(text[backHalf:end], '\n'); idx >= 0 {
		candidate := backHalf + idx + 1
		if candidate > start {
			return candidate
		}
	}
	return end
}
