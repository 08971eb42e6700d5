package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zenzeng/endgameos/internal/graphstore"
)

// sectionCount is the number of fixed-order sections joined by Assemble,
// including the always-present current-time section.
const sectionCount = 5

// Assemble composes the context blob for one chat turn: current time,
// vector recall, structured/concept recall, strategy recall, and an
// alignment note, joined in that order. Sections are optional — an empty
// section contributes nothing to the result.
//
// The four data-dependent sections run concurrently via errgroup, mirroring
// the fetch-then-assemble shape used for the hot-context layer elsewhere in
// this engine. None of the section builders propagate hard errors: each
// degrades to an empty or neutral-default section on failure so retrieval
// never blocks the agent turn on a backend hiccup.
func (a *Assembler) Assemble(ctx context.Context, userID, message string) (string, error) {
	start := a.clock()
	defer func() {
		a.metrics.RetrievalDuration.Record(ctx, a.clock().Sub(start).Seconds())
	}()

	var sections [sectionCount]string
	sections[0] = fmt.Sprintf("Current time: %s", a.clock().Format(time.RFC3339))

	queryVector := a.embedQuery(ctx, message)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		sections[1] = a.vectorRecall(egCtx, userID, queryVector)
		return nil
	})
	eg.Go(func() error {
		sections[2] = a.structuredOrConceptRecall(egCtx, userID, message, queryVector)
		return nil
	})
	eg.Go(func() error {
		sections[3] = a.strategyRecall(egCtx, message)
		return nil
	})
	eg.Go(func() error {
		sections[4] = a.alignmentNote(egCtx, userID, message)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return "", fmt.Errorf("retrieval: assemble: %w", err)
	}

	var b strings.Builder
	for _, s := range sections {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// embedQuery embeds message for the vector/concept recall sections. Returns
// nil on failure; downstream sections treat a nil vector as "no results".
func (a *Assembler) embedQuery(ctx context.Context, message string) []float32 {
	vectors := a.perception.EmbedBatch(ctx, []string{message})
	if len(vectors) == 0 {
		return nil
	}
	return vectors[0]
}

// vectorRecall returns the top document hits for the query, most recent
// first.
func (a *Assembler) vectorRecall(ctx context.Context, userID string, queryVector []float32) string {
	if queryVector == nil {
		return ""
	}
	hits, err := a.vectors.SearchDocuments(ctx, queryVector, userID, defaultDocumentLimit)
	if err != nil {
		a.logger.Error("retrieval: vector recall failed", "error", err, "user_id", userID)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	sort.SliceStable(hits, func(i, j int) bool {
		ti, _ := hits[i].Metadata["timestamp"].(string)
		tj, _ := hits[j].Metadata["timestamp"].(string)
		return ti > tj
	})

	var b strings.Builder
	b.WriteString("Relevant past context:\n")
	for _, h := range hits {
		ts, _ := h.Metadata["timestamp"].(string)
		if ts != "" {
			fmt.Fprintf(&b, "- [%s] %s\n", ts, h.Content)
		} else {
			fmt.Fprintf(&b, "- %s\n", h.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// structuredOrConceptRecall switches between the two structured-recall
// modes based on whether message carries a configured graph-search keyword.
func (a *Assembler) structuredOrConceptRecall(ctx context.Context, userID, message string, queryVector []float32) string {
	if containsAny(message, a.attention.GraphSearchKeywords) {
		return a.structuredRecall(ctx, userID)
	}
	return a.conceptRecall(ctx, queryVector)
}

// structuredRecall renders up to projectLimit Projects, taskLimit Tasks, and
// goalLimit Goals with their dossier attributes.
func (a *Assembler) structuredRecall(ctx context.Context, userID string) string {
	var b strings.Builder
	b.WriteString("Structured context:\n")
	wrote := false

	for _, group := range []struct {
		t     graphstore.NodeType
		limit int
	}{
		{graphstore.TypeGoal, goalLimit},
		{graphstore.TypeProject, projectLimit},
		{graphstore.TypeTask, taskLimit},
	} {
		nodes, err := a.graph.GetNodesByType(ctx, userID, group.t)
		if err != nil {
			a.logger.Error("retrieval: structured recall failed", "error", err, "user_id", userID, "type", group.t)
			continue
		}
		if len(nodes) > group.limit {
			nodes = nodes[:group.limit]
		}
		for _, n := range nodes {
			fmt.Fprintf(&b, "- [%s] %s: %s%s\n", group.t, n.Name, n.Content, formatDossier(n.Attributes))
			wrote = true
		}
	}
	if !wrote {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatDossier renders a node's dossier attributes as " (key: value, ...)",
// sorted by key for stable output, or "" if attrs is empty.
func formatDossier(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, attrs[k]))
	}
	return fmt.Sprintf(" (%s)", strings.Join(pairs, ", "))
}

// conceptRecall surfaces the single nearest concept match, when the query
// carries no graph-search keyword.
func (a *Assembler) conceptRecall(ctx context.Context, queryVector []float32) string {
	if queryVector == nil {
		return ""
	}
	match, ok, err := a.vectors.FindSimilarConcept(ctx, queryVector, conceptSimilarityThreshold)
	if err != nil {
		a.logger.Error("retrieval: concept recall failed", "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return fmt.Sprintf("Related concept: %s", match.Name)
}

// strategyRecall delegates to the evolution service's guidance lookup.
func (a *Assembler) strategyRecall(ctx context.Context, message string) string {
	guidance := a.evolution.GetGuidance(ctx, message)
	if guidance == "" {
		return ""
	}
	return "Learned strategies:\n" + guidance
}

// alignmentNote scores message against the user's Vision text. Always
// returns a non-empty note: ScoreAlignment itself degrades to the neutral
// default on failure.
func (a *Assembler) alignmentNote(ctx context.Context, userID, message string) string {
	visionText := a.visionText(ctx, userID)
	result := a.perception.ScoreAlignment(ctx, message, visionText)
	return fmt.Sprintf("Alignment: score=%.2f reason=%s", result.Score, result.Reason)
}

// visionText returns the Self's Vision node content, or "" if none exists.
func (a *Assembler) visionText(ctx context.Context, userID string) string {
	nodes, err := a.graph.GetNodesByType(ctx, userID, graphstore.TypeVision)
	if err != nil || len(nodes) == 0 {
		return ""
	}
	return nodes[0].Content
}

// containsAny reports whether text contains any of keywords, case-insensitively.
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
