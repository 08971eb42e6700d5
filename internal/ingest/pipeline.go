package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/zenzeng/endgameos/internal/graphstore"
	"github.com/zenzeng/endgameos/internal/memoryservice"
	"github.com/zenzeng/endgameos/internal/perception"
)

// selfAliases are the first-person names extraction may surface in place of
// the literal userID; all of them resolve to the canonical Self node.
var selfAliases = map[string]struct{}{
	"Self": {}, "self": {}, "I": {}, "me": {}, "myself": {},
}

// Run executes the full Parse → Chunk → Map → Reduce → Embed → Load
// pipeline for one file and stages its output for userID. progress may be
// nil.
func (p *Pipeline) Run(ctx context.Context, userID, filename string, data []byte, visionContext string, progress ProgressFunc) (Result, error) {
	report(progress, 10, "reading and parsing file")
	text, err := Parse(filename, data)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: parse %s: %w", filename, err)
	}

	chunks := ChunkText(text, chunkSizeOrDefault(p.cfg.ChunkSize), chunkOverlapOrDefault(p.cfg.ChunkOverlap))
	result := Result{ChunksTotal: len(chunks)}
	if len(chunks) == 0 {
		report(progress, 100, "no content to ingest")
		return result, nil
	}

	bulkResults, err := p.mapExtract(ctx, chunks, visionContext, progress)
	if err != nil {
		return result, err
	}
	result.ChunksExtracted = len(bulkResults)

	report(progress, 60, "consolidating extracted entities")
	nodes, edges := p.reduce(ctx, bulkResults, visionContext, userID)
	result.NodesStaged = len(nodes)
	result.EdgesStaged = len(edges)

	report(progress, 80, "embedding chunk text")
	p.embedChunks(ctx, userID, filename, chunks)
	p.embedGoalsAndProjects(ctx, nodes)

	report(progress, 90, fmt.Sprintf("writing %d nodes, %d edges to staging", len(nodes), len(edges)))
	if err := p.graph.AddToStaging(ctx, userID, nodes, edges, filename); err != nil {
		return result, fmt.Errorf("ingest: add to staging: %w", err)
	}

	report(progress, 100, "ingestion complete")
	return result, nil
}

func chunkSizeOrDefault(size int) int {
	if size <= 0 {
		return 4000
	}
	return size
}

func chunkOverlapOrDefault(overlap int) int {
	if overlap <= 0 {
		return 400
	}
	return overlap
}

func report(progress ProgressFunc, percent int, message string) {
	if progress != nil {
		progress(percent, message)
	}
}

// mapExtract runs chunk-level extraction in batches of
// cfg.ConcurrentExtractors, pausing cfg.BatchPause between batches.
// Uninformative chunks (attention filter) are skipped without consuming a
// model call. A chunk that fails extraction is logged and skipped; the
// batch continues.
func (p *Pipeline) mapExtract(ctx context.Context, chunks []string, visionContext string, progress ProgressFunc) ([]perception.BulkExtractionResult, error) {
	batchSize := p.cfg.ConcurrentExtractors
	if batchSize <= 0 {
		batchSize = 10
	}

	var results []perception.BulkExtractionResult
	total := len(chunks)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("ingest: cancelled: %w", err)
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		eg, egCtx := errgroup.WithContext(ctx)
		batchResults := make([]*perception.BulkExtractionResult, len(batch))
		for i, chunk := range batch {
			i, chunk := i, chunk
			eg.Go(func() error {
				if !memoryservice.PassesAttentionFilter(chunk, p.attention) {
					p.metrics.RecordChunkProcessed(egCtx, "skipped")
					return nil
				}
				res, err := p.perception.ExtractStructuredMemoryLargeModel(egCtx, chunk, visionContext)
				if err != nil {
					p.logger.Warn("ingest: chunk extraction failed, skipping", "error", err, "chunk_index", start+i)
					p.metrics.RecordChunkProcessed(egCtx, "failed")
					return nil
				}
				batchResults[i] = &res
				p.metrics.RecordChunkProcessed(egCtx, "ok")
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return results, fmt.Errorf("ingest: batch extraction: %w", err)
		}
		for _, r := range batchResults {
			if r != nil {
				results = append(results, *r)
			}
		}

		report(progress, 30+int(float64(end)/float64(total)*30), fmt.Sprintf("extracted chunk %d/%d", end, total))

		if end < total && p.cfg.BatchPause > 0 {
			select {
			case <-time.After(p.cfg.BatchPause):
			case <-ctx.Done():
				return results, fmt.Errorf("ingest: cancelled: %w", ctx.Err())
			}
		}
	}
	return results, nil
}

// reduce pools every chunk's nodes and edges, deduplicates node summaries by
// (name, type), and asks the perception layer to consolidate them into a
// standard node set plus a name→standard-name mapping. On consolidation
// failure it falls back to simple name-based dedup, matching the
// original pipeline's failure semantics.
func (p *Pipeline) reduce(ctx context.Context, bulk []perception.BulkExtractionResult, visionContext, userID string) ([]graphstore.Node, []graphstore.Edge) {
	var allNodes []perception.BulkNode
	var allEdges []perception.BulkEdge
	for _, r := range bulk {
		allNodes = append(allNodes, r.Nodes...)
		allEdges = append(allEdges, r.Edges...)
	}
	if len(allNodes) == 0 {
		return nil, nil
	}

	summaries, seen := []perception.NodeSummary{}, map[string]struct{}{}
	for _, n := range allNodes {
		key := n.Name + "|" + n.Type
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		summaries = append(summaries, perception.NodeSummary{Name: n.Name, Type: n.Type, Content: n.Content})
	}

	consolidation, err := p.perception.ConsolidateNodes(ctx, summaries, visionContext)
	if err != nil {
		p.logger.Warn("ingest: consolidation failed, falling back to naive dedup", "error", err)
		return naiveDedup(allNodes, allEdges, userID)
	}

	nameToID := make(map[string]string, len(consolidation.StandardNodes))
	var nodes []graphstore.Node
	for _, sn := range consolidation.StandardNodes {
		id := resolveStandardNodeID(sn.Name, userID)
		nameToID[sn.Name] = id
		nodes = append(nodes, graphstore.Node{
			ID:             id,
			Type:           graphstore.NodeType(sn.Type),
			Name:           sn.Name,
			Content:        sn.Content,
			Status:         ingestStatus(graphstore.NodeType(sn.Type)),
			AlignmentScore: graphstore.DefaultAlignmentScore(graphstore.NodeType(sn.Type)),
			SourceFile:     "",
		})
	}

	edges, edgeSigs := []graphstore.Edge{}, map[string]struct{}{}
	for _, e := range allEdges {
		srcName := mappedName(consolidation.Mapping, e.Source)
		tgtName := mappedName(consolidation.Mapping, e.Target)
		srcID, srcOK := resolveEdgeEndpointID(srcName, nameToID, userID)
		tgtID, tgtOK := resolveEdgeEndpointID(tgtName, nameToID, userID)
		if !srcOK || !tgtOK || srcID == tgtID {
			continue
		}
		sig := srcID + "-" + e.Relation + "-" + tgtID
		if _, dup := edgeSigs[sig]; dup {
			continue
		}
		edgeSigs[sig] = struct{}{}
		edges = append(edges, graphstore.Edge{
			Source:   srcID,
			Target:   tgtID,
			Relation: graphstore.NormalizeRelation(e.Relation),
			UserID:   userID,
		})
	}

	return nodes, edges
}

func mappedName(mapping map[string]string, name string) string {
	if mapped, ok := mapping[name]; ok {
		return mapped
	}
	return name
}

// resolveEdgeEndpointID resolves an edge endpoint name to a node id. Self
// and Vision aliases always resolve to the canonical nodes, which already
// exist outside the consolidation batch; every other name must appear among
// the consolidated standard nodes or the edge is dropped.
func resolveEdgeEndpointID(name string, nameToID map[string]string, userID string) (string, bool) {
	if _, ok := selfAliases[name]; ok {
		return graphstore.SelfID(userID), true
	}
	if name == "Vision" {
		return graphstore.VisionID(userID), true
	}
	id, ok := nameToID[name]
	return id, ok
}

func resolveStandardNodeID(name, userID string) string {
	if _, ok := selfAliases[name]; ok {
		return graphstore.SelfID(userID)
	}
	if name == "Vision" {
		return graphstore.VisionID(userID)
	}
	return graphstore.StableID(name)
}

func ingestStatus(t graphstore.NodeType) graphstore.NodeStatus {
	if t == graphstore.TypeTask || t == graphstore.TypePerson {
		return graphstore.StatusPending
	}
	return graphstore.StatusConfirmed
}

// naiveDedup is the fallback path when consolidation fails: it keeps one
// node per distinct name (the last one seen), gives each the same id the
// consolidated path would (the canonical id for Self/Vision aliases,
// otherwise its stable id), and drops edges whose endpoints do not both
// resolve to a kept node.
func naiveDedup(allNodes []perception.BulkNode, allEdges []perception.BulkEdge, userID string) ([]graphstore.Node, []graphstore.Edge) {
	unique := make(map[string]perception.BulkNode, len(allNodes))
	for _, n := range allNodes {
		unique[n.Name] = n
	}

	nameToID := make(map[string]string, len(unique))
	var nodes []graphstore.Node
	for name, n := range unique {
		id := resolveStandardNodeID(name, userID)
		if id == "" {
			id = "con_" + uuid.NewString()[:16]
		}
		nameToID[name] = id
		nodes = append(nodes, graphstore.Node{
			ID:             id,
			Type:           graphstore.NodeType(n.Type),
			Name:           n.Name,
			Content:        n.Content,
			Status:         ingestStatus(graphstore.NodeType(n.Type)),
			AlignmentScore: graphstore.DefaultAlignmentScore(graphstore.NodeType(n.Type)),
		})
	}

	var edges []graphstore.Edge
	for _, e := range allEdges {
		srcID, srcOK := resolveEdgeEndpointID(e.Source, nameToID, userID)
		tgtID, tgtOK := resolveEdgeEndpointID(e.Target, nameToID, userID)
		if !srcOK || !tgtOK || srcID == tgtID {
			continue
		}
		edges = append(edges, graphstore.Edge{
			Source:   srcID,
			Target:   tgtID,
			Relation: graphstore.NormalizeRelation(e.Relation),
			UserID:   userID,
		})
	}
	return nodes, edges
}

// embedChunks vectorizes the raw chunk text for semantic recall. Failures
// are logged, not fatal: EmbedBatch itself already degrades to zero vectors
// on a backend error, so documents are still written with a placeholder
// embedding rather than dropped.
func (p *Pipeline) embedChunks(ctx context.Context, userID, filename string, chunks []string) {
	vectors := p.perception.EmbedBatch(ctx, chunks)
	ids := make([]string, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	for i := range chunks {
		ids[i] = fmt.Sprintf("file_%s_%d", filename, i)
		metadatas[i] = map[string]any{"user_id": userID, "type": "file", "source_file": filename}
	}
	if err := p.vectors.AddDocuments(ctx, chunks, metadatas, ids, vectors); err != nil {
		p.logger.Error("ingest: write chunk document vectors failed", "error", err, "file", filename)
	}
}

// embedGoalsAndProjects vectorizes the Goal and Project nodes consolidation
// produced, tagging each vector with its node id so retrieval's concept
// recall can surface it directly, mirroring the concept-vector step
// [memoryservice.Service.ProcessChatInteraction] runs for confirmed chat
// entities. Staging nodes aren't confirmed yet, but their text is already
// the best account of the goal/project available, so it's worth indexing
// immediately rather than waiting on review.
func (p *Pipeline) embedGoalsAndProjects(ctx context.Context, nodes []graphstore.Node) {
	for _, n := range nodes {
		if n.Type != graphstore.TypeGoal && n.Type != graphstore.TypeProject {
			continue
		}
		text := n.Name
		if n.Content != "" {
			text = n.Name + "\n" + n.Content
		}
		vec := p.perception.EmbedBatch(ctx, []string{text})
		if len(vec) != 1 {
			continue
		}
		if err := p.vectors.AddConcept(ctx, n.ID, n.Name, vec[0]); err != nil {
			p.logger.Error("ingest: write goal/project concept vector failed", "error", err, "node_id", n.ID)
		}
	}
}
