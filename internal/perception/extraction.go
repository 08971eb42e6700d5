package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zenzeng/endgameos/pkg/provider/llm"
	"github.com/zenzeng/endgameos/pkg/types"
)

// completionRequest builds a single-shot, low-temperature completion
// request carrying prompt as the sole user message. Both extraction
// methods are single-shot JSON-producing prompts with no tool calling.
func completionRequest(prompt string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	}
}

// ExtractStructuredMemory prompts the extraction backend to resolve text
// into entities and relations positioned against the five-tier strategic
// graph, centered on the Self node identified by userID.
//
// The prompt enforces subjectivity: first-person mentions ("I", "we") must
// resolve to an entity named userID with type Self. Post-processing coerces
// any entity whose name equals userID to type Self regardless of what the
// model returned, since no amount of prompting fully prevents a model from
// drifting to "User" or "Me" as an alias.
func (l *Layer) ExtractStructuredMemory(ctx context.Context, text, userID, strategicContext string) (ExtractionResult, error) {
	empty := ExtractionResult{Entities: []ExtractedEntity{}, Relations: []ExtractedRelation{}}

	prompt := extractionPrompt(userID, strategicContext, text)
	resp, err := l.extractor.Complete(ctx, completionRequest(prompt))
	if err != nil {
		return empty, fmt.Errorf("perception: extract structured memory: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return empty, nil
	}

	var raw struct {
		Entities  []ExtractedEntity   `json:"entities"`
		Relations []ExtractedRelation `json:"relations"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &raw); err != nil {
		return empty, fmt.Errorf("perception: parse extraction response: %w", err)
	}

	for i := range raw.Entities {
		if raw.Entities[i].Name == userID {
			raw.Entities[i].Type = "Self"
		}
	}
	if raw.Entities == nil {
		raw.Entities = []ExtractedEntity{}
	}
	if raw.Relations == nil {
		raw.Relations = []ExtractedRelation{}
	}
	return ExtractionResult{Entities: raw.Entities, Relations: raw.Relations}, nil
}

func extractionPrompt(userID, strategicContext, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the perception center of a strategic memory graph.\n")
	fmt.Fprintf(&b, "Resolve knowledge from the text below into the five-tier graph centered on the Self node %q.\n\n", userID)
	b.WriteString("Subjectivity rule: first-person mentions (\"I\", \"we\", \"my\") MUST resolve to an entity named ")
	fmt.Fprintf(&b, "%q with type \"Self\". Never invent a \"User\" or \"Me\" alias.\n\n", userID)
	b.WriteString("Node types: Vision (5-year end state), Goal (strategic objective), Project (execution vehicle), ")
	b.WriteString("Task (atomic action), Person (external contact — extract energy_impact from -5 to +5 and ")
	b.WriteString("alignment_score from 0.0 to 1.0), Concept (belief or idea).\n\n")
	b.WriteString("Relations: OWNS (Self->Vision), DECOMPOSES_TO (Vision->Goal), ACHIEVED_BY (Goal->Project), ")
	b.WriteString("CONSISTS_OF (Project->Task), KNOWS (Self->Person), SUPPORTS (Person->Project), ")
	b.WriteString("INFLUENCES (Person->Self).\n\n")
	if strategicContext != "" {
		fmt.Fprintf(&b, "Existing strategic context, prefer attaching new nodes under these:\n%s\n\n", strategicContext)
	}
	b.WriteString(`Respond with JSON only: {"entities":[{"name","type","content","status","energy_impact","alignment_score","dossier"}],"relations":[{"source","relation","target"}]}` + "\n\n")
	fmt.Fprintf(&b, "Text:\n%s\n", text)
	return b.String()
}

// ExtractStructuredMemoryLargeModel is the bulk-ingestion counterpart of
// [Layer.ExtractStructuredMemory]: a higher-throughput prompt over a chunk
// of an uploaded artifact, directed against the user's vision rather than
// the full strategic context, returning caller-scoped node ids rather than
// names to resolve.
func (l *Layer) ExtractStructuredMemoryLargeModel(ctx context.Context, text, visionContext string) (BulkExtractionResult, error) {
	empty := BulkExtractionResult{Nodes: []BulkNode{}, Edges: []BulkEdge{}}

	prompt := bulkExtractionPrompt(visionContext, text)
	resp, err := l.extractor.Complete(ctx, completionRequest(prompt))
	if err != nil {
		return empty, fmt.Errorf("perception: bulk extract structured memory: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return empty, nil
	}

	var result BulkExtractionResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &result); err != nil {
		return empty, fmt.Errorf("perception: parse bulk extraction response: %w", err)
	}
	if result.Nodes == nil {
		result.Nodes = []BulkNode{}
	}
	if result.Edges == nil {
		result.Edges = []BulkEdge{}
	}
	return result, nil
}

func bulkExtractionPrompt(visionContext, text string) string {
	var b strings.Builder
	b.WriteString("You are a data structuring engine, not a chatbot. Given the user's end-game vision, ")
	b.WriteString("restructure the text block below into JSON. Keep only Vision, Goal, Project, Task, Person. ")
	b.WriteString("Discard small talk, unrelated concepts, and transient information.\n\n")
	fmt.Fprintf(&b, "Vision context:\n%s\n\n", visionContext)
	b.WriteString(`Respond with JSON only: {"nodes":[{"id","type","name","content"}],"edges":[{"source","target","relation"}]}` + "\n\n")
	fmt.Fprintf(&b, "Text block:\n%s\n", text)
	return b.String()
}

// extractJSON strips a markdown code fence around a JSON blob, if present.
// Models frequently wrap JSON responses in ```json ... ``` despite being
// asked for a bare JSON object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
