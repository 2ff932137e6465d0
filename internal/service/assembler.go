package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
)

// AssignmentRepositoryInterface defines the repository interface for function assignments
type AssignmentRepositoryInterface interface {
	Upsert(ctx context.Context, a *domain.KnowledgeAssignment) error
	Delete(ctx context.Context, functionName, fileKey string) error
	ListByFunction(ctx context.Context, functionName string) ([]*domain.KnowledgeAssignment, error)
	ListAssignedFiles(ctx context.Context, functionName string) ([]*domain.AssignedFile, error)
}

// AssemblerFileRepository is the slice of the file repository the assembler needs.
type AssemblerFileRepository interface {
	GetByKey(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error)
}

// ContextService assembles system context for downstream AI functions.
// BuildContext is total: whatever goes wrong, the caller always gets usable
// context containing the mandatory invariants, with Degraded set when the
// full assembly could not be produced.
type ContextService struct {
	assignments AssignmentRepositoryInterface
	files       AssemblerFileRepository
	now         func() time.Time
}

// NewContextService creates a new ContextService instance
func NewContextService(assignments AssignmentRepositoryInterface, files AssemblerFileRepository) *ContextService {
	return &ContextService{assignments: assignments, files: files, now: time.Now}
}

// NewContextServiceWithClock creates a ContextService with a fixed clock (for testing)
func NewContextServiceWithClock(assignments AssignmentRepositoryInterface, files AssemblerFileRepository, now func() time.Time) *ContextService {
	return &ContextService{assignments: assignments, files: files, now: now}
}

// BuildInput represents a context assembly request
type BuildInput struct {
	Function     string
	CustomPrompt string
}

// BuildResult is the assembled context. Degraded marks fallback output; the
// invariants are present either way.
type BuildResult struct {
	Function    string    `json:"function"`
	Text        string    `json:"text"`
	Degraded    bool      `json:"degraded"`
	FileKeys    []string  `json:"file_keys"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BuildContext assembles the context document for a function: invariants
// first, then the function's assigned files in load order, then optional
// custom instructions and the enforcement footer. A function with no
// assignments is misconfigured and gets the fallback.
func (s *ContextService) BuildContext(ctx context.Context, input BuildInput) *BuildResult {
	ctx, span := telemetry.StartSpan(ctx, "ContextService.BuildContext", telemetry.SpanAttributes{
		Function:  input.Function,
		Operation: "build_context",
	})
	defer span.End()

	generatedAt := s.now().UTC()

	assigned, err := s.assignments.ListAssignedFiles(ctx, input.Function)
	if err != nil {
		log.Printf("context assembly for %s: loading assignments: %v", input.Function, err)
		telemetry.CaptureError(ctx, err)
		return s.fallback(input.Function, generatedAt)
	}
	if len(assigned) == 0 {
		log.Printf("context assembly for %s: no knowledge assignments", input.Function)
		return s.fallback(input.Function, generatedAt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Call Kaids Roofing AI System\n\n")
	fmt.Fprintf(&b, "Function: %s\n", input.Function)
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format(time.RFC3339))
	b.WriteString("---\n\n")

	fileKeys := make([]string, 0, len(assigned)+1)

	// The invariants file always leads, whether or not the assignment
	// list mentions it.
	hasInvariants := false
	for _, af := range assigned {
		if af.File.FileKey == domain.InvariantsFileKey {
			hasInvariants = true
			break
		}
	}
	if !hasInvariants {
		invariants, err := s.files.GetByKey(ctx, domain.InvariantsFileKey)
		if err == nil && invariants.Active {
			fmt.Fprintf(&b, "## %s: Core Invariants (Auto-loaded)\n\n", domain.InvariantsFileKey)
			b.WriteString(invariants.Content)
			b.WriteString("\n\n---\n\n")
			fileKeys = append(fileKeys, domain.InvariantsFileKey)
		} else {
			// Without the invariants document the context is incomplete;
			// serve the fallback rather than an unguarded prompt.
			if err != nil {
				log.Printf("context assembly for %s: loading %s: %v", input.Function, domain.InvariantsFileKey, err)
			}
			return s.fallback(input.Function, generatedAt)
		}
	}

	for _, af := range assigned {
		file := af.File
		fmt.Fprintf(&b, "## %s: %s\n\n", file.FileKey, file.FileName)

		if file.Kind == domain.ContentKindJSON {
			fmt.Fprintf(&b, "```json\n%s\n```\n\n", file.Content)
		} else {
			b.WriteString(file.Content)
		}

		b.WriteString("\n\n---\n\n")
		fileKeys = append(fileKeys, file.FileKey)
	}

	if input.CustomPrompt != "" {
		b.WriteString("## Function-Specific Instructions\n\n")
		b.WriteString(input.CustomPrompt)
		b.WriteString("\n\n")
	}

	b.WriteString("\n\n## CRITICAL: Invariant Enforcement\n\n")
	fmt.Fprintf(&b, "You MUST follow ALL invariants from %s in every response:\n", domain.InvariantsFileKey)
	for _, fact := range domain.InvariantFacts() {
		fmt.Fprintf(&b, "- %s: %s\n", fact.Label, fact.Value)
	}
	b.WriteString("\n")

	return &BuildResult{
		Function:    input.Function,
		Text:        b.String(),
		Degraded:    false,
		FileKeys:    fileKeys,
		GeneratedAt: generatedAt,
	}
}

// fallback renders the minimal context from the invariant facts table.
func (s *ContextService) fallback(function string, generatedAt time.Time) *BuildResult {
	var b strings.Builder
	fmt.Fprintf(&b, "# Call Kaids Roofing AI System (Fallback Mode)\n\n")
	fmt.Fprintf(&b, "Function: %s\n", function)
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "## Core Invariants (%s)\n\n", domain.InvariantsFileKey)
	for _, fact := range domain.InvariantFacts() {
		fmt.Fprintf(&b, "- %s: %s\n", fact.Label, fact.Value)
	}
	b.WriteString("\n**WARNING:** Knowledge files failed to load. Using minimal fallback prompt.\n")

	return &BuildResult{
		Function:    function,
		Text:        b.String(),
		Degraded:    true,
		FileKeys:    []string{},
		GeneratedAt: generatedAt,
	}
}

// Assign maps a knowledge file to a function at a position in load order.
func (s *ContextService) Assign(ctx context.Context, a *domain.KnowledgeAssignment) error {
	if a.FunctionName == "" || a.FileKey == "" {
		return fmt.Errorf("assignment requires both function name and file key")
	}
	return s.assignments.Upsert(ctx, a)
}

// Unassign removes a file from a function's load list.
func (s *ContextService) Unassign(ctx context.Context, functionName, fileKey string) error {
	return s.assignments.Delete(ctx, functionName, fileKey)
}

// ListAssignments returns a function's assignments in load order.
func (s *ContextService) ListAssignments(ctx context.Context, functionName string) ([]*domain.KnowledgeAssignment, error) {
	return s.assignments.ListByFunction(ctx, functionName)
}
