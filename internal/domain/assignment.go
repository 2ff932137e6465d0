package domain

// KnowledgeAssignment maps a consumer ("function name") to one knowledge
// file with a load order. Assignments are owned by admin tooling and are
// read-only from the pipeline's perspective.
type KnowledgeAssignment struct {
	FunctionName string
	FileKey      string
	LoadOrder    int32
	Required     bool
}

// AssignedFile pairs an assignment row with its resolved, active file.
type AssignedFile struct {
	LoadOrder int32
	Required  bool
	File      KnowledgeFile
}
