package domain

import (
	"fmt"
	"time"
)

// ContentKind represents the kind of content stored in a knowledge file
type ContentKind string

const (
	ContentKindText ContentKind = "text"
	ContentKindJSON ContentKind = "json"
)

// KnowledgeFile represents a named, versioned source document.
// Files are deactivated when superseded, never hard-deleted while
// chunks reference them.
type KnowledgeFile struct {
	FileKey   string
	FileName  string
	Content   string
	Kind      ContentKind
	Category  string
	Priority  int32
	Active    bool
	Version   int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewKnowledgeFile creates a new KnowledgeFile instance
func NewKnowledgeFile(
	fileKey, fileName, content string,
	kind ContentKind,
	category string,
	priority int32,
	createdAt time.Time,
) *KnowledgeFile {
	return &KnowledgeFile{
		FileKey:   fileKey,
		FileName:  fileName,
		Content:   content,
		Kind:      kind,
		Category:  category,
		Priority:  priority,
		Active:    true,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidateKnowledgeFile validates a KnowledgeFile instance
func ValidateKnowledgeFile(f *KnowledgeFile) error {
	if f == nil {
		return fmt.Errorf("knowledge file cannot be nil")
	}

	if f.FileKey == "" {
		return fmt.Errorf("knowledge file FileKey is required")
	}

	if f.FileName == "" {
		return fmt.Errorf("knowledge file FileName is required")
	}

	if f.Content == "" {
		return fmt.Errorf("knowledge file Content is required")
	}

	if !isValidContentKind(f.Kind) {
		return fmt.Errorf("knowledge file Kind is invalid: %s", f.Kind)
	}

	if f.Version <= 0 {
		return fmt.Errorf("knowledge file Version must be greater than 0")
	}

	return nil
}

// isValidContentKind checks if a ContentKind is valid
func isValidContentKind(k ContentKind) bool {
	switch k {
	case ContentKindText, ContentKindJSON:
		return true
	}
	return false
}
