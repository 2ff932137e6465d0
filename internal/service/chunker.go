package service

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// ChunkConfig controls how source documents are split into chunks.
type ChunkConfig struct {
	// MaxTokens bounds chunk size when a token encoder is available.
	MaxTokens int
	// MaxChars is the hard fallback bound when token counting is
	// unavailable or a single block exceeds it.
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokens: 300,
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   150,
		MaxChunks: 200,
	}
}

// Chunker splits knowledge files into ordered chunks with stable identity.
// Chunking is a pure function of the file content: calling Chunk twice on
// unchanged content yields byte-identical chunk ids and content, and it
// never touches the embedding capability.
type Chunker struct {
	cfg ChunkConfig
	enc *tiktoken.Tiktoken
}

// NewChunker creates a Chunker with a cl100k_base token encoder.
// Falls back to character counting if the encoding cannot be loaded.
func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Chunker{cfg: cfg, enc: enc}
}

// Chunk splits a knowledge file into its ordered chunks.
func (c *Chunker) Chunk(file *domain.KnowledgeFile) ([]domain.Chunk, error) {
	if err := domain.ValidateKnowledgeFile(file); err != nil {
		return nil, err
	}

	var pieces []chunkPiece
	switch file.Kind {
	case domain.ContentKindJSON:
		pieces = c.chunkStructured(file)
	default:
		pieces = c.chunkText(file)
	}

	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, p := range pieces {
		category := p.category
		if category == "" {
			category = file.Category
		}
		chunks = append(chunks, domain.Chunk{
			ID:       domain.ChunkID(file.FileKey, i),
			FileKey:  file.FileKey,
			Category: category,
			Section:  p.section,
			Content:  p.content,
		})
	}
	return chunks, nil
}

type chunkPiece struct {
	content  string
	section  string
	category string
}

// chunkText splits plain text on paragraph boundaries, carrying the most
// recent markdown heading as the section label, and hard-splits any block
// that alone exceeds the size bound.
func (c *Chunker) chunkText(file *domain.KnowledgeFile) []chunkPiece {
	blocks := splitBlocks(file.Content)
	if len(blocks) == 0 {
		return nil
	}

	var pieces []chunkPiece
	var window []string
	windowSection := blocks[0].section
	windowSize := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		pieces = append(pieces, chunkPiece{
			content: strings.Join(window, "\n\n"),
			section: windowSection,
		})
		window = nil
		windowSize = 0
	}

	for _, b := range blocks {
		if c.cfg.MaxChunks > 0 && len(pieces) >= c.cfg.MaxChunks {
			break
		}

		size := c.size(b.text)
		if size > c.sizeLimit() {
			// Oversized block: emit what we have, then hard-split it.
			flush()
			for _, part := range c.hardSplit(b.text) {
				pieces = append(pieces, chunkPiece{content: part, section: b.section})
			}
			windowSection = b.section
			continue
		}

		if windowSize > 0 && windowSize+size > c.sizeLimit() {
			flush()
			windowSection = b.section
		}
		if len(window) == 0 {
			windowSection = b.section
		}
		window = append(window, b.text)
		windowSize += size
	}
	flush()

	return pieces
}

// chunkStructured treats JSON content as an opaque payload. Payloads under
// the size limit stay whole; larger top-level arrays yield one chunk per
// record, tagged with the record's own type field. No business semantics
// are parsed out of the payload.
func (c *Chunker) chunkStructured(file *domain.KnowledgeFile) []chunkPiece {
	content := strings.TrimSpace(file.Content)
	if c.size(content) <= c.sizeLimit() {
		return []chunkPiece{{content: content}}
	}

	var records []json.RawMessage
	if err := json.Unmarshal([]byte(content), &records); err != nil || len(records) == 0 {
		// Not a top-level array: keep the payload whole.
		return []chunkPiece{{content: content}}
	}

	pieces := make([]chunkPiece, 0, len(records))
	for _, rec := range records {
		if c.cfg.MaxChunks > 0 && len(pieces) >= c.cfg.MaxChunks {
			break
		}
		pieces = append(pieces, chunkPiece{
			content:  string(rec),
			category: recordType(rec),
		})
	}
	return pieces
}

// recordType extracts the declared type tag of a structured record, if any.
func recordType(rec json.RawMessage) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rec, &envelope); err != nil {
		return ""
	}
	return strings.TrimSpace(envelope.Type)
}

type textBlock struct {
	text    string
	section string
}

// splitBlocks splits content on blank lines and tracks the current
// markdown heading as the section label for following blocks.
func splitBlocks(content string) []textBlock {
	var blocks []textBlock
	section := ""
	for _, raw := range strings.Split(content, "\n\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		if heading, ok := leadingHeading(text); ok {
			section = heading
		}
		blocks = append(blocks, textBlock{text: text, section: section})
	}
	return blocks
}

// leadingHeading returns the heading text if the block starts with a
// markdown heading line.
func leadingHeading(block string) (string, bool) {
	line := block
	if idx := strings.IndexByte(block, '\n'); idx >= 0 {
		line = block[:idx]
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(line, "# ")), true
}

// size measures a block in tokens when the encoder is available,
// characters otherwise.
func (c *Chunker) size(text string) int {
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len([]rune(text))
}

func (c *Chunker) sizeLimit() int {
	if c.enc != nil && c.cfg.MaxTokens > 0 {
		return c.cfg.MaxTokens
	}
	return c.cfg.MaxChars
}

// hardSplit cuts a single oversized block on a rune window, preferring
// whitespace boundaries and overlapping windows so no sentence is lost
// across a cut.
func (c *Chunker) hardSplit(text string) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	if len(runes) <= c.cfg.MaxChars {
		return []string{clean}
	}

	parts := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		end := start + c.cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + c.cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			parts = append(parts, part)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if c.cfg.Overlap > 0 && end-start > c.cfg.Overlap {
			nextStart = end - c.cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return parts
}
