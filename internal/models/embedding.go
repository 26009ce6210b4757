package models

import "fmt"

// Document is one uploaded file as handed over by the caller.
type Document struct {
	Name    string
	Content []byte
}

// Chunk represents a contiguous piece of the extracted text
type Chunk struct {
	Index   int
	Content string
}

// ChunkEmbedding pairs a chunk with its vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// SearchResult is a stored chunk and its cosine distance to the query.
type SearchResult struct {
	Chunk
	Distance float64
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func (t Turn) String() string {
	return fmt.Sprintf("%s: %s", t.Role, t.Content)
}
