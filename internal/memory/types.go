package memory

import (
	"errors"
	"strings"
	"time"
)

// ErrStorageUnavailable indicates a backing-store I/O fault. Callers
// treat it as non-fatal for generation (degrade to empty history) but
// must not silently drop final-answer writes.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Speaker identifies who produced a conversation turn.
type Speaker string

// Speaker values.
const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

// Namespace is the logical partition key isolating conversation and
// vector data by subject, model, user, and optionally session.
type Namespace struct {
	Subject string
	Model   string
	User    string
	Session string // optional
}

// Key renders the namespace as a stable partition string.
func (n Namespace) Key() string {
	parts := []string{n.Subject, n.Model, n.User}
	if n.Session != "" {
		parts = append(parts, n.Session)
	}
	return strings.Join(parts, ":")
}

// DocumentNamespace returns the per-document passage partition.
func DocumentNamespace(subject string) Namespace {
	return Namespace{Subject: "doc", Model: subject, User: "-"}
}

// KnowledgeNamespace returns the global knowledge-base partition.
func KnowledgeNamespace() Namespace {
	return Namespace{Subject: "kb", Model: "global", User: "-"}
}

// ChatNamespace returns the per-user general-chat history partition.
func ChatNamespace(user string) Namespace {
	return Namespace{Subject: "chat", Model: "general", User: user}
}

// Turn is one immutable conversation entry. Seq is the logical
// timestamp assigned at append time, monotonic within a namespace.
type Turn struct {
	Speaker   Speaker
	Text      string
	Seq       int64
	Timestamp time.Time
}

// MetadataKind tags which producer created a vector record, so
// downstream fusion logic can switch exhaustively instead of probing an
// open dictionary.
type MetadataKind string

// Metadata kinds.
const (
	KindDocument  MetadataKind = "document"
	KindKnowledge MetadataKind = "knowledge"
	KindChat      MetadataKind = "chat"
)

// Metadata is the tagged union of known vector-record metadata shapes.
type Metadata struct {
	Kind     MetadataKind `json:"kind"`
	Source   string       `json:"source,omitempty"`
	Title    string       `json:"title,omitempty"`
	Category string       `json:"category,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
}

// Match is one vector search hit.
type Match struct {
	Text       string
	Metadata   Metadata
	Similarity float64
}
