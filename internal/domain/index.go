package domain

import "time"

// EntryMeta is the metadata copy stored next to each vector so retrieval can
// reconstruct the message without a round trip to the message store.
type EntryMeta struct {
	SenderID      string
	Sender        string
	Text          string
	Timestamp     string
	CorpusVersion uint64
}

// IndexEntry is one (id, vector, metadata) triple held by a vector store.
type IndexEntry struct {
	ID     string
	Vector []float32
	Meta   EntryMeta
}

// SearchHit is one ranked result from a vector store search.
type SearchHit struct {
	ID    string
	Score float32
	Meta  EntryMeta
}

// Message reconstructs the corpus message from the hit's metadata copy.
func (h SearchHit) Message() Message {
	return Message{
		ID:        h.ID,
		SenderID:  h.Meta.SenderID,
		Sender:    h.Meta.Sender,
		Text:      h.Meta.Text,
		Timestamp: h.Meta.Timestamp,
	}
}

// IndexState is the lifecycle of the vector index.
// Empty -> Building -> Ready, and Ready -> Building on refresh.
type IndexState int32

const (
	IndexEmpty IndexState = iota
	IndexBuilding
	IndexReady
)

func (s IndexState) String() string {
	switch s {
	case IndexEmpty:
		return "empty"
	case IndexBuilding:
		return "building"
	case IndexReady:
		return "ready"
	default:
		return "unknown"
	}
}

// SkippedMessage records a message the builder could not index.
type SkippedMessage struct {
	ID     string
	Reason string
}

// BuildSummary is the observable outcome of one index build. A build with a
// non-empty Skipped list still counts as successful; callers inspect the list
// to surface a partial-build warning.
type BuildSummary struct {
	Version     uint64
	Total       int
	Indexed     int
	Skipped     []SkippedMessage
	Duration    time.Duration
	CompletedAt time.Time
}
