package models

// EventType classifies a filesystem change carried by an analysis job.
type EventType string

const (
	EventCreated  EventType = "CREATED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// AnalysisJob is the message published to a per-language analysis queue.
// FilePath is repository-relative.
type AnalysisJob struct {
	FilePath  string    `json:"file_path"`
	EventType EventType `json:"event_type"`
	ID        string    `json:"id,omitempty"`
}

// ScanTrigger requests a full-repository scan.
type ScanTrigger struct {
	Action       string `json:"action"` // "full_scan"
	RootPath     string `json:"root_path"`
	WipeExisting bool   `json:"wipe_existing,omitempty"`
}

// NodeStub is an analyzer-emitted code entity prior to ingestion.
// The first label is the primary type.
type NodeStub struct {
	GID         string         `json:"gid"`
	CanonicalID string         `json:"canonical_id"`
	Name        string         `json:"name"`
	FilePath    string         `json:"file_path"`
	Language    string         `json:"language"`
	Labels      []string       `json:"labels"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// RelStub is an analyzer-emitted edge prior to ingestion. The target is
// addressed by canonical id because the target node may not exist yet.
type RelStub struct {
	SourceGID         string         `json:"source_gid"`
	TargetCanonicalID string         `json:"target_canonical_id"`
	Type              string         `json:"type"`
	Properties        map[string]any `json:"properties,omitempty"`
}

// RelDeletion identifies an edge (and any matching pending placeholder)
// to remove.
type RelDeletion struct {
	SourceGID         string `json:"source_gid"`
	TargetCanonicalID string `json:"target_canonical_id"`
	Type              string `json:"type,omitempty"`
}

// AnalyzerResult is the full output of analyzing one file, published to
// the results queue. A non-empty Error means the file failed to parse;
// the job itself still succeeded.
type AnalyzerResult struct {
	FilePath             string        `json:"file_path"`
	Language             string        `json:"language"`
	Analyzer             string        `json:"analyzer,omitempty"`
	Error                string        `json:"error,omitempty"`
	NodesUpserted        []NodeStub    `json:"nodes_upserted"`
	RelationshipsUpserted []RelStub    `json:"relationships_upserted"`
	NodesDeleted         []string      `json:"nodes_deleted,omitempty"`
	RelationshipsDeleted []RelDeletion `json:"relationships_deleted,omitempty"`
}
