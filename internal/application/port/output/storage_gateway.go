package output

import (
	"context"
	"time"
)

// StorageGateway is the interface for external storage operations
// Supports both local filesystem and cloud storage (S3)
type StorageGateway interface {
	// SaveArtifact persists an artifact to storage
	SaveArtifact(ctx context.Context, req SaveArtifactRequest) (*ArtifactMetadata, error)

	// LoadArtifact retrieves an artifact from storage
	LoadArtifact(ctx context.Context, artifactID string) (*Artifact, error)

	// ListArtifacts lists artifacts for a given flow
	ListArtifacts(ctx context.Context, flowID string) ([]*ArtifactMetadata, error)

	// DeleteArtifacts removes every artifact stored for a flow
	DeleteArtifacts(ctx context.Context, flowID string) error
}

// SaveArtifactRequest represents a request to save an artifact
type SaveArtifactRequest struct {
	FlowID       string            // Associated flow ID
	ArtifactType ArtifactType      // Type of artifact
	Content      []byte            // Artifact content
	Metadata     map[string]string // Additional metadata
	ContentType  string            // MIME type (optional)
}

// ArtifactType represents the type of artifact
type ArtifactType string

const (
	ArtifactTypeImportSnapshot ArtifactType = "import_snapshot" // Raw import file as received
	ArtifactTypeReport         ArtifactType = "report"          // Completion report
	ArtifactTypeLog            ArtifactType = "log"             // Execution logs
)

// Artifact represents a stored artifact
type Artifact struct {
	ID       string           // Unique artifact ID
	Content  []byte           // Artifact content
	Metadata ArtifactMetadata // Artifact metadata
}

// ArtifactMetadata contains information about an artifact
type ArtifactMetadata struct {
	ID          string            // Unique artifact ID
	FlowID      string            // Associated flow ID
	Type        ArtifactType      // Artifact type
	StoragePath string            // Storage path (e.g., s3://bucket/key)
	ContentType string            // MIME type
	Size        int64             // Size in bytes
	UploadedAt  time.Time         // Upload timestamp
	Metadata    map[string]string // Additional metadata
}
