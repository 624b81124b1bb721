package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// MockStorageGateway is an in-memory StorageGateway for tests
type MockStorageGateway struct {
	mu        sync.RWMutex
	artifacts map[string]*output.Artifact
	failSave  error
	nextID    int
}

// NewMockStorageGateway creates a new mock storage gateway
func NewMockStorageGateway() *MockStorageGateway {
	return &MockStorageGateway{
		artifacts: make(map[string]*output.Artifact),
		nextID:    1,
	}
}

// FailSaves makes every subsequent SaveArtifact return err
func (g *MockStorageGateway) FailSaves(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failSave = err
}

// SaveArtifact stores an artifact in memory
func (g *MockStorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failSave != nil {
		return nil, g.failSave
	}

	artifactID := fmt.Sprintf("mock-artifact-%d", g.nextID)
	g.nextID++

	artifact := &output.Artifact{
		ID:      artifactID,
		Content: req.Content,
		Metadata: output.ArtifactMetadata{
			ID:          artifactID,
			FlowID:      req.FlowID,
			Type:        req.ArtifactType,
			StoragePath: "mock://artifacts/" + artifactID,
			ContentType: req.ContentType,
			Size:        int64(len(req.Content)),
			UploadedAt:  time.Now(),
			Metadata:    req.Metadata,
		},
	}
	g.artifacts[artifactID] = artifact

	return &artifact.Metadata, nil
}

// LoadArtifact retrieves an artifact from mock storage
func (g *MockStorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	artifact, exists := g.artifacts[artifactID]
	if !exists {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	return artifact, nil
}

// ListArtifacts lists stored artifacts for a flow
func (g *MockStorageGateway) ListArtifacts(ctx context.Context, flowID string) ([]*output.ArtifactMetadata, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var metadataList []*output.ArtifactMetadata
	for _, artifact := range g.artifacts {
		if artifact.Metadata.FlowID == flowID {
			metadata := artifact.Metadata
			metadataList = append(metadataList, &metadata)
		}
	}
	return metadataList, nil
}

// DeleteArtifacts removes every artifact stored for a flow
func (g *MockStorageGateway) DeleteArtifacts(ctx context.Context, flowID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, artifact := range g.artifacts {
		if artifact.Metadata.FlowID == flowID {
			delete(g.artifacts, id)
		}
	}
	return nil
}

// Count returns the number of stored artifacts
func (g *MockStorageGateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.artifacts)
}
