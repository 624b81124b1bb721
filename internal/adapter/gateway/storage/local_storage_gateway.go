package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// LocalStorageGateway implements StorageGateway on a filesystem.
// Directory structure: <baseDir>/artifacts/<flowID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type LocalStorageGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalStorageGateway creates a storage gateway rooted at baseDir on
// the OS filesystem
func NewLocalStorageGateway(baseDir string) (*LocalStorageGateway, error) {
	return NewLocalStorageGatewayWithFs(afero.NewOsFs(), baseDir)
}

// NewLocalStorageGatewayWithFs creates a storage gateway on the given
// filesystem; tests pass an in-memory one
func NewLocalStorageGatewayWithFs(fs afero.Fs, baseDir string) (*LocalStorageGateway, error) {
	artifactsDir := filepath.Join(baseDir, "artifacts")
	if err := fs.MkdirAll(artifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}

	return &LocalStorageGateway{fs: fs, baseDir: baseDir}, nil
}

// SaveArtifact writes the content and a metadata sidecar under the flow's
// artifact directory
func (g *LocalStorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	if req.FlowID == "" {
		return nil, fmt.Errorf("artifact requires a flow ID")
	}

	artifactID := generateArtifactID(req.Content)

	artifactDir := filepath.Join(g.baseDir, "artifacts", req.FlowID, artifactID)
	if err := g.fs.MkdirAll(artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	contentPath := filepath.Join(artifactDir, "content")
	if err := afero.WriteFile(g.fs, contentPath, req.Content, 0644); err != nil {
		return nil, fmt.Errorf("write artifact content: %w", err)
	}

	metadata := output.ArtifactMetadata{
		ID:          artifactID,
		FlowID:      req.FlowID,
		Type:        req.ArtifactType,
		StoragePath: contentPath,
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now(),
		Metadata:    req.Metadata,
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	metadataPath := filepath.Join(artifactDir, "metadata.json")
	if err := afero.WriteFile(g.fs, metadataPath, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact retrieves an artifact by ID, searching across flows
func (g *LocalStorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	artifactsDir := filepath.Join(g.baseDir, "artifacts")

	var foundDir string
	err := afero.Walk(g.fs, artifactsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == artifactID {
			foundDir = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search artifact: %w", err)
	}
	if foundDir == "" {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	metadataJSON, err := afero.ReadFile(g.fs, filepath.Join(foundDir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	content, err := afero.ReadFile(g.fs, filepath.Join(foundDir, "content"))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return &output.Artifact{
		ID:       artifactID,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// ListArtifacts lists artifact metadata for a given flow
func (g *LocalStorageGateway) ListArtifacts(ctx context.Context, flowID string) ([]*output.ArtifactMetadata, error) {
	flowDir := filepath.Join(g.baseDir, "artifacts", flowID)

	exists, err := afero.DirExists(g.fs, flowDir)
	if err != nil {
		return nil, fmt.Errorf("check flow artifacts directory: %w", err)
	}
	if !exists {
		return []*output.ArtifactMetadata{}, nil
	}

	entries, err := afero.ReadDir(g.fs, flowDir)
	if err != nil {
		return nil, fmt.Errorf("read flow artifacts directory: %w", err)
	}

	var metadataList []*output.ArtifactMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metadataJSON, err := afero.ReadFile(g.fs, filepath.Join(flowDir, entry.Name(), "metadata.json"))
		if err != nil {
			// Skip artifacts with missing metadata
			continue
		}
		var metadata output.ArtifactMetadata
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			continue
		}
		metadataList = append(metadataList, &metadata)
	}

	return metadataList, nil
}

// DeleteArtifacts removes every artifact stored for a flow. Called when
// stale flows are expired.
func (g *LocalStorageGateway) DeleteArtifacts(ctx context.Context, flowID string) error {
	flowDir := filepath.Join(g.baseDir, "artifacts", flowID)
	if err := g.fs.RemoveAll(flowDir); err != nil {
		return fmt.Errorf("delete flow artifacts: %w", err)
	}
	return nil
}

// generateArtifactID derives an ID from the content hash plus a
// timestamp so identical payloads saved twice stay distinct
func generateArtifactID(content []byte) string {
	hash := sha256.Sum256(content)
	return fmt.Sprintf("%s-%d", hex.EncodeToString(hash[:8]), time.Now().UnixNano())
}
