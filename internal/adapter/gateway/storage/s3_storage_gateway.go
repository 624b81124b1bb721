package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// S3StorageGateway implements StorageGateway using AWS S3
// Bucket structure: s3://<bucket>/<prefix>/artifacts/<flowID>/<artifactID>/
//   - content: actual artifact content
//   - metadata.json: artifact metadata
type S3StorageGateway struct {
	client     S3API // Use interface for testability
	bucketName string
	prefix     string // Optional prefix for all keys (e.g., "assetflow/prod")
}

// S3Config holds S3 storage gateway configuration
type S3Config struct {
	BucketName string // S3 bucket name
	Prefix     string // Optional key prefix
	Region     string // AWS region (optional, uses default if empty)
}

// NewS3StorageGateway creates a new S3-based storage gateway
func NewS3StorageGateway(cfg S3Config) (*S3StorageGateway, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	return &S3StorageGateway{
		client:     s3.NewFromConfig(awsCfg),
		bucketName: cfg.BucketName,
		prefix:     cfg.Prefix,
	}, nil
}

// NewS3StorageGatewayWithClient creates an S3 gateway with a custom client.
// This is primarily used for testing with mock S3 clients.
func NewS3StorageGatewayWithClient(client S3API, bucketName, prefix string) *S3StorageGateway {
	return &S3StorageGateway{
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
	}
}

// SaveArtifact uploads the content and a metadata sidecar object
func (g *S3StorageGateway) SaveArtifact(ctx context.Context, req output.SaveArtifactRequest) (*output.ArtifactMetadata, error) {
	if req.FlowID == "" {
		return nil, fmt.Errorf("artifact requires a flow ID")
	}

	artifactID := generateArtifactID(req.Content)
	contentKey := g.buildKey("artifacts", req.FlowID, artifactID, "content")

	s3Metadata := map[string]string{
		"artifact-id":   artifactID,
		"flow-id":       req.FlowID,
		"artifact-type": string(req.ArtifactType),
		"uploaded-at":   time.Now().Format(time.RFC3339),
	}
	for k, v := range req.Metadata {
		s3Metadata[k] = v
	}

	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(contentKey),
		Body:        bytes.NewReader(req.Content),
		ContentType: aws.String(req.ContentType),
		Metadata:    s3Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("upload to S3: %w", err)
	}

	metadata := output.ArtifactMetadata{
		ID:          artifactID,
		FlowID:      req.FlowID,
		Type:        req.ArtifactType,
		StoragePath: fmt.Sprintf("s3://%s/%s", g.bucketName, contentKey),
		ContentType: req.ContentType,
		Size:        int64(len(req.Content)),
		UploadedAt:  time.Now(),
		Metadata:    req.Metadata,
	}

	// Metadata lives as its own JSON object so listings can read it
	// without fetching artifact content
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	metadataKey := g.buildKey("artifacts", req.FlowID, artifactID, "metadata.json")
	_, err = g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucketName),
		Key:         aws.String(metadataKey),
		Body:        bytes.NewReader(metadataJSON),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload metadata to S3: %w", err)
	}

	return &metadata, nil
}

// LoadArtifact retrieves an artifact from S3 by ID
func (g *S3StorageGateway) LoadArtifact(ctx context.Context, artifactID string) (*output.Artifact, error) {
	keys, err := g.listKeys(ctx, g.buildKey("artifacts")+"/")
	if err != nil {
		return nil, err
	}

	var metadataKey string
	for _, key := range keys {
		// Pattern: <prefix>/artifacts/<flowID>/<artifactID>/metadata.json
		if strings.Contains(key, "/"+artifactID+"/") && strings.HasSuffix(key, "metadata.json") {
			metadataKey = key
			break
		}
	}
	if metadataKey == "" {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	metadataJSON, err := g.download(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("download metadata from S3: %w", err)
	}
	var metadata output.ArtifactMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	contentKey := strings.TrimSuffix(metadataKey, "metadata.json") + "content"
	content, err := g.download(ctx, contentKey)
	if err != nil {
		return nil, fmt.Errorf("download content from S3: %w", err)
	}

	return &output.Artifact{
		ID:       artifactID,
		Content:  content,
		Metadata: metadata,
	}, nil
}

// ListArtifacts lists artifact metadata for a given flow
func (g *S3StorageGateway) ListArtifacts(ctx context.Context, flowID string) ([]*output.ArtifactMetadata, error) {
	keys, err := g.listKeys(ctx, g.buildKey("artifacts", flowID)+"/")
	if err != nil {
		return nil, err
	}

	var metadataList []*output.ArtifactMetadata
	for _, key := range keys {
		if !strings.HasSuffix(key, "metadata.json") {
			continue
		}

		metadataJSON, err := g.download(ctx, key)
		if err != nil {
			// Skip artifacts with download errors
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

// DeleteArtifacts removes every object stored for a flow. Called when
// stale flows are expired.
func (g *S3StorageGateway) DeleteArtifacts(ctx context.Context, flowID string) error {
	keys, err := g.listKeys(ctx, g.buildKey("artifacts", flowID)+"/")
	if err != nil {
		return err
	}

	for _, key := range keys {
		_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(g.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("delete %s from S3: %w", key, err)
		}
	}
	return nil
}

// listKeys collects all object keys under a prefix, following pagination
func (g *S3StorageGateway) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		listOutput, err := g.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(g.bucketName),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list S3 objects: %w", err)
		}
		for _, obj := range listOutput.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if listOutput.NextContinuationToken == nil {
			return keys, nil
		}
		token = listOutput.NextContinuationToken
	}
}

// download fetches one object's full body
func (g *S3StorageGateway) download(ctx context.Context, key string) ([]byte, error) {
	obj, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// buildKey builds an S3 key with the configured prefix
func (g *S3StorageGateway) buildKey(parts ...string) string {
	if g.prefix != "" {
		parts = append([]string{g.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
