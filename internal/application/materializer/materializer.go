package materializer

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/conflict"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

// Result is the outcome of one materialization pass over a candidate batch
type Result struct {
	Created     []*asset.Asset
	Duplicates  []asset.Candidate
	Conflicting []*conflict.Record
	FailedCount int
}

// ConflictCount returns the number of detected collisions
func (r *Result) ConflictCount() int {
	return len(r.Conflicting)
}

// AllFailed reports whether not a single candidate was created or
// recognized as a pre-existing duplicate
func (r *Result) AllFailed() bool {
	return len(r.Created) == 0 && len(r.Duplicates) == 0 && len(r.Conflicting) == 0 && r.FailedCount > 0
}

// Materializer bulk-checks candidates against existing assets, creates the
// conflict-free subset immediately and emits conflict records for the rest.
// The creation order matters: conflict-free candidates are durably created
// before the phase pauses for conflict resolution, so a resume cannot
// regenerate them as new conflicts.
type Materializer struct {
	assets    repository.AssetRepository
	conflicts repository.ConflictRepository
	logger    app.Logger
}

// NewMaterializer creates a conflict-aware materializer
func NewMaterializer(assets repository.AssetRepository, conflicts repository.ConflictRepository, logger app.Logger) *Materializer {
	if logger == nil {
		logger = app.GetLogger()
	}
	return &Materializer{assets: assets, conflicts: conflicts, logger: logger}
}

// Materialize runs the three-step contract: one bulk lookup per natural-key
// dimension across the whole batch, partition into conflict-free and
// conflicting, create the conflict-free set in this same call. Individual
// creation failures are counted, never allowed to abort the batch. The
// caller performs the single consolidated flow checkpoint afterwards;
// no per-candidate durability writes happen here.
func (m *Materializer) Materialize(ctx context.Context, tenant model.Tenant, flowID model.FlowID, candidates []asset.Candidate) (*Result, error) {
	result := &Result{}
	if len(candidates) == 0 {
		return result, nil
	}

	existing, err := m.bulkLookup(ctx, tenant, candidates)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		collisions := collisionsFor(candidate, existing)

		if len(collisions) == 0 {
			created, err := m.create(ctx, tenant, flowID, candidate)
			if err != nil {
				result.FailedCount++
				m.logger.Warn("asset creation failed for %s: %v", candidate.Name, err)
				continue
			}
			result.Created = append(result.Created, created)
			continue
		}

		if isExactDuplicate(candidate, collisions) {
			result.Duplicates = append(result.Duplicates, candidate)
			continue
		}

		// One record per collision, with full snapshots of both sides
		for _, hit := range collisions {
			record, err := conflict.NewRecord(tenant, flowID, hit.dimension, candidate, hit.existing.Snapshot())
			if err != nil {
				result.FailedCount++
				m.logger.Warn("conflict record for %s: %v", candidate.Name, err)
				continue
			}
			result.Conflicting = append(result.Conflicting, record)
		}
	}

	if len(result.Conflicting) > 0 {
		if err := m.conflicts.SaveAll(ctx, result.Conflicting); err != nil {
			return nil, fmt.Errorf("save conflict records: %w", err)
		}
	}

	return result, nil
}

// collision pairs the dimension that matched with the asset it matched
type collision struct {
	dimension asset.NaturalKeyDimension
	existing  *asset.Asset
}

// bulkLookup issues one query per natural-key dimension covering the whole
// batch and returns an index of normalized value -> existing assets
func (m *Materializer) bulkLookup(ctx context.Context, tenant model.Tenant, candidates []asset.Candidate) (map[asset.NaturalKeyDimension]map[string][]*asset.Asset, error) {
	values := map[asset.NaturalKeyDimension]map[string]bool{
		asset.KeyName:     {},
		asset.KeyHostname: {},
		asset.KeyAddress:  {},
	}
	for _, c := range candidates {
		for dim, v := range c.NaturalKeys() {
			values[dim][v] = true
		}
	}

	index := make(map[asset.NaturalKeyDimension]map[string][]*asset.Asset, len(values))
	for dim, set := range values {
		index[dim] = map[string][]*asset.Asset{}
		if len(set) == 0 {
			continue
		}
		query := repository.NaturalKeyQuery{Dimension: dim}
		for v := range set {
			query.Values = append(query.Values, v)
		}
		matches, err := m.assets.FindByNaturalKeys(ctx, tenant, query)
		if err != nil {
			return nil, fmt.Errorf("bulk lookup on %s: %w", dim, err)
		}
		for _, a := range matches {
			for v := range set {
				if a.MatchesKey(dim, v) {
					index[dim][v] = append(index[dim][v], a)
				}
			}
		}
	}
	return index, nil
}

// collisionsFor returns every existing asset the candidate collides with.
// A match on any single dimension is sufficient; dimensions are OR'ed.
func collisionsFor(c asset.Candidate, index map[asset.NaturalKeyDimension]map[string][]*asset.Asset) []collision {
	var hits []collision
	seen := make(map[string]bool)
	for dim, value := range c.NaturalKeys() {
		for _, existing := range index[dim][value] {
			key := string(dim) + "/" + existing.ID()
			if seen[key] {
				continue
			}
			seen[key] = true
			hits = append(hits, collision{dimension: dim, existing: existing})
		}
	}
	return hits
}

// isExactDuplicate reports whether a single existing asset matches the
// candidate on every non-empty natural key, meaning the candidate is a
// re-import of a known asset rather than a genuine conflict
func isExactDuplicate(c asset.Candidate, hits []collision) bool {
	keys := c.NaturalKeys()

	matchedDims := make(map[string]map[asset.NaturalKeyDimension]bool)
	byID := make(map[string]*asset.Asset)
	for _, hit := range hits {
		if matchedDims[hit.existing.ID()] == nil {
			matchedDims[hit.existing.ID()] = make(map[asset.NaturalKeyDimension]bool)
		}
		matchedDims[hit.existing.ID()][hit.dimension] = true
		byID[hit.existing.ID()] = hit.existing
	}

	for id, dims := range matchedDims {
		allMatch := true
		for dim, value := range keys {
			if !dims[dim] && !byID[id].MatchesKey(dim, value) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

func (m *Materializer) create(ctx context.Context, tenant model.Tenant, flowID model.FlowID, c asset.Candidate) (*asset.Asset, error) {
	a, err := asset.NewAsset(tenant, flowID, c)
	if err != nil {
		return nil, err
	}
	if err := m.assets.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
