package similarity

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/models"
)

const (
	// MinThreshold is the smallest score worth storing.
	MinThreshold = 0.01

	// defaultBatchSize bounds how many upserts land per transaction.
	defaultBatchSize = 100
)

// typeWeights drives the weighted Jaccard: organization matches count four
// times a license match.
var typeWeights = map[models.MetadataType]float64{
	models.MetadataOrg:      2.0,
	models.MetadataDomain:   1.5,
	models.MetadataFunction: 1.5,
	models.MetadataIndustry: 1.5,
	models.MetadataTech:     1.0,
	models.MetadataConcept:  1.0,
	models.MetadataAudience: 1.0,
	models.MetadataPlatform: 1.0,
	models.MetadataProcess:  0.5,
	models.MetadataLicense:  0.5,
	models.MetadataLanguage: 0.5,
}

// Service computes and maintains weighted-Jaccard similarity edges from the
// metadata junction rows.
type Service struct {
	logger    arbor.ILogger
	metadata  interfaces.MetadataStorage
	edges     interfaces.SimilarityStorage
	threshold float64
	batchSize int
}

func NewService(logger arbor.ILogger, metadata interfaces.MetadataStorage, edges interfaces.SimilarityStorage) *Service {
	return &Service{
		logger:    logger,
		metadata:  metadata,
		edges:     edges,
		threshold: MinThreshold,
		batchSize: defaultBatchSize,
	}
}

// Score computes the weighted Jaccard between two typed-code sets. It
// returns (0, false) when either set is empty or the intersection is empty;
// such pairs yield no edge.
func Score(a, b map[string]models.MetadataType) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}

	var intersection, union float64
	matched := false
	for code, mt := range a {
		weight := typeWeights[mt]
		if _, ok := b[code]; ok {
			intersection += weight
			matched = true
		}
		union += weight
	}
	for code, mt := range b {
		if _, ok := a[code]; !ok {
			union += typeWeights[mt]
		}
	}

	if !matched || union == 0 {
		return 0, false
	}
	score := intersection / union
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return score, true
}

// codeSet flattens junction rows into a TYPE:CODE → type map.
func codeSet(rows []models.NodeMetadataRow) map[string]models.MetadataType {
	set := make(map[string]models.MetadataType, len(rows))
	for _, row := range rows {
		set[string(row.Type)+":"+row.Code] = row.Type
	}
	return set
}

// ComputeFor compares one node against every other node with metadata and
// stores the edges above threshold.
func (s *Service) ComputeFor(ctx context.Context, nodeID string) ([]*models.NodeSimilarity, error) {
	candidates, err := s.metadata.NodesWithMetadata(ctx)
	if err != nil {
		return nil, err
	}

	ids := append([]string{nodeID}, exclude(candidates, nodeID)...)
	codes, err := s.metadata.GetCodesForNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	own := codeSet(codes[nodeID])
	var edges []*models.NodeSimilarity
	now := time.Now().UTC()
	for _, candidate := range ids[1:] {
		score, ok := Score(own, codeSet(codes[candidate]))
		if !ok || score < s.threshold {
			continue
		}
		a, b := models.NormalizeNodePair(nodeID, candidate)
		edges = append(edges, &models.NodeSimilarity{
			NodeAID:    a,
			NodeBID:    b,
			Score:      score,
			Method:     models.SimilarityMethodJaccardWeighted,
			ComputedAt: now,
		})
	}

	if len(edges) > 0 {
		if err := s.edges.UpsertSimilarities(ctx, edges); err != nil {
			return nil, err
		}
	}
	return edges, nil
}

// BatchCompute scores every a < b pair within the input set, upserting in
// chunks of batchSize. Individual pair failures are counted, not fatal.
func (s *Service) BatchCompute(ctx context.Context, nodeIDs []string) (*models.BatchComputeStats, error) {
	started := time.Now()
	stats := &models.BatchComputeStats{}

	codes, err := s.metadata.GetCodesForNodes(ctx, nodeIDs)
	if err != nil {
		return nil, err
	}
	sets := make(map[string]map[string]models.MetadataType, len(nodeIDs))
	for _, id := range nodeIDs {
		sets[id] = codeSet(codes[id])
	}

	var pending []*models.NodeSimilarity
	now := time.Now().UTC()
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.edges.UpsertSimilarities(ctx, pending); err != nil {
			s.logger.Warn().Err(err).Int("edges", len(pending)).Msg("Failed to store similarity batch")
			stats.Errors += len(pending)
			stats.Stored -= len(pending)
		}
		pending = pending[:0]
	}

	for i := 0; i < len(nodeIDs); i++ {
		for j := i + 1; j < len(nodeIDs); j++ {
			a, b := models.NormalizeNodePair(nodeIDs[i], nodeIDs[j])
			if a == b {
				continue
			}
			stats.Computed++
			score, ok := Score(sets[nodeIDs[i]], sets[nodeIDs[j]])
			if !ok || score < s.threshold {
				stats.Skipped++
				continue
			}
			pending = append(pending, &models.NodeSimilarity{
				NodeAID:    a,
				NodeBID:    b,
				Score:      score,
				Method:     models.SimilarityMethodJaccardWeighted,
				ComputedAt: now,
			})
			stats.Stored++
			if len(pending) >= s.batchSize {
				flush()
			}
		}
	}
	flush()

	stats.DurationMs = time.Since(started) / time.Millisecond
	return stats, nil
}

// RecomputeAll clears edges for every node with metadata and batch-computes
// over that set.
func (s *Service) RecomputeAll(ctx context.Context) (*models.BatchComputeStats, error) {
	ids, err := s.metadata.NodesWithMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.edges.DeleteForNodes(ctx, ids); err != nil {
		return nil, err
	}
	s.logger.Info().Int("nodes", len(ids)).Msg("Recomputing all similarities")
	return s.BatchCompute(ctx, ids)
}

// UpdateForNode refreshes one node's edges after its metadata changed.
func (s *Service) UpdateForNode(ctx context.Context, nodeID string) error {
	if err := s.edges.DeleteForNode(ctx, nodeID); err != nil {
		return err
	}
	_, err := s.ComputeFor(ctx, nodeID)
	return err
}

// GetSimilar lists the node's strongest neighbors.
func (s *Service) GetSimilar(ctx context.Context, nodeID string, limit int) ([]*models.SimilarNode, error) {
	return s.edges.GetSimilar(ctx, nodeID, limit)
}

// FindCommonSimilar aggregates neighbors across the input set.
func (s *Service) FindCommonSimilar(ctx context.Context, nodeIDs []string, minScore float64, limit int) ([]*models.CommonSimilarResult, error) {
	return s.edges.FindCommonSimilar(ctx, nodeIDs, minScore, limit)
}

func exclude(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
