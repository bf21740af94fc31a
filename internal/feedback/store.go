// Package feedback turns per-chunk user votes into a retrieval boost. Each
// chunk accumulates positive and negative counts; the derived boost factor
// is 1.0 + 0.1*(positive-negative), clamped to [0.5, 1.5].
package feedback

import (
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
)

const (
	voteStep  = 0.1
	minFactor = 0.5
	maxFactor = 1.5
)

// Store wraps the persistent vote tallies behind the boost computation.
type Store struct {
	db *sqlite.Client
}

func NewStore(db *sqlite.Client) *Store {
	return &Store{db: db}
}

// BoostFactor derives the boost for a tally. A chunk with no votes sits at
// the neutral 1.0.
func BoostFactor(positive, negative int64) float64 {
	factor := 1.0 + voteStep*float64(positive-negative)
	if factor < minFactor {
		return minFactor
	}
	if factor > maxFactor {
		return maxFactor
	}
	return factor
}

// Vote records one up or down vote and returns the updated tally.
func (s *Store) Vote(chunkID string, positive bool) (*models.ChunkFeedback, float64, error) {
	fb, err := s.db.RecordVote(chunkID, positive)
	if err != nil {
		return nil, 0, err
	}

	factor := BoostFactor(fb.Positive, fb.Negative)
	logger.Debug("Feedback vote recorded",
		zap.String("chunk_id", chunkID),
		zap.Bool("positive", positive),
		zap.Float64("boost_factor", factor),
	)
	return fb, factor, nil
}

// BoostMap returns the boost factor for each chunk in ids. Chunks without
// recorded votes map to the neutral factor.
func (s *Store) BoostMap(ids []string) (map[string]float64, error) {
	tallies, err := s.db.GetFeedbackBatch(ids)
	if err != nil {
		return nil, err
	}

	boosts := make(map[string]float64, len(ids))
	for _, id := range ids {
		if fb, ok := tallies[id]; ok {
			boosts[id] = BoostFactor(fb.Positive, fb.Negative)
		} else {
			boosts[id] = 1.0
		}
	}
	return boosts, nil
}

// Get returns the raw tally and derived factor for one chunk.
func (s *Store) Get(chunkID string) (*models.ChunkFeedback, float64, error) {
	fb, err := s.db.GetFeedback(chunkID)
	if err != nil {
		return nil, 0, err
	}
	return fb, BoostFactor(fb.Positive, fb.Negative), nil
}
