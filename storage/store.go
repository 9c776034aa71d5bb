package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zeu5/lattice-fold-rl/dqn"
	"github.com/zeu5/lattice-fold-rl/nn"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrNotInitialized = errors.New("store is not initialized")
)

// Checkpoint is a snapshot of the online network of a training run
type Checkpoint struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`

	RunID     string     `json:"run_id"`
	Sequence  string     `json:"sequence"`
	Episode   int        `json:"episode"`
	Weights   nn.Weights `json:"weights"`
	Stats     dqn.Stats  `json:"stats"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewCheckpoint stamps the current record versions
func NewCheckpoint(runID, sequence string, episode int, weights nn.Weights, stats dqn.Stats) *Checkpoint {
	return &Checkpoint{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
		RunID:         runID,
		Sequence:      sequence,
		Episode:       episode,
		Weights:       weights,
		Stats:         stats,
		CreatedAt:     time.Now().UTC(),
	}
}

// Store persists checkpoints and per episode rewards of training runs.
// LatestCheckpoint and GetRewardHistory return ErrNotFound for unknown runs.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	LatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, error)
	Close() error
}
