package health

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkaragian/verdict/internal/domain"
)

// WeightBook holds the per-strategy reliability weights fed back into
// aggregation. Reads return an immutable snapshot; writers replace the whole
// map, so readers in the analysis hot path never contend with evaluation.
type WeightBook struct {
	mu       sync.Mutex
	snapshot map[string]float64 // Replaced wholesale on write, never mutated
	path     string
	log      zerolog.Logger
}

// weightSnapshot is the persisted form of the weight book
type weightSnapshot struct {
	Weights map[string]float64 `msgpack:"weights"`
}

// NewWeightBook creates a weight book persisted under dataDir. Existing
// persisted weights are loaded so a restart does not reset reliability to
// defaults before the first evaluation runs.
func NewWeightBook(dataDir string, log zerolog.Logger) (*WeightBook, error) {
	b := &WeightBook{
		snapshot: map[string]float64{},
		path:     filepath.Join(dataDir, "strategy_weights.msgpack"),
		log:      log.With().Str("component", "weight_book").Logger(),
	}

	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *WeightBook) load() error {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading weight snapshot: %w", err)
	}

	var snap weightSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding weight snapshot: %w", err)
	}
	if snap.Weights != nil {
		b.snapshot = snap.Weights
	}
	b.log.Info().Int("strategies", len(b.snapshot)).Msg("Loaded strategy weights")
	return nil
}

// Set updates one strategy's weight and persists the new snapshot
func (b *WeightBook) Set(strategy string, weight float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]float64, len(b.snapshot)+1)
	for k, v := range b.snapshot {
		next[k] = v
	}
	next[strategy] = weight
	b.snapshot = next

	if err := b.persist(next); err != nil {
		b.log.Error().Err(err).Msg("Failed to persist strategy weights")
	}
}

func (b *WeightBook) persist(weights map[string]float64) error {
	data, err := msgpack.Marshal(weightSnapshot{Weights: weights})
	if err != nil {
		return fmt.Errorf("encoding weight snapshot: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing weight snapshot: %w", err)
	}
	return os.Rename(tmp, b.path)
}

// Weight returns one strategy's weight, defaulting to 1.0 for strategies
// that have never been evaluated
func (b *WeightBook) Weight(strategy string) float64 {
	b.mu.Lock()
	snap := b.snapshot
	b.mu.Unlock()

	if w, ok := snap[strategy]; ok {
		return w
	}
	return 1.0
}

// All returns the current weight snapshot. The returned map must not be
// mutated.
func (b *WeightBook) All() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// EngineWeights maps engine kinds through the weight book, satisfying the
// aggregation weight source. Engines without a health record carry full
// weight.
func (b *WeightBook) EngineWeights() map[domain.EngineKind]float64 {
	b.mu.Lock()
	snap := b.snapshot
	b.mu.Unlock()

	out := make(map[domain.EngineKind]float64, len(domain.AllEngineKinds))
	for _, kind := range domain.AllEngineKinds {
		if w, ok := snap[string(kind)]; ok {
			out[kind] = w
		} else {
			out[kind] = 1.0
		}
	}
	return out
}
