package runner

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/serialization"
	"github.com/born-ml/playlistnet/internal/tensor"
)

// stateful is a model whose optimizer slots are checkpointed with its
// weights.
type stateful interface {
	OptimizerState() map[string]*tensor.RawTensor
	LoadOptimizerState(state map[string]*tensor.RawTensor) error
}

// save writes the weights and training state to the run's checkpoint.
func (r *Runner) save(ctx context.Context, step int64, loss float32) error {
	header := serialization.Header{
		ModelType: r.cfg.NN,
		Metadata: map[string]string{
			"attention_mode": r.cfg.AttentionMode,
			"embedding_size": strconv.Itoa(r.cfg.EmbeddingSize),
			"max_len":        strconv.Itoa(r.cfg.MaxLen),
			"vocab_size":     strconv.Itoa(r.cfg.DecoderVocabSize),
		},
		CheckpointMeta: &serialization.CheckpointMeta{
			RunID:           r.runID,
			Mode:            r.cfg.Mode,
			Step:            step,
			Loss:            float64(loss),
			OptimizerType:   r.optimizer,
			OptimizerConfig: map[string]float64{"learning_rate": r.lr},
		},
	}
	state := maps.Clone(r.net.StateDict())
	if s, ok := r.net.(stateful); ok {
		maps.Copy(state, s.OptimizerState())
	}
	path := r.cfg.CheckpointPath()
	if err := serialization.SaveCheckpoint(path, state, header); err != nil {
		return fmt.Errorf("runner: save checkpoint: %w", err)
	}
	r.metrics.CheckpointSaved()
	logging.Ctx(ctx).Info().Int64("step", step).Str("path", path).Msg("checkpoint saved")
	return nil
}

// restore loads the checkpoint at path. It returns the step to resume
// from and false when no checkpoint exists there.
func (r *Runner) restore(ctx context.Context, path string) (int64, bool, error) {
	if !serialization.Exists(path) {
		return 0, false, nil
	}
	state, header, err := serialization.ReadCheckpoint(path)
	if err == nil {
		err = serialization.AssignParameters(state, r.net.Parameters())
	}
	if s, ok := r.net.(stateful); ok && err == nil {
		err = s.LoadOptimizerState(state)
	}
	if err != nil {
		return 0, false, fmt.Errorf("runner: restore %s: %w", path, err)
	}

	var step int64
	event := logging.Ctx(ctx).Info().Str("path", path)
	if meta := header.CheckpointMeta; meta != nil {
		step = meta.Step
		event = event.Int64("step", step).Str("from_run", meta.RunID).Str("from_mode", meta.Mode)
	}
	event.Msg("checkpoint restored")
	return step, true, nil
}

// mustRestore is restore for modes that cannot start from random weights.
func (r *Runner) mustRestore(ctx context.Context, path string) (int64, error) {
	step, ok, err := r.restore(ctx, path)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w at %s", ErrNoCheckpoint, path)
	}
	return step, nil
}
