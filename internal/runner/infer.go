package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/playlistnet/internal/dataset"
	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/postprocess"
	"github.com/born-ml/playlistnet/internal/vocab"
)

// runTest decodes results/in.txt and writes one song-id line per beam to
// results/<nn>_out.txt. With results/target.txt present it also writes
// precision and recall of the top beams to results/<nn>_score.txt.
func (r *Runner) runTest(ctx context.Context) error {
	log := logging.Ctx(ctx)
	v, err := vocab.Load(r.cfg.VocabPath)
	if err != nil {
		return err
	}
	in, err := dataset.ReadInputFiles(inputPath(r.cfg), filepath.Join(r.cfg.ResultsDir, "seed.txt"), v, r.cfg.MaxLen)
	if err != nil {
		return err
	}
	if _, err := r.mustRestore(ctx, r.cfg.CheckpointPath()); err != nil {
		return err
	}

	pred, err := r.net.Predict(in)
	if err != nil {
		return fmt.Errorf("runner: predict: %w", err)
	}
	out := filepath.Join(r.cfg.ResultsDir, r.cfg.NN+"_out.txt")
	if err := os.WriteFile(out, []byte(postprocess.Format(postprocess.Lines(v, pred))+"\n"), 0o600); err != nil {
		return fmt.Errorf("runner: write predictions: %w", err)
	}
	log.Info().Int("rows", len(pred.IDs)).Str("path", out).Msg("predictions written")

	targetPath := filepath.Join(r.cfg.ResultsDir, "target.txt")
	if _, err := os.Stat(targetPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	targets, err := dataset.ReadTargets(targetPath)
	if err != nil {
		return err
	}
	tokens := make([][]int32, len(targets))
	for i, t := range targets {
		tokens[i] = v.Tokens(t)
	}
	counts := postprocess.Score(pred.TopBeam(), tokens)

	report := filepath.Join(r.cfg.ResultsDir, r.cfg.NN+"_score.txt")
	body := fmt.Sprintf("precision: %.6f\nrecall: %.6f\n", counts.Precision(), counts.Recall())
	if err := os.WriteFile(report, []byte(body), 0o600); err != nil {
		return fmt.Errorf("runner: write score: %w", err)
	}
	log.Info().
		Float64("precision", counts.Precision()).
		Float64("recall", counts.Recall()).
		Str("path", report).
		Msg("scored against targets")
	return nil
}
