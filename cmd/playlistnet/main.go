// Package main provides the playlistnet CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/playlistnet/internal/config"
	"github.com/born-ml/playlistnet/internal/dataset"
	"github.com/born-ml/playlistnet/internal/logging"
	"github.com/born-ml/playlistnet/internal/metrics"
	"github.com/born-ml/playlistnet/internal/runner"
)

const version = "v0.1.0-dev"

const usage = `playlistnet - playlist continuation with seq2seq and SRCNN models

Usage:
  playlistnet <command> [flags]

Commands:
  train     Train a model on data/<nn>_train.db
  rl        Fine-tune the cnn model with the length reward
  valid     Report perplexity on data/<nn>_valid.db
  test      Decode results/in.txt into results/<nn>_out.txt
  convert   Convert encoder/decoder/seed text files into a record store
  version   Show version

Run 'playlistnet <command> -h' for the flags of a command.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logging.Err(err).Msg("playlistnet failed")
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := args[0]; cmd {
	case "version":
		fmt.Printf("playlistnet %s\n", version)
		return nil
	case "train", "rl", "valid", "test":
		return runMode(ctx, cmd, args[1:])
	case "convert":
		return runConvert(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// paramFlags registers the flags that override config keys. Flag names are
// the koanf keys, so explicitly set flags map straight onto Load overrides.
func paramFlags(fs *flag.FlagSet) {
	d := config.Defaults()
	fs.String("nn", d.NN, "model: rnn or cnn")
	fs.String("attention_mode", d.AttentionMode, "rnn attention: luong or bahdanau")
	fs.Float64("learning_rate", d.LearningRate, "rnn SGD learning rate")
	fs.Float64("rl_learning_rate", d.RLLearningRate, "cnn policy-gradient learning rate")
	fs.Float64("adam_learning_rate", d.AdamLearningRate, "cnn Adam learning rate")
	fs.Float64("init_weight", d.InitWeight, "uniform initialization range")
	fs.Float64("max_gradient_norm", d.MaxGradientNorm, "rnn global gradient norm clip")
	fs.Int64("start_decay_step", d.StartDecayStep, "rnn step the learning rate starts decaying at")
	fs.Int64("decay_steps", d.DecaySteps, "rnn steps between learning rate decays")
	fs.Float64("decay_factor", d.DecayFactor, "rnn learning rate decay factor")
	fs.Int("num_units", d.NumUnits, "rnn hidden units")
	fs.Int("num_layers", d.NumLayers, "rnn layers")
	fs.Int("batch_size", d.BatchSize, "batch size")
	fs.Int("embedding_size", d.EmbeddingSize, "embedding size")
	fs.Int("max_len", d.MaxLen, "maximum sequence length")
	fs.Bool("debug", d.Debug, "use tiny debug dimensions")
	fs.Bool("beam_search", d.BeamSearch, "rnn beam search instead of greedy decoding")
	fs.Int("beam_width", d.BeamWidth, "rnn beam width")
	fs.Float64("dropout", d.Dropout, "dropout rate")
	fs.Bool("scheduled_sampling", d.ScheduledSampling, "rnn scheduled sampling")
	fs.Bool("batch_norm", d.BatchNorm, "cnn batch normalization")
	fs.Int64("num_steps", d.NumSteps, "total training steps")
	fs.Int64("steps_per_stats", d.StepsPerStats, "steps between stats lines")
	fs.Int("valid_batches", d.ValidBatches, "batches per validation pass")
	fs.Int64("checkpoint_every", d.CheckpointEvery, "steps between checkpoints, 0 to save only at the end")
	fs.Int64("seed", d.Seed, "random seed")
	fs.String("model_dir", d.ModelDir, "model root directory")
	fs.String("data_dir", d.DataDir, "data directory")
	fs.String("results_dir", d.ResultsDir, "inference input and output directory")
	fs.String("vocab_path", d.VocabPath, "vocabulary file (default <data_dir>/vocab_default.txt)")
	fs.String("metrics_addr", d.MetricsAddr, "serve Prometheus metrics on this address")
	fs.String("log_level", d.LogLevel, "log level")
	fs.String("log_format", d.LogFormat, "log format: console or json")
}

// overrides collects the flags set on the command line.
func overrides(fs *flag.FlagSet) map[string]any {
	set := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		if g, ok := f.Value.(flag.Getter); ok {
			set[f.Name] = g.Get()
		}
	})
	return set
}

func load(o map[string]any) (config.Params, error) {
	p, err := config.Load(o)
	if err != nil {
		return config.Params{}, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level, cfg.Format = p.LogLevel, p.LogFormat
	logging.Init(cfg)
	return p, nil
}

func runMode(ctx context.Context, mode string, args []string) error {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	paramFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	o := overrides(fs)
	o["mode"] = mode
	p, err := load(o)
	if err != nil {
		return err
	}
	p, err = runner.Prepare(p)
	if err != nil {
		return err
	}

	m := metrics.New(p.Arch())
	r, err := runner.New(p, runner.WithMetrics(m))
	if err != nil {
		return err
	}
	logging.Info().
		Str("run_id", r.RunID()).
		Str("nn", p.NN).
		Str("mode", p.Mode).
		Str("model_dir", p.ModelDir).
		Msg("starting")

	if p.MetricsAddr != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Serve(serveCtx, p.MetricsAddr); err != nil {
				logging.Err(err).Msg("metrics server stopped")
			}
		}()
	}
	return r.Run(ctx)
}

func runConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	paramFlags(fs)
	split := fs.String("split", "train", "split name: train or valid")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: playlistnet convert [flags] <source dir>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("convert: expected one source directory")
	}
	o := overrides(fs)
	delete(o, "split")

	p, err := load(o)
	if err != nil {
		return err
	}
	path := dataset.StorePath(p.DataDir, p.NN, *split)
	if err := os.MkdirAll(p.DataDir, 0o750); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	store, err := dataset.Open(path)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // close error is logged by badger

	meta, err := dataset.Convert(ctx, fs.Arg(0), store)
	if err != nil {
		return err
	}
	logging.Info().Int("records", meta.Count).Int("max_len", meta.MaxLen).Str("path", path).Msg("converted")
	return nil
}
