package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/born-ml/playlistnet/internal/model"
)

// Params is the parameter bundle of one run.
type Params struct {
	NN            string `koanf:"nn" json:"nn" validate:"oneof=rnn cnn"`
	Mode          string `koanf:"mode" json:"mode" validate:"oneof=train valid test rl"`
	AttentionMode string `koanf:"attention_mode" json:"attention_mode" validate:"oneof=luong bahdanau"`

	LearningRate     float64 `koanf:"learning_rate" json:"learning_rate" validate:"gt=0"`
	RLLearningRate   float64 `koanf:"rl_learning_rate" json:"rl_learning_rate" validate:"gt=0"`
	AdamLearningRate float64 `koanf:"adam_learning_rate" json:"adam_learning_rate" validate:"gt=0"`
	InitWeight       float64 `koanf:"init_weight" json:"init_weight" validate:"gt=0"`
	MaxGradientNorm  float64 `koanf:"max_gradient_norm" json:"max_gradient_norm" validate:"gt=0"`

	NumUnits         int `koanf:"num_units" json:"num_units" validate:"min=1"`
	NumLayers        int `koanf:"num_layers" json:"num_layers" validate:"min=1,max=8"`
	BatchSize        int `koanf:"batch_size" json:"batch_size" validate:"min=1"`
	EncoderVocabSize int `koanf:"encoder_vocab_size" json:"encoder_vocab_size" validate:"min=4"`
	DecoderVocabSize int `koanf:"decoder_vocab_size" json:"decoder_vocab_size" validate:"min=4"`
	EmbeddingSize    int `koanf:"embedding_size" json:"embedding_size" validate:"min=1"`
	MaxLen           int `koanf:"max_len" json:"max_len" validate:"min=2"`

	Debug      bool    `koanf:"debug" json:"debug"`
	BeamSearch bool    `koanf:"beam_search" json:"beam_search"`
	BeamWidth  int     `koanf:"beam_width" json:"beam_width" validate:"min=1"`
	Dropout    float64 `koanf:"dropout" json:"dropout" validate:"gte=0,lt=1"`

	StartDecayStep    int64   `koanf:"start_decay_step" json:"start_decay_step" validate:"min=0"`
	DecaySteps        int64   `koanf:"decay_steps" json:"decay_steps" validate:"min=1"`
	DecayFactor       float64 `koanf:"decay_factor" json:"decay_factor" validate:"gt=0,lte=1"`
	StepsPerStats     int64   `koanf:"steps_per_stats" json:"steps_per_stats" validate:"min=1"`
	ScheduledSampling bool    `koanf:"scheduled_sampling" json:"scheduled_sampling"`
	BatchNorm         bool    `koanf:"batch_norm" json:"batch_norm"`

	NumSteps        int64  `koanf:"num_steps" json:"num_steps" validate:"min=1"`
	Seed            int64  `koanf:"seed" json:"seed"`
	ModelDir        string `koanf:"model_dir" json:"model_dir" validate:"required"`
	DataDir         string `koanf:"data_dir" json:"data_dir" validate:"required"`
	ResultsDir      string `koanf:"results_dir" json:"results_dir" validate:"required"`
	VocabPath       string `koanf:"vocab_path" json:"vocab_path"`
	CheckpointEvery int64  `koanf:"checkpoint_every" json:"checkpoint_every" validate:"min=0"`
	ValidBatches    int    `koanf:"valid_batches" json:"valid_batches" validate:"min=1"`
	MetricsAddr     string `koanf:"metrics_addr" json:"metrics_addr"`

	LogLevel  string `koanf:"log_level" json:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" json:"log_format" validate:"oneof=json console"`

	derived bool
}

// srcnnMinExtent is the smallest sequence length and embedding width the
// SRCNN's 9x9 then 5x5 valid convolutions leave at least one output for.
const srcnnMinExtent = 13

// Derive computes the fields that depend on the data and on the chosen
// architecture and mode. vocabSize is the vocabulary line count and
// testLines the number of test input lines (used only in test mode).
func (p Params) Derive(vocabSize, testLines int) (Params, error) {
	if p.derived {
		return p, fmt.Errorf("%w: params already derived", model.ErrConfiguration)
	}
	p.EncoderVocabSize = vocabSize
	p.DecoderVocabSize = vocabSize

	if p.NN == string(model.ArchRNN) {
		p.MaxLen--
	}
	if p.NN == string(model.ArchCNN) {
		p.StartDecayStep = 5000
		p.DecaySteps = 5000
	}
	if p.Debug {
		p.NumUnits = 14
		p.NumLayers = 2
		p.BatchSize = 2
		p.EmbeddingSize = 14
	}
	if p.Mode != model.ModeTrain.String() {
		p.Dropout = 0
	}

	p.ModelDir = filepath.Join(p.ModelDir, p.NN+"_models")
	if p.Mode == model.ModeRL.String() {
		p.ModelDir += "_rl"
	}
	if p.Mode == model.ModeTest.String() && testLines > 0 {
		p.BatchSize = testLines
	}
	if p.VocabPath == "" {
		p.VocabPath = filepath.Join(p.DataDir, "vocab_default.txt")
	}
	p.derived = true
	return p, nil
}

// Derived reports whether Derive has run.
func (p Params) Derived() bool {
	return p.derived
}

// Arch returns the architecture. Only valid after Validate.
func (p Params) Arch() model.Arch {
	return model.Arch(p.NN)
}

// RunMode returns the operating mode. Only valid after Validate.
func (p Params) RunMode() model.Mode {
	m, _ := model.ParseMode(p.Mode)
	return m
}

// EffectiveBeamWidth is 1 for greedy decoding and the SRCNN.
func (p Params) EffectiveBeamWidth() int {
	if !p.BeamSearch || p.NN == string(model.ArchCNN) {
		return 1
	}
	return p.BeamWidth
}

// Dims returns the batch dimensions the model checks inputs against.
// The batch size is left open in test mode, where the input file decides it.
func (p Params) Dims() model.Dims {
	d := model.Dims{
		BatchSize:    p.BatchSize,
		MaxLen:       p.MaxLen,
		EncoderVocab: p.EncoderVocabSize,
		DecoderVocab: p.DecoderVocabSize,
	}
	if p.RunMode() == model.ModeTest {
		d.BatchSize = 0
	}
	return d
}

// PretrainDir is the supervised run directory an RL run starts from.
func (p Params) PretrainDir() string {
	return strings.TrimSuffix(p.ModelDir, "_rl")
}

// CheckpointPath is the weights file inside the run directory.
func (p Params) CheckpointPath() string {
	return filepath.Join(p.ModelDir, "model.born")
}

// WriteJSON dumps the params to <model_dir>/para.json.
func (p Params) WriteJSON() error {
	if err := os.MkdirAll(p.ModelDir, 0o750); err != nil {
		return fmt.Errorf("config: create model dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode params: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.ModelDir, "para.json"), data, 0o600); err != nil {
		return fmt.Errorf("config: write params: %w", err)
	}
	return nil
}
