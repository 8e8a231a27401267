package main

import (
	"flag"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/playlistnet/internal/config"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	paramFlags(fs)
	return fs
}

func TestParamFlags_CoverConfigKeys(t *testing.T) {
	fs := newFlagSet()
	// Set by the subcommand or derived from the vocabulary.
	notFlags := map[string]bool{"mode": true, "encoder_vocab_size": true, "decoder_vocab_size": true}

	typ := reflect.TypeOf(config.Params{})
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("koanf")
		if key == "" || notFlags[key] {
			continue
		}
		assert.NotNil(t, fs.Lookup(key), "no flag for %s", key)
	}
}

func TestParamFlags_Overrides(t *testing.T) {
	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{
		"-start_decay_step=300",
		"-decay_steps=50",
		"-decay_factor=0.5",
		"-init_weight=0.05",
		"-max_gradient_norm=1.5",
		"-valid_batches=3",
		"-nn=rnn",
	}))

	o := overrides(fs)
	assert.Len(t, o, 7)
	p, err := config.Load(o)
	require.NoError(t, err)

	assert.Equal(t, int64(300), p.StartDecayStep)
	assert.Equal(t, int64(50), p.DecaySteps)
	assert.InDelta(t, 0.5, p.DecayFactor, 1e-12)
	assert.InDelta(t, 0.05, p.InitWeight, 1e-12)
	assert.InDelta(t, 1.5, p.MaxGradientNorm, 1e-12)
	assert.Equal(t, 3, p.ValidBatches)
	assert.Equal(t, "rnn", p.NN)
	assert.Equal(t, config.Defaults().BatchSize, p.BatchSize, "unset flags keep the defaults")
}
