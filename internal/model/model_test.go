package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeTrain, ModeValid, ModeTest, ModeRL} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("serve")
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.True(t, ModeTrain.Training())
	assert.True(t, ModeRL.Training())
	assert.False(t, ModeTest.Training())
}

func TestCheckSupported(t *testing.T) {
	assert.ErrorIs(t, CheckSupported(ArchRNN, ModeRL), ErrConfiguration)
	assert.NoError(t, CheckSupported(ArchCNN, ModeRL))
	assert.NoError(t, CheckSupported(ArchRNN, ModeTest))

	_, err := ParseArch("transformer")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func validBatch() Batch {
	return Batch{
		Inputs: Inputs{
			EncoderIDs: [][]int32{{4, 5, 0}, {6, 0, 0}},
			EncoderLen: []int32{2, 1},
			SeedIDs:    []int32{4, 6},
		},
		DecoderIDs:     [][]int32{{1, 4, 2}, {1, 2, 0}},
		DecoderLen:     []int32{3, 2},
		DecoderTargets: [][]int32{{4, 2, 0}, {2, 0, 0}},
	}
}

func TestValidateBatch(t *testing.T) {
	dims := Dims{BatchSize: 2, MaxLen: 3, EncoderVocab: 8, DecoderVocab: 8}
	require.NoError(t, ValidateBatch(validBatch(), dims))

	tests := []struct {
		name   string
		mutate func(*Batch)
		field  string
	}{
		{"short row", func(b *Batch) { b.EncoderIDs[1] = []int32{6, 0} }, "encoder_input_ids[1]"},
		{"id out of vocab", func(b *Batch) { b.DecoderTargets[0][1] = 8 }, "decoder_target_ids[0][1]"},
		{"length past max_len", func(b *Batch) { b.DecoderLen[0] = 4 }, "decoder_input_len[0]"},
		{"missing seed", func(b *Batch) { b.SeedIDs = b.SeedIDs[:1] }, "seed_song_id"},
		{"negative seed", func(b *Batch) { b.SeedIDs[1] = -1 }, "seed_song_id[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBatch()
			tt.mutate(&b)
			err := ValidateBatch(b, dims)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch))
			var se *ShapeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
		})
	}

	dims.BatchSize = 3
	assert.ErrorIs(t, ValidateBatch(validBatch(), dims), ErrShapeMismatch)
}

func TestShiftRecurrent(t *testing.T) {
	raw := Batch{
		Inputs: Inputs{
			EncoderIDs: [][]int32{{1, 7, 8, 2}},
			EncoderLen: []int32{4},
			SeedIDs:    []int32{7},
		},
		DecoderIDs: [][]int32{{1, 9, 2, 0}},
		DecoderLen: []int32{3},
	}
	got := ShiftRecurrent(raw)
	assert.Equal(t, [][]int32{{7, 8, 2}}, got.EncoderIDs)
	assert.Equal(t, []int32{3}, got.EncoderLen)
	assert.Equal(t, [][]int32{{1, 9, 2}}, got.DecoderIDs)
	assert.Equal(t, [][]int32{{9, 2, 0}}, got.DecoderTargets)
	assert.Equal(t, []int32{2}, got.DecoderLen)
	assert.Equal(t, 2, got.PredictCount())
}

func TestShiftRecurrent_MarkerOnlyRows(t *testing.T) {
	raw := Batch{
		Inputs: Inputs{
			EncoderIDs: [][]int32{{1, 0, 0}, {1, 5, 2}},
			EncoderLen: []int32{1, 3},
			SeedIDs:    []int32{5, 5},
		},
		DecoderIDs: [][]int32{{1, 0, 0}, {0, 0, 0}},
		DecoderLen: []int32{1, 0},
	}
	got := ShiftRecurrent(raw)

	assert.Equal(t, []int32{0, 2}, got.EncoderLen)
	assert.Equal(t, []int32{0, 0}, got.DecoderLen)
	assert.Zero(t, got.PredictCount())
	for i, row := range got.DecoderTargets {
		nonPad := 0
		for _, id := range row {
			if id != PadID {
				nonPad++
			}
		}
		assert.Equal(t, int(got.DecoderLen[i]), nonPad, "row %d", i)
	}
	require.NoError(t, ValidateBatch(got, Dims{BatchSize: 2, MaxLen: 2, EncoderVocab: 10, DecoderVocab: 10}))
}

func TestTopBeam(t *testing.T) {
	p := Prediction{IDs: [][][]int32{{{5, 6}, {2, 7}}}}
	assert.Equal(t, [][]int32{{5, 2}}, p.TopBeam())
}
