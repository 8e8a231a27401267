package model

import "fmt"

// Dims are the dimensions a model was built for.
type Dims struct {
	// BatchSize is the required number of rows; 0 accepts any positive count.
	BatchSize    int
	MaxLen       int
	EncoderVocab int
	DecoderVocab int
}

// ValidateInputs checks inputs against dims without truncating or wrapping
// anything.
func ValidateInputs(in Inputs, dims Dims) error {
	b := len(in.EncoderIDs)
	if b == 0 {
		return shapeErr("encoder_input_ids", "at least one row", 0)
	}
	if dims.BatchSize > 0 && b != dims.BatchSize {
		return shapeErr("encoder_input_ids", fmt.Sprintf("%d rows", dims.BatchSize), b)
	}
	if len(in.EncoderLen) != b {
		return shapeErr("encoder_input_len", fmt.Sprintf("%d entries", b), len(in.EncoderLen))
	}
	if len(in.SeedIDs) != b {
		return shapeErr("seed_song_id", fmt.Sprintf("%d entries", b), len(in.SeedIDs))
	}
	if err := checkRows("encoder_input_ids", in.EncoderIDs, dims.MaxLen, dims.EncoderVocab); err != nil {
		return err
	}
	if err := checkLengths("encoder_input_len", in.EncoderLen, dims.MaxLen); err != nil {
		return err
	}
	for i, id := range in.SeedIDs {
		if id < 0 || int(id) >= dims.EncoderVocab {
			return shapeErr(fmt.Sprintf("seed_song_id[%d]", i), fmt.Sprintf("id in [0, %d)", dims.EncoderVocab), id)
		}
	}
	return nil
}

// ValidateBatch checks a supervised batch against dims.
func ValidateBatch(batch Batch, dims Dims) error {
	if err := ValidateInputs(batch.Inputs, dims); err != nil {
		return err
	}
	b := batch.BatchSize()
	if len(batch.DecoderIDs) != b {
		return shapeErr("decoder_input_ids", fmt.Sprintf("%d rows", b), len(batch.DecoderIDs))
	}
	if len(batch.DecoderTargets) != b {
		return shapeErr("decoder_target_ids", fmt.Sprintf("%d rows", b), len(batch.DecoderTargets))
	}
	if len(batch.DecoderLen) != b {
		return shapeErr("decoder_input_len", fmt.Sprintf("%d entries", b), len(batch.DecoderLen))
	}
	if err := checkRows("decoder_input_ids", batch.DecoderIDs, dims.MaxLen, dims.DecoderVocab); err != nil {
		return err
	}
	if err := checkRows("decoder_target_ids", batch.DecoderTargets, dims.MaxLen, dims.DecoderVocab); err != nil {
		return err
	}
	return checkLengths("decoder_input_len", batch.DecoderLen, dims.MaxLen)
}

// ValidateSampled checks RL trajectories and rewards for a batch of b rows.
func ValidateSampled(sampled [][]int32, rewards []float32, b int, dims Dims) error {
	if len(sampled) != b {
		return shapeErr("sampled_ids", fmt.Sprintf("%d rows", b), len(sampled))
	}
	if len(rewards) != b {
		return shapeErr("rewards", fmt.Sprintf("%d entries", b), len(rewards))
	}
	return checkRows("sampled_ids", sampled, dims.MaxLen, dims.DecoderVocab)
}

func checkRows(field string, rows [][]int32, width, vocab int) error {
	for i, row := range rows {
		if len(row) != width {
			return shapeErr(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("%d columns", width), len(row))
		}
		for t, id := range row {
			if id < 0 || int(id) >= vocab {
				return shapeErr(fmt.Sprintf("%s[%d][%d]", field, i, t), fmt.Sprintf("id in [0, %d)", vocab), id)
			}
		}
	}
	return nil
}

func checkLengths(field string, lengths []int32, maxLen int) error {
	for i, n := range lengths {
		if n < 0 || int(n) > maxLen {
			return shapeErr(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("length in [0, %d]", maxLen), n)
		}
	}
	return nil
}
