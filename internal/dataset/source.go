package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/playlistnet/internal/model"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	BatchSize int
	// Width is the row width handed to the model: max_len for the SRCNN,
	// max_len+1 before the recurrent shift.
	Width int
	// Recurrent applies model.ShiftRecurrent to every batch.
	Recurrent bool
	Seed      int64
}

// Source deals shuffled batches from a fixed record set, reshuffling at
// the start of every epoch.
type Source struct {
	records []Record
	cfg     SourceConfig
	rng     *rand.Rand
	order   []int
	pos     int
	epoch   int
}

// NewSource creates a batch source over records.
func NewSource(records []Record, cfg SourceConfig) (*Source, error) {
	if len(records) == 0 {
		return nil, ErrEmptyStore
	}
	if cfg.BatchSize <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("dataset: invalid batch size %d or width %d", cfg.BatchSize, cfg.Width)
	}
	s := &Source{
		records: records,
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(uint64(cfg.Seed), 0x5eed)), //nolint:gosec // seed reinterpretation
		order:   make([]int, len(records)),
	}
	for i := range s.order {
		s.order[i] = i
	}
	s.shuffle()
	return s, nil
}

// Epoch returns the number of completed passes over the records.
func (s *Source) Epoch() int {
	return s.epoch
}

// Next returns the next batch. A batch never mixes two epochs when the
// record set is at least one batch long: leftover records at the end of an
// epoch are skipped and the order is reshuffled.
func (s *Source) Next(ctx context.Context) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, err
	}
	n := s.cfg.BatchSize
	raw := model.Batch{
		Inputs: model.Inputs{
			EncoderIDs: make([][]int32, n),
			EncoderLen: make([]int32, n),
			SeedIDs:    make([]int32, n),
		},
		DecoderIDs: make([][]int32, n),
		DecoderLen: make([]int32, n),
	}
	if s.pos+n > len(s.order) {
		s.nextEpoch()
	}
	for i := 0; i < n; i++ {
		if s.pos == len(s.order) {
			s.nextEpoch()
		}
		idx := s.order[s.pos]
		rec := s.records[idx]
		s.pos++

		var err error
		if raw.EncoderIDs[i], err = fit(idx, "encoder_input", rec.EncoderInput, rec.EncoderInputLen, s.cfg.Width); err != nil {
			return model.Batch{}, err
		}
		if raw.DecoderIDs[i], err = fit(idx, "decoder_input", rec.DecoderInput, rec.DecoderInputLen, s.cfg.Width); err != nil {
			return model.Batch{}, err
		}
		raw.EncoderLen[i] = rec.EncoderInputLen
		raw.DecoderLen[i] = rec.DecoderInputLen
		raw.SeedIDs[i] = rec.SeedID
	}

	if s.cfg.Recurrent {
		return model.ShiftRecurrent(raw), nil
	}
	raw.DecoderTargets = raw.DecoderIDs
	return raw, nil
}

func (s *Source) nextEpoch() {
	s.epoch++
	s.shuffle()
}

func (s *Source) shuffle() {
	s.rng.Shuffle(len(s.order), func(i, j int) { s.order[i], s.order[j] = s.order[j], s.order[i] })
	s.pos = 0
}

// fit zero-pads ids to width. Records longer than width are rejected
// unless everything past width is padding.
func fit(record int, field string, ids []int32, length int32, width int) ([]int32, error) {
	name := fmt.Sprintf("record %d %s", record, field)
	if int(length) > width {
		return nil, &model.ShapeError{Field: name + "_len", Want: fmt.Sprintf("<= %d", width), Got: fmt.Sprint(length)}
	}
	for t := width; t < len(ids); t++ {
		if ids[t] != model.PadID {
			return nil, &model.ShapeError{Field: name, Want: fmt.Sprintf("%d ids", width), Got: fmt.Sprintf("%d ids", len(ids))}
		}
	}
	return pad(ids, width), nil
}
