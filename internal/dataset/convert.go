package dataset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Source files read by Convert.
const (
	EncoderFile = "ids_raw_data.txt"
	DecoderFile = "ids_rerank_data.txt"
	SeedFile    = "ids_seed.txt"
)

// Convert reads the encoder, decoder and seed id files from srcDir, pads
// every sequence to the longest one found in either file and writes the
// records to store.
func Convert(ctx context.Context, srcDir string, store *Store) (Meta, error) {
	encoder, err := readIDLines(filepath.Join(srcDir, EncoderFile))
	if err != nil {
		return Meta{}, err
	}
	decoder, err := readIDLines(filepath.Join(srcDir, DecoderFile))
	if err != nil {
		return Meta{}, err
	}
	seeds, err := readIDLines(filepath.Join(srcDir, SeedFile))
	if err != nil {
		return Meta{}, err
	}
	if len(decoder) < len(encoder) || len(seeds) < len(encoder) {
		return Meta{}, fmt.Errorf("dataset: %d encoder lines but %d decoder and %d seed lines",
			len(encoder), len(decoder), len(seeds))
	}

	maxLen := 0
	for i := range encoder {
		maxLen = max(maxLen, len(encoder[i]), len(decoder[i]))
	}

	records := make([]Record, len(encoder))
	for i := range encoder {
		if len(seeds[i]) != 1 {
			return Meta{}, fmt.Errorf("dataset: %s line %d: want one seed id, got %d", SeedFile, i+1, len(seeds[i]))
		}
		records[i] = Record{
			EncoderInput:    pad(encoder[i], maxLen),
			EncoderInputLen: int32(len(encoder[i])), //nolint:gosec // line lengths fit in int32
			DecoderInput:    pad(decoder[i], maxLen),
			DecoderInputLen: int32(len(decoder[i])), //nolint:gosec // line lengths fit in int32
			SeedID:          seeds[i][0],
		}
	}

	meta := Meta{Count: len(records), MaxLen: maxLen}
	if err := store.Write(ctx, records, meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// ParseIDs parses a space-separated id line. Empty tokens are skipped.
func ParseIDs(line string) ([]int32, error) {
	fields := strings.Fields(line)
	ids := make([]int32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", f, err)
		}
		ids = append(ids, int32(v))
	}
	return ids, nil
}

func readIDLines(path string) ([][]int32, error) {
	//nolint:gosec // G304: path comes from the run configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	var lines [][]int32
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		ids, err := ParseIDs(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("dataset: %s line %d: %w", filepath.Base(path), len(lines)+1, err)
		}
		lines = append(lines, ids)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	return lines, nil
}

// pad copies ids into a zero-padded row of width, truncating if longer.
func pad(ids []int32, width int) []int32 {
	row := make([]int32, width)
	copy(row, ids)
	return row
}
