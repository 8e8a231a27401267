// Package postprocess turns decoded token ids into song-id lines and scores
// them against ground truth.
package postprocess

import (
	"strings"

	"github.com/born-ml/playlistnet/internal/model"
)

// Placeholder is emitted for a sequence with no songs left after filtering,
// keeping output lines aligned with input rows.
const Placeholder = "0"

// Vocabulary resolves token ids to song ids.
type Vocabulary interface {
	SongID(token int32) string
}

// FilterSentinels drops reserved token ids.
func FilterSentinels(seq []int32) []int32 {
	out := make([]int32, 0, len(seq))
	for _, id := range seq {
		if !model.IsSentinel(id) {
			out = append(out, id)
		}
	}
	return out
}

// Dedup removes repeats, keeping first occurrences in order.
func Dedup[T comparable](seq []T) []T {
	seen := make(map[T]struct{}, len(seq))
	out := make([]T, 0, len(seq))
	for _, v := range seq {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SongIDs maps one token sequence to deduplicated song ids.
func SongIDs(v Vocabulary, seq []int32) []string {
	songs := make([]string, 0, len(seq))
	for _, id := range FilterSentinels(seq) {
		if s := v.SongID(id); s != "" {
			songs = append(songs, s)
		}
	}
	if len(songs) == 0 {
		songs = append(songs, Placeholder)
	}
	return Dedup(songs)
}

// Beams splits a prediction into B*beam sequences, row-major with each
// row's beams adjacent.
func Beams(p model.Prediction) [][]int32 {
	var out [][]int32
	for _, steps := range p.IDs {
		width := 1
		if len(steps) > 0 {
			width = len(steps[0])
		}
		for k := 0; k < width; k++ {
			seq := make([]int32, len(steps))
			for t := range steps {
				seq[t] = steps[t][k]
			}
			out = append(out, seq)
		}
	}
	return out
}

// Lines maps every beam of a prediction to one song-id line.
func Lines(v Vocabulary, p model.Prediction) [][]string {
	beams := Beams(p)
	lines := make([][]string, len(beams))
	for i, seq := range beams {
		lines[i] = SongIDs(v, seq)
	}
	return lines
}

// Format joins lines with newlines and their ids with spaces.
func Format(lines [][]string) string {
	rows := make([]string, len(lines))
	for i, l := range lines {
		rows[i] = strings.Join(l, " ")
	}
	return strings.Join(rows, "\n")
}
