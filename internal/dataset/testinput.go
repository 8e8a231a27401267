package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/playlistnet/internal/model"
)

// Dictionary maps external song ids to tokens.
type Dictionary interface {
	Token(songID string) int32
}

// ReadInputs reads inference playlists (one space-separated line of song
// ids each) and their seed songs (one per line). Each playlist is cut to
// maxLen-1 songs, mapped through dict, terminated with model.EndID and
// zero-padded to maxLen. Invalid UTF-8 is dropped.
func ReadInputs(playlists, seeds io.Reader, dict Dictionary, maxLen int) (model.Inputs, error) {
	lines, err := readLines(playlists)
	if err != nil {
		return model.Inputs{}, fmt.Errorf("dataset: read playlists: %w", err)
	}
	seedLines, err := readLines(seeds)
	if err != nil {
		return model.Inputs{}, fmt.Errorf("dataset: read seeds: %w", err)
	}
	if len(seedLines) < len(lines) {
		return model.Inputs{}, fmt.Errorf("dataset: %d playlists but only %d seeds", len(lines), len(seedLines))
	}

	in := model.Inputs{
		EncoderIDs: make([][]int32, len(lines)),
		EncoderLen: make([]int32, len(lines)),
		SeedIDs:    make([]int32, len(lines)),
	}
	for i, line := range lines {
		songs := strings.Fields(line)
		if len(songs) > maxLen-1 {
			songs = songs[:maxLen-1]
		}
		row := make([]int32, maxLen)
		for t, song := range songs {
			row[t] = dict.Token(song)
		}
		row[len(songs)] = model.EndID
		in.EncoderIDs[i] = row
		in.EncoderLen[i] = int32(len(songs) + 1) //nolint:gosec // bounded by maxLen
		in.SeedIDs[i] = dict.Token(strings.TrimSpace(seedLines[i]))
	}
	return in, nil
}

// ReadInputFiles is ReadInputs over files.
func ReadInputFiles(playlistPath, seedPath string, dict Dictionary, maxLen int) (model.Inputs, error) {
	//nolint:gosec // G304: path comes from the run configuration
	pf, err := os.Open(playlistPath)
	if err != nil {
		return model.Inputs{}, fmt.Errorf("dataset: %w", err)
	}
	defer pf.Close() //nolint:errcheck // read-only

	//nolint:gosec // G304: path comes from the run configuration
	sf, err := os.Open(seedPath)
	if err != nil {
		return model.Inputs{}, fmt.Errorf("dataset: %w", err)
	}
	defer sf.Close() //nolint:errcheck // read-only

	return ReadInputs(pf, sf, dict, maxLen)
}

// ReadTargets reads reference playlists for scoring, one line of song ids
// per inference row.
func ReadTargets(path string) ([][]string, error) {
	//nolint:gosec // G304: path comes from the run configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: read targets: %w", err)
	}
	targets := make([][]string, len(lines))
	for i, line := range lines {
		targets[i] = strings.Fields(line)
	}
	return targets, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.ToValidUTF8(sc.Text(), ""))
	}
	return lines, sc.Err()
}
