// Package vocab maps between external song ids and model token ids.
//
// A vocabulary file has one song id per line; the line index is the token
// id. Lines 0-3 hold the reserved tokens (padding, start, end, unknown).
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/playlistnet/internal/model"
)

// Vocab is a loaded vocabulary list plus its reverse dictionary.
type Vocab struct {
	words []string
	index map[string]int32
}

// New builds a vocabulary from words in token order.
func New(words []string) *Vocab {
	v := &Vocab{words: words, index: make(map[string]int32, len(words))}
	for i, w := range words {
		v.index[w] = int32(i) //nolint:gosec // vocabularies are far below 2^31 entries
	}
	return v
}

// Read reads one word per line from r.
func Read(r io.Reader) (*Vocab, error) {
	var words []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		words = append(words, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read: %w", err)
	}
	return New(words), nil
}

// Load reads the vocabulary file at path.
func Load(path string) (*Vocab, error) {
	//nolint:gosec // G304: path comes from the run configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return Read(f)
}

// Size returns the number of tokens.
func (v *Vocab) Size() int {
	return len(v.words)
}

// SongID returns the song id of a token, or "" when the token is out of range.
func (v *Vocab) SongID(token int32) string {
	if token < 0 || int(token) >= len(v.words) {
		return ""
	}
	return v.words[token]
}

// Token returns the token of a song id, or model.UnknownID.
func (v *Vocab) Token(songID string) int32 {
	if id, ok := v.index[songID]; ok {
		return id
	}
	return model.UnknownID
}

// Tokens maps a sequence of song ids.
func (v *Vocab) Tokens(songIDs []string) []int32 {
	out := make([]int32, len(songIDs))
	for i, s := range songIDs {
		out[i] = v.Token(s)
	}
	return out
}

// CountLines returns the number of lines in the file at path.
func CountLines(path string) (int, error) {
	//nolint:gosec // G304: path comes from the run configuration
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck // read-only

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
