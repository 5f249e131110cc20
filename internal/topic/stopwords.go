package topic

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Stopwords is the filler-token table the fallback extractor discards. It
// is configuration, not logic: a profile can override the built-in list
// without touching the ranking algorithm.
type Stopwords map[string]struct{}

// defaultStopwords is the built-in closed list of common conversational
// filler.
var defaultStopwords = []string{
	"about", "after", "again", "also", "because", "been", "before",
	"being", "could", "does", "doing", "dont", "each", "from", "good",
	"great", "have", "hello", "here", "just", "know", "like", "lets",
	"maybe", "more", "need", "okay", "only", "over", "please", "really",
	"should", "some", "sure", "thanks", "that", "them", "then", "there",
	"they", "thing", "think", "this", "very", "want", "well", "were",
	"what", "when", "will", "with", "would", "yeah", "your",
}

// DefaultStopwords returns the built-in table.
func DefaultStopwords() Stopwords {
	sw := make(Stopwords, len(defaultStopwords))
	for _, w := range defaultStopwords {
		sw[w] = struct{}{}
	}
	return sw
}

// LoadStopwords reads a one-word-per-line override file. Blank lines and
// #-comments are skipped.
func LoadStopwords(path string) (Stopwords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stopwords: %w", err)
	}
	defer func() { _ = f.Close() }()

	sw := make(Stopwords)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		sw[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stopwords: %w", err)
	}
	return sw, nil
}

// Contains reports whether word is in the table.
func (s Stopwords) Contains(word string) bool {
	_, ok := s[word]
	return ok
}
