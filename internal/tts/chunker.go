package tts

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the largest chunk, in characters, sent in one request.
const DefaultMaxChunkSize = 700

// sentenceTerminators end a sentence in Urdu and Latin script.
const sentenceTerminators = "۔؟.?!"

// Chunker packs sentences into request-sized chunks.
type Chunker struct {
	maxSize int
}

// NewChunker creates a chunker. A non-positive size selects DefaultMaxChunkSize.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	return &Chunker{maxSize: maxSize}
}

// MaxSize returns the chunk size limit in characters.
func (c *Chunker) MaxSize() int {
	return c.maxSize
}

// Split breaks text into chunks of at most MaxSize characters, cutting only at
// sentence boundaries. A single sentence longer than the limit is emitted as
// its own oversized chunk. Empty or whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)

	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		curLen = 0
	}

	for _, sentence := range SplitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		if curLen+n > c.maxSize && curLen > 0 {
			flush()
		}
		current.WriteString(sentence)
		curLen += n
	}
	flush()

	return chunks
}

// SplitSentences returns the sentences of text in order. Each sentence keeps
// its terminators and the whitespace that follows it, so joining the result
// reproduces text exactly. Text after the last terminator is the final sentence.
func SplitSentences(text string) []string {
	var (
		sentences []string
		start     int
		inTerm    bool
	)

	for i, r := range text {
		isTerm := strings.ContainsRune(sentenceTerminators, r)
		switch {
		case isTerm:
			inTerm = true
		case inTerm && !isSpace(r):
			sentences = append(sentences, text[start:i])
			start = i
			inTerm = false
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	return sentences
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
