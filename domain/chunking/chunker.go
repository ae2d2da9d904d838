package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxTokens is the per-chunk budget used when none is configured.
const DefaultMaxTokens = 6000

const paragraphSeparator = "\n\n"

// A paragraph boundary is a line holding nothing but horizontal whitespace.
var blankLine = regexp.MustCompile(`\n[ \t\f\v]*\n`)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Chunker splits text into ordered pieces that each fit a token budget.
type Chunker struct {
	maxTokens int
	estimator TokenEstimator
}

// NewChunker creates a chunker. Non-positive budgets fall back to DefaultMaxTokens
// and a nil estimator falls back to HeuristicEstimator.
func NewChunker(maxTokens int, estimator TokenEstimator) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if estimator == nil {
		estimator = HeuristicEstimator{}
	}
	return &Chunker{maxTokens: maxTokens, estimator: estimator}
}

// MaxTokens returns the configured budget.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Split returns the non-empty, trimmed chunks of text in document order.
//
// Text within budget comes back as a single chunk. Otherwise paragraphs are packed greedily,
// and a paragraph that alone exceeds the budget is packed sentence by sentence instead.
// A sentence longer than the budget is emitted whole rather than cut mid-sentence.
// CRLF and CR line endings are normalized to LF first.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(lineEndings.Replace(text))
	if trimmed == "" {
		return []string{}
	}
	if c.fits(trimmed) {
		return []string{trimmed}
	}

	var chunks []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		if chunk := strings.TrimSpace(strings.Join(current, paragraphSeparator)); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current = nil
	}

	for _, paragraph := range blankLine.Split(trimmed, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if !c.fits(paragraph) {
			flush()
			chunks = append(chunks, c.splitParagraph(paragraph)...)
			continue
		}

		candidate := append(append([]string(nil), current...), paragraph)
		if c.fits(strings.Join(candidate, paragraphSeparator)) {
			current = candidate
			continue
		}
		flush()
		current = []string{paragraph}
	}
	flush()

	return chunks
}

func (c *Chunker) splitParagraph(paragraph string) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range Sentences(paragraph) {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		if current.Len() == 0 || c.fits(current.String()+sentence) {
			current.WriteString(sentence)
			continue
		}
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		current.WriteString(sentence)
	}
	if chunk := strings.TrimSpace(current.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Chunker) fits(text string) bool {
	return c.estimator.Estimate(text) <= c.maxTokens
}

// Sentences splits text after each sentence terminator, keeping the terminator and any
// following whitespace with the sentence so the pieces concatenate back to the input.
// Full-width terminators always end a sentence; ASCII ones only when followed by whitespace or the end.
func Sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size

		boundary := false
		switch r {
		case '。', '！', '？':
			boundary = true
		case '.', '!', '?':
			if next == len(text) {
				boundary = true
			} else {
				following, _ := utf8.DecodeRuneInString(text[next:])
				boundary = unicode.IsSpace(following)
			}
		}

		if boundary {
			for next < len(text) {
				ws, wsSize := utf8.DecodeRuneInString(text[next:])
				if !unicode.IsSpace(ws) {
					break
				}
				next += wsSize
			}
			out = append(out, text[start:next])
			start = next
		}
		i = next
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
