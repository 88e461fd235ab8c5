package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/CaptainCrouton89/Saturn-sub003/internal/util"

	"github.com/pkoukk/tiktoken-go"
)

var sentenceEnd = regexp.MustCompile(`[.!?](\s+|$)`)

// splitIntoSentences splits free text into sentence-sized fragments.
// Lines without terminal punctuation are joined with the following lines
// until a sentence ends; blank lines always end the current sentence.
func splitIntoSentences(text string) []string {
	var sentences []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			sentences = append(sentences, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}

		rest := line
		for rest != "" {
			loc := sentenceEnd.FindStringIndex(rest)
			if loc == nil {
				current = append(current, rest)
				break
			}
			current = append(current, strings.TrimSpace(rest[:loc[1]]))
			flush()
			rest = strings.TrimSpace(rest[loc[1]:])
		}
	}
	flush()

	return sentences
}

// NormalizeText cleans raw source text and packs it into non-empty chunks of
// at most maxTokens tokens under the named tiktoken encoding. Sentences are
// never split across chunks. Empty input after cleaning is an error, since
// nothing downstream can work without content.
func NormalizeText(encoder string, maxTokens int, raw string) ([]string, error) {
	text := strings.TrimSpace(util.SanitizePostgresText(raw))
	if text == "" {
		return nil, fmt.Errorf("source text is empty after normalization")
	}

	enc, err := tiktoken.GetEncoding(encoder)
	if err != nil {
		return nil, err
	}

	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("source text contains no sentences")
	}

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
	}

	for _, sentence := range sentences {
		tokens := len(enc.Encode(sentence, nil, nil)) + 1
		if currentTokens+tokens > maxTokens && len(current) > 0 {
			flush()
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	flush()

	return chunks, nil
}

func (c *MemoryClient) normalize(raw string) ([]string, error) {
	return NormalizeText(c.tokenEncoder, c.maxChunkTokens, raw)
}
