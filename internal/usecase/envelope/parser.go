// Package envelope decodes the bracketed key/value text that agents produce
// and the JSON tool documents emitted by the tool-handler agent.
package envelope

import (
	"strings"

	"yinsen/internal/domain"
)

// keyToken marks one "[identifier]:" occurrence in the source text.
type keyToken struct {
	start int // index of '['
	end   int // index just past ':'
	key   string
}

// Parse scans text for "[key]: value" blocks and returns the normalised
// mapping. A value runs until the next key token or the end of input.
// Text before the first key token is ignored, and a '[' that does not open a
// well-formed key token is kept as part of the surrounding value. When a key
// repeats, the last occurrence wins.
func Parse(text string) domain.Envelope {
	tokens := scanKeys(text)
	env := make(domain.Envelope, len(tokens))
	for i, tok := range tokens {
		end := len(text)
		if i+1 < len(tokens) {
			end = tokens[i+1].start
		}
		env[tok.key] = normalize(text[tok.end:end])
	}
	return env
}

// scanKeys walks text once and collects every valid key token in order.
func scanKeys(text string) []keyToken {
	var tokens []keyToken
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		// Need at least one identifier byte followed by "]:".
		if j == i+1 || j+1 >= len(text) || text[j] != ']' || text[j+1] != ':' {
			continue
		}
		tokens = append(tokens, keyToken{start: i, end: j + 2, key: text[i+1 : j]})
		i = j + 1
	}
	return tokens
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

// normalize trims v and maps boolean literals and empty captures.
func normalize(v string) any {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return nil
	case strings.EqualFold(v, "true"):
		return true
	case strings.EqualFold(v, "false"):
		return false
	default:
		return v
	}
}
