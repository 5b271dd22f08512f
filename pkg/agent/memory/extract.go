package memory

import (
	"regexp"
	"strings"
)

var (
	// "Key: value" on its own line.
	colonFact = regexp.MustCompile(`^\s*[-*]?\s*([A-Za-z][A-Za-z0-9 _\-]{0,40}?)\s*:\s*(.+?)\s*$`)
	// "the key is value" inside a sentence.
	isFact = regexp.MustCompile(`(?i)\b(?:the\s+)?([a-z][a-z0-9_\- ]{1,40}?)\s+(?:is|are|was)\s+([^.;\n]{1,120})`)
)

// ExtractFacts pulls simple key/value statements out of a run's outcome
// text. Keys are lowercased with spaces replaced by underscores; later
// statements win over earlier ones with the same key.
func ExtractFacts(text string) map[string]string {
	facts := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		if m := colonFact.FindStringSubmatch(line); m != nil {
			if strings.HasPrefix(m[2], "//") {
				continue
			}
			if k := normalizeFactKey(m[1]); k != "" {
				facts[k] = strings.TrimSpace(m[2])
			}
			continue
		}
		for _, m := range isFact.FindAllStringSubmatch(line, -1) {
			if k := normalizeFactKey(m[1]); k != "" {
				facts[k] = strings.TrimSpace(m[2])
			}
		}
	}
	return facts
}

func normalizeFactKey(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	// Long subjects are usually whole clauses, not keys.
	if len(words) == 0 || len(words) > 4 {
		return ""
	}
	switch words[0] {
	case "it", "this", "that", "there", "he", "she", "they", "i", "we", "you":
		return ""
	}
	return strings.Join(words, "_")
}
