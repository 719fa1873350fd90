package transcription

import (
	"regexp"
	"strings"
)

var (
	// The value group is optional: an empty, null or None code still marks
	// the line as metadata.
	languageKey   = regexp.MustCompile(`['"]?language_code['"]?\s*[:=]\s*(?:['"]?([A-Za-z]{2,3}(?:[-_][A-Za-z]{2})?)\b)?`)
	transcriptKey = regexp.MustCompile(`['"]transcript['"]\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)
)

// Output is the parsed stdout of the transcription helper.
type Output struct {
	Text string
	// LanguageCode is empty when the helper did not report one, or reported
	// an empty or null value.
	LanguageCode string
}

// ParseOutput accepts two shapes of helper output:
//
//   - a metadata line carrying language_code (Python dict, JSON or key=value
//     text) followed by the plain transcript on the last non-empty line;
//   - plain text with no language key, taken whole as the transcript.
//
// When the only line is the metadata itself, a "transcript" field in it is used.
func ParseOutput(stdout string) Output {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return Output{}
	}
	m := languageKey.FindStringSubmatch(trimmed)
	if m == nil {
		return Output{Text: trimmed}
	}
	out := Output{LanguageCode: m[1]}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if languageKey.MatchString(line) {
			break
		}
		out.Text = line
		return out
	}
	if t := transcriptKey.FindStringSubmatch(trimmed); t != nil {
		out.Text = strings.TrimSpace(t[1] + t[2])
	}
	return out
}
