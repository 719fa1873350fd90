// Package locale holds the fixed table of supported locales: region-qualified
// tags, display names used in prompts, synthesis voices and canned apologies.
package locale

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tag is a region-qualified language code such as "hi-IN".
type Tag string

// Default is used whenever a detected code is empty or unknown.
const Default Tag = "en-IN"

// Entry is one row of the locale table.
type Entry struct {
	Tag     Tag    `yaml:"tag"`
	Name    string `yaml:"name"`
	Voice   string `yaml:"voice"`
	Apology string `yaml:"apology,omitempty"`
}

type table struct {
	Default Tag     `yaml:"default"`
	Locales []Entry `yaml:"locales"`
}

//go:embed locales.yaml
var rawTable []byte

var (
	byTag  map[Tag]Entry
	byBase map[string]Tag
)

func init() {
	var t table
	if err := yaml.Unmarshal(rawTable, &t); err != nil {
		panic(fmt.Sprintf("locale: invalid embedded table: %v", err))
	}
	if t.Default != Default {
		panic(fmt.Sprintf("locale: embedded default %q does not match %q", t.Default, Default))
	}
	byTag = make(map[Tag]Entry, len(t.Locales))
	byBase = make(map[string]Tag, len(t.Locales))
	for _, e := range t.Locales {
		byTag[e.Tag] = e
		byBase[base(string(e.Tag))] = e.Tag
	}
	if _, ok := byTag[Default]; !ok {
		panic("locale: default locale missing from table")
	}
}

func base(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

// Resolve maps a detected code ("hi", "hi-IN", "HI_in") to a supported tag.
// Unknown or empty codes resolve to Default.
func Resolve(code string) Tag {
	if t, ok := byBase[base(code)]; ok {
		return t
	}
	return Default
}

// Supported reports whether code maps to a table entry without defaulting.
func Supported(code string) bool {
	_, ok := byBase[base(code)]
	return ok
}

// Tags lists every supported tag in sorted order.
func Tags() []Tag {
	out := make([]Tag, 0, len(byTag))
	for t := range byTag {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Name is the English display name used in prompts.
func Name(t Tag) string {
	if e, ok := byTag[t]; ok {
		return e.Name
	}
	return "the user's language"
}

// Voice is the synthesis speaker for t.
func Voice(t Tag) string {
	if e, ok := byTag[t]; ok && e.Voice != "" {
		return e.Voice
	}
	return byTag[Default].Voice
}

// Apology is the canned fallback reply for t, English when t has none.
func Apology(t Tag) string {
	if e, ok := byTag[t]; ok && e.Apology != "" {
		return e.Apology
	}
	return byTag[Default].Apology
}

func (t Tag) String() string { return string(t) }
