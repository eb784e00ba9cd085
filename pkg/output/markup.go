package output

import (
	"regexp"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var tagPattern = regexp.MustCompile(`<(/?)([A-Z][A-Za-z]*)>`)

// ExpandTags renders every <Name>text</Name> span with the matching style.
// Tags with no registered style are dropped and their text kept. Nested
// spans are rendered innermost first.
func ExpandTags(text string, registry map[string]lipgloss.Style, renderer *lipgloss.Renderer) string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	result := text
	for changed := true; changed; {
		changed = false
		for _, name := range names {
			pattern := spanPattern(name)
			style := registry[name]
			if renderer != nil {
				style = style.Renderer(renderer)
			}
			expanded := pattern.ReplaceAllStringFunc(result, func(match string) string {
				return style.Render(pattern.FindStringSubmatch(match)[1])
			})
			if expanded != result {
				result = expanded
				changed = true
			}
		}
	}
	return StripTags(result)
}

// StripTags removes style tags and keeps their text.
func StripTags(text string) string {
	return tagPattern.ReplaceAllString(text, "")
}

var (
	spanMu       sync.Mutex
	spanPatterns = map[string]*regexp.Regexp{}
)

func spanPattern(name string) *regexp.Regexp {
	spanMu.Lock()
	defer spanMu.Unlock()
	if p, ok := spanPatterns[name]; ok {
		return p
	}
	p := regexp.MustCompile(`<` + name + `>((?s:[^<]*?))</` + name + `>`)
	spanPatterns[name] = p
	return p
}
