package sandbox

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	headerBlock = regexp.MustCompile(`^\s*/\*[\s\S]+?\*/`)
	headerTag   = regexp.MustCompile(`(?m)^[\s*]*@(\w+)\s+(.+?)\s*$`)
	stripMarkup = bluemonday.StrictPolicy()
)

// Field limits applied to header values
var headerLimits = map[string]int{
	"name":        24,
	"description": 36,
	"author":      56,
	"homepage":    1024,
	"version":     36,
}

// DefaultScriptName is used when a script header carries no @name
const DefaultScriptName = "Custom Source"

// ParseScriptInfo reads the leading /** @name ... */ block of a script.
// Values are stripped of markup and truncated.
func ParseScriptInfo(script string) ScriptInfo {
	info := ScriptInfo{Name: DefaultScriptName, Version: "1.0.0"}

	block := headerBlock.FindString(script)
	if block == "" {
		return info
	}

	for _, m := range headerTag.FindAllStringSubmatch(block, -1) {
		key := strings.ToLower(m[1])
		limit, ok := headerLimits[key]
		if !ok {
			continue
		}
		val := clean(m[2], limit)
		if val == "" {
			continue
		}

		switch key {
		case "name":
			info.Name = val
		case "description":
			info.Description = val
		case "version":
			info.Version = val
		case "author":
			info.Author = val
		case "homepage":
			info.Homepage = val
		}
	}
	return info
}

func clean(s string, limit int) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), "*/")
	s = html.UnescapeString(stripMarkup.Sanitize(s))
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}
