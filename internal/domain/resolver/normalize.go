package resolver

import (
	"strconv"
	"strings"
)

// ListData is a page of items returned by Search and ranking operations
type ListData struct {
	List  []any `json:"list"`
	Total int   `json:"total"`
	Page  int   `json:"page,omitempty"`
	Limit int   `json:"limit,omitempty"`
}

// asList accepts a bare array or {list, total}; it requires at least one item
func asList(v any) (ListData, bool) {
	switch x := v.(type) {
	case []any:
		return ListData{List: x, Total: len(x)}, len(x) > 0
	case map[string]any:
		list, _ := x["list"].([]any)
		if len(list) == 0 {
			return ListData{}, false
		}
		d := ListData{List: list, Total: toInt(x["total"]), Page: toInt(x["page"]), Limit: toInt(x["limit"])}
		if d.Total < len(list) {
			d.Total = len(list)
		}
		return d, true
	}
	return ListData{}, false
}

// asURL accepts a URL string or {url, type|quality}
func asURL(v any) (url, quality string, ok bool) {
	switch x := v.(type) {
	case string:
		url = x
	case map[string]any:
		url = text(x["url"])
		quality = text(x["type"])
		if quality == "" {
			quality = text(x["quality"])
		}
	}
	url = strings.TrimSpace(url)
	return url, quality, url != ""
}

// asLyric accepts any non-null value: a string or {lyric|lrc, tlyric}
func asLyric(v any) (lyric, tlyric string, ok bool) {
	switch x := v.(type) {
	case nil:
		return "", "", false
	case string:
		return x, "", true
	case map[string]any:
		lyric = text(x["lyric"])
		if lyric == "" {
			lyric = text(x["lrc"])
		}
		return lyric, text(x["tlyric"]), true
	default:
		return text(x), "", true
	}
}

// asCover accepts any non-null value: a string, {url} or {pic}
func asCover(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case map[string]any:
		if u := text(x["url"]); u != "" {
			return u, true
		}
		return text(x["pic"]), true
	default:
		return text(x), true
	}
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func toInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int64:
		return int(x)
	case int:
		return x
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}
