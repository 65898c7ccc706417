package dispatch

// Parameter defaults applied before a script sees info
const (
	DefaultPage    = 1
	DefaultLimit   = 30
	DefaultType    = "music"
	DefaultQuality = "128k"
)

// WithDefaults copies info and fills fields many scripts assume are set.
// page and limit are filled for paged operations; type means the search
// kind for Search and the quality for ResolvePlayableURL.
func WithDefaults(op Operation, info map[string]any) map[string]any {
	out := make(map[string]any, len(info)+3)
	for k, v := range info {
		out[k] = v
	}

	switch op {
	case Search:
		setDefault(out, "page", DefaultPage)
		setDefault(out, "limit", DefaultLimit)
		setDefault(out, "type", DefaultType)
	case ResolveRankingDetail, ResolveRankingList:
		setDefault(out, "page", DefaultPage)
		setDefault(out, "limit", DefaultLimit)
	case ResolvePlayableURL:
		setDefault(out, "type", DefaultQuality)
	}
	return out
}

func setDefault(m map[string]any, key string, value any) {
	switch v := m[key].(type) {
	case nil:
		m[key] = value
	case string:
		if v == "" {
			m[key] = value
		}
	case int:
		if v <= 0 {
			m[key] = value
		}
	case float64:
		if v <= 0 {
			m[key] = value
		}
	}
}

// SearchInfo builds the info payload for Search
func SearchInfo(keyword string, page, limit int) map[string]any {
	return WithDefaults(Search, map[string]any{"keyword": keyword, "page": page, "limit": limit})
}

// URLInfo builds the info payload for ResolvePlayableURL
func URLInfo(track map[string]any, quality string) map[string]any {
	return WithDefaults(ResolvePlayableURL, map[string]any{"type": quality, "musicInfo": track})
}

// TrackInfo builds the info payload for ResolveLyric and ResolveCover
func TrackInfo(track map[string]any) map[string]any {
	return map[string]any{"musicInfo": track}
}

// BoardInfo builds the info payload for ResolveRankingDetail. Scripts read
// either id or boardId.
func BoardInfo(boardID string, page, limit int) map[string]any {
	return WithDefaults(ResolveRankingDetail, map[string]any{"id": boardID, "boardId": boardID, "page": page, "limit": limit})
}
