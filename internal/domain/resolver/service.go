package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/ranking"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox/dispatch"
)

// SearchQuery is a keyword search
type SearchQuery struct {
	Keyword  string
	Page     int
	Limit    int
	Platform string // optional; defaults to each source's own id
}

// SearchGroup is one source's contribution to a search
type SearchGroup struct {
	SourceID   string   `json:"sourceId"`
	SourceName string   `json:"sourceName"`
	Data       ListData `json:"data"`
}

// SearchResult carries one group per successful source
type SearchResult struct {
	Keyword  string        `json:"keyword"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Policy   Policy        `json:"policy"`
	Results  []SearchGroup `json:"results"`
	Message  string        `json:"error,omitempty"`
	Attempts []Attempt     `json:"-"`
}

// URLResult is a playable URL and the source that produced it
type URLResult struct {
	URL      string    `json:"url"`
	Quality  string    `json:"quality"`
	Source   string    `json:"source"`
	Message  string    `json:"error,omitempty"`
	Attempts []Attempt `json:"-"`
}

// LyricResult holds the original and translated lyric
type LyricResult struct {
	Lyric    string    `json:"lyric"`
	TLyric   string    `json:"tlyric"`
	Source   string    `json:"source,omitempty"`
	Message  string    `json:"error,omitempty"`
	Attempts []Attempt `json:"-"`
}

// CoverResult holds a cover image URL; Pic is empty when none was found
type CoverResult struct {
	Pic      string    `json:"pic"`
	Source   string    `json:"source,omitempty"`
	Message  string    `json:"error,omitempty"`
	Attempts []Attempt `json:"-"`
}

// RankingQuery names a board on a platform
type RankingQuery struct {
	Platform string
	BoardID  string
	Page     int
	Limit    int
}

// RankingResult is one page of a ranking board
type RankingResult struct {
	SourceID  string    `json:"sourceId"`
	TopListID string    `json:"topListId"`
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	Total     int       `json:"total"`
	List      []any     `json:"list"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"error,omitempty"`
	Attempts  []Attempt `json:"-"`
}

func acceptList(v any) (any, bool) { return asList(v) }

func acceptURL(v any) (any, bool) {
	url, quality, ok := asURL(v)
	return [2]string{url, quality}, ok
}

func acceptLyric(v any) (any, bool) {
	lyric, tlyric, ok := asLyric(v)
	return [2]string{lyric, tlyric}, ok
}

func acceptCover(v any) (any, bool) { return asCover(v) }

// Search finds tracks by keyword under the configured policy
func (e *Engine) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if q.Page <= 0 {
		q.Page = dispatch.DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = dispatch.DefaultLimit
	}
	res := &SearchResult{Keyword: q.Keyword, Page: q.Page, Limit: q.Limit, Policy: e.cfg.SearchPolicy, Results: []SearchGroup{}}

	ctx, done := e.span(ctx, dispatch.Search)
	sources, err := e.enabled(ctx)
	if err != nil {
		done("failed", err)
		return nil, err
	}
	if len(sources) == 0 {
		res.Message = NoSourcesMessage
		done(resultOf(nil, true), nil)
		return res, nil
	}

	c := call{
		op:       dispatch.Search,
		platform: q.Platform,
		info:     dispatch.SearchInfo(q.Keyword, q.Page, q.Limit),
		accept:   acceptList,
	}

	switch e.cfg.SearchPolicy {
	case PolicyAggregate:
		err = e.searchAll(ctx, sources, c, res)
	case PolicyFirst:
		err = e.searchOne(ctx, sources[:1], c, res)
	default:
		err = e.searchOne(ctx, sources, c, res)
	}
	done(resultOf(err, false), err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) searchOne(ctx context.Context, sources []registry.Source, c call, res *SearchResult) error {
	h, attempts, err := e.fallback(ctx, sources, c)
	res.Attempts = attempts
	if err != nil {
		return err
	}
	res.Results = append(res.Results, group(h))
	return nil
}

// searchAll fans out over every source. Each goroutine owns its session.
func (e *Engine) searchAll(ctx context.Context, sources []registry.Source, c call, res *SearchResult) error {
	hits := make([]*hit, len(sources))
	attempts := make([]Attempt, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.SearchConcurrency)

	var mu sync.Mutex
	for i, src := range sources {
		g.Go(func() error {
			value, attempt, err := e.attempt(gctx, src, c)
			mu.Lock()
			defer mu.Unlock()
			attempts[i] = attempt
			errs[i] = err
			if err == nil {
				hits[i] = &hit{value: value, source: src}
			}
			// Individual failures never cancel siblings
			return nil
		})
	}
	_ = g.Wait()
	res.Attempts = attempts

	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for i, h := range hits {
		if h != nil {
			res.Results = append(res.Results, group(h))
		} else if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	if len(res.Results) == 0 {
		return &AggregateError{Operation: c.op, Attempted: len(sources), LastErr: lastErr, Attempts: attempts}
	}
	return nil
}

func group(h *hit) SearchGroup {
	return SearchGroup{SourceID: h.source.ID, SourceName: h.source.Name, Data: h.value.(ListData)}
}

// ResolveURL finds a playable URL for track. track["source"] names the
// platform the track came from.
func (e *Engine) ResolveURL(ctx context.Context, track map[string]any, quality string) (*URLResult, error) {
	if quality == "" {
		quality = dispatch.DefaultQuality
	}
	res := &URLResult{Quality: quality}

	h, attempts, err := e.single(ctx, call{
		op:       dispatch.ResolvePlayableURL,
		platform: text(track["source"]),
		info:     dispatch.URLInfo(track, quality),
		accept:   acceptURL,
	}, &res.Message)
	res.Attempts = attempts
	if err != nil || h == nil {
		return res, err
	}

	pair := h.value.([2]string)
	res.URL = pair[0]
	if pair[1] != "" {
		res.Quality = pair[1]
	}
	res.Source = h.source.Name
	return res, nil
}

// ResolveLyric finds lyrics for track
func (e *Engine) ResolveLyric(ctx context.Context, track map[string]any) (*LyricResult, error) {
	res := &LyricResult{}

	h, attempts, err := e.single(ctx, call{
		op:       dispatch.ResolveLyric,
		platform: text(track["source"]),
		info:     dispatch.TrackInfo(track),
		accept:   acceptLyric,
	}, &res.Message)
	res.Attempts = attempts
	if err != nil || h == nil {
		return res, err
	}

	pair := h.value.([2]string)
	res.Lyric, res.TLyric = pair[0], pair[1]
	res.Source = h.source.Name
	return res, nil
}

// ResolveCover finds a cover image for track
func (e *Engine) ResolveCover(ctx context.Context, track map[string]any) (*CoverResult, error) {
	res := &CoverResult{}

	h, attempts, err := e.single(ctx, call{
		op:       dispatch.ResolveCover,
		platform: text(track["source"]),
		info:     dispatch.TrackInfo(track),
		accept:   acceptCover,
	}, &res.Message)
	res.Attempts = attempts
	if err != nil || h == nil {
		return res, err
	}

	res.Pic = h.value.(string)
	res.Source = h.source.Name
	return res, nil
}

// RankingList returns the built-in board catalog
func (e *Engine) RankingList() []ranking.Platform {
	return e.catalog.Platforms()
}

// RankingDetail loads one page of a board from the first source that
// returns items for the board's platform
func (e *Engine) RankingDetail(ctx context.Context, q RankingQuery) (*RankingResult, error) {
	if q.Page <= 0 {
		q.Page = dispatch.DefaultPage
	}
	if q.Limit <= 0 {
		q.Limit = dispatch.DefaultLimit
	}
	res := &RankingResult{SourceID: q.Platform, TopListID: q.BoardID, Page: q.Page, Limit: q.Limit, List: []any{}}

	h, attempts, err := e.single(ctx, call{
		op:       dispatch.ResolveRankingDetail,
		platform: q.Platform,
		info:     dispatch.BoardInfo(q.BoardID, q.Page, q.Limit),
		accept:   acceptList,
	}, &res.Message)
	res.Attempts = attempts
	if err != nil || h == nil {
		return res, err
	}

	data := h.value.(ListData)
	res.List = data.List
	res.Total = data.Total
	res.Source = h.source.Name
	return res, nil
}

// single runs the strict first-success policy. With no enabled sources it
// returns a nil hit, a nil error and sets *message.
func (e *Engine) single(ctx context.Context, c call, message *string) (*hit, []Attempt, error) {
	ctx, done := e.span(ctx, c.op)

	sources, err := e.enabled(ctx)
	if err != nil {
		done("failed", err)
		return nil, nil, err
	}
	if len(sources) == 0 {
		*message = NoSourcesMessage
		done(resultOf(nil, true), nil)
		return nil, nil, nil
	}

	h, attempts, err := e.fallback(ctx, sources, c)
	done(resultOf(err, false), err)
	if err != nil {
		e.logger.Info("resolution failed", zap.String("operation", c.op.String()), zap.Int("attempted", len(attempts)), zap.Error(err))
	}
	return h, attempts, err
}

// Validate evaluates script the way a resolution would, without invoking
// any operation
func (e *Engine) Validate(ctx context.Context, script string) (*sandbox.Validation, error) {
	return e.host.Validate(ctx, script, e.cfg.ValidateSettle)
}

// ValidateScript adapts Validate for the source store
func (e *Engine) ValidateScript(ctx context.Context, script string) error {
	_, err := e.host.Validate(ctx, script, 0)
	return err
}
