package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/MusicHub/backend/internal/sandbox"
)

const (
	testInterval = 10 * time.Millisecond
	testCeiling  = 150 * time.Millisecond
)

func setup(t *testing.T) (*sandbox.Host, *Dispatcher) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := sandbox.DefaultConfig()
	cfg.SessionTimeout = 3 * time.Second
	return sandbox.NewHost(cfg, nil, logger), New(Config{PollInterval: testInterval, PollCeiling: testCeiling}, logger)
}

func session(t *testing.T, h *sandbox.Host, script string) *sandbox.Session {
	t.Helper()
	s, err := h.Create(context.Background(), "test", script)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

var wy = sandbox.SourceRef{ID: "wy", Name: "网易"}

const handlerScript = `
lx.on(lx.EVENT_NAMES.request, async ({ action, source, info }) => {
  switch (action) {
    case 'musicSearch':
      return { list: [{ name: info.keyword, source: source.id, page: info.page, limit: info.limit, type: info.type }], total: 1 }
    case 'musicUrl':
      return 'http://cdn/' + source + '/' + info.musicInfo.id + '?q=' + info.type
    case 'lyric':
      return { lyric: '[00:01]' + info.musicInfo.id }
    case 'board':
      return { list: [info.id, info.boardId], total: 2 }
  }
  throw new Error('action not support')
})`

const exportScript = `
async function search(info, source) {
  return { list: [{ name: info.keyword, source: source.id, page: info.page, limit: info.limit, type: info.type }], total: 1 }
}
function getMusicUrl(info, source) {
  return 'http://cdn/' + source + '/' + info.musicInfo.id + '?q=' + info.type
}
const getLyric = (info) => ({ lyric: '[00:01]' + info.musicInfo.id })
let getTopListDetail = async (info) => ({ list: [info.id, info.boardId], total: 2 })
`

func TestConventionsAreEquivalent(t *testing.T) {
	h, d := setup(t)

	requests := []Request{
		{Operation: Search, Platform: wy, Info: map[string]any{"keyword": "七里香"}},
		{Operation: ResolvePlayableURL, Platform: wy, Info: URLInfo(map[string]any{"id": "42"}, "320k")},
		{Operation: ResolveLyric, Platform: wy, Info: TrackInfo(map[string]any{"id": "42"})},
		{Operation: ResolveRankingDetail, Platform: wy, Info: BoardInfo("3778678", 0, 0)},
	}

	for _, req := range requests {
		t.Run(req.Operation.String(), func(t *testing.T) {
			a, err := d.Invoke(session(t, h, handlerScript), req)
			require.NoError(t, err)
			b, err := d.Invoke(session(t, h, exportScript), req)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		})
	}
}

func TestSearchDefaults(t *testing.T) {
	h, d := setup(t)

	out, err := d.Invoke(session(t, h, handlerScript), Request{
		Operation: Search,
		Platform:  wy,
		Info:      map[string]any{"keyword": "x"},
	})
	require.NoError(t, err)

	item := out.(map[string]any)["list"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(DefaultPage), item["page"])
	assert.Equal(t, float64(DefaultLimit), item["limit"])
	assert.Equal(t, DefaultType, item["type"])
	assert.Equal(t, "wy", item["source"])
}

func TestUnsupportedWaitsForCeiling(t *testing.T) {
	h, d := setup(t)
	s := session(t, h, "var nothing = true")

	start := time.Now()
	_, err := d.Invoke(s, Request{Operation: ResolveCover, Platform: wy})
	elapsed := time.Since(start)

	var nse *sandbox.NotSupportedError
	require.True(t, errors.As(err, &nse), "got %v", err)
	assert.Equal(t, "pic", nse.Action)
	assert.ErrorIs(t, err, sandbox.ErrOperationNotSupported)
	assert.GreaterOrEqual(t, elapsed, testCeiling)
}

func TestLateRegistration(t *testing.T) {
	h, d := setup(t)
	s := session(t, h, `
function getPic() { return 'from-export' }
setTimeout(() => lx.on('request', () => 'from-handler'), 40)
`)

	out, err := d.Invoke(s, Request{Operation: ResolveCover, Platform: wy})
	require.NoError(t, err)
	assert.Equal(t, "from-handler", out)
}

func TestExportUsedOnceIdle(t *testing.T) {
	h, d := setup(t)
	s := session(t, h, "function getPic() { return 'http://img/1.jpg' }")

	start := time.Now()
	target, err := d.Probe(s, ResolveCover)
	require.NoError(t, err)
	assert.Equal(t, Export, target.Kind)
	assert.Less(t, time.Since(start), testCeiling)
}

func TestErrorPayload(t *testing.T) {
	h, d := setup(t)
	s := session(t, h, "function getMusicUrl() { return { error: 'quota exceeded' } }")

	_, err := d.Invoke(s, Request{Operation: ResolvePlayableURL, Platform: wy})
	require.ErrorIs(t, err, sandbox.ErrScriptRuntime)
	assert.Equal(t, "quota exceeded", sandbox.Message(err))
}

func TestScriptExceptionIsValue(t *testing.T) {
	h, d := setup(t)
	s := session(t, h, handlerScript)

	_, err := d.Invoke(s, Request{Operation: ResolveCover, Platform: wy})
	require.ErrorIs(t, err, sandbox.ErrScriptRuntime)
	assert.Equal(t, "action not support", sandbox.Message(err))
}

func TestActionTable(t *testing.T) {
	tests := []struct {
		op      Operation
		handler string
		export  string
	}{
		{Search, "musicSearch", "search"},
		{ResolvePlayableURL, "musicUrl", "getMusicUrl"},
		{ResolveLyric, "lyric", "getLyric"},
		{ResolveCover, "pic", "getPic"},
		{ResolveRankingList, "getTopList", "getTopList"},
		{ResolveRankingDetail, "board", "getTopListDetail"},
	}

	require.Len(t, Operations(), len(tests))
	for _, tt := range tests {
		a, err := ActionFor(tt.op)
		require.NoError(t, err)
		assert.Equal(t, tt.handler, a.Handler)
		assert.Equal(t, tt.export, a.Export)

		op, err := ParseOperation(tt.handler)
		require.NoError(t, err)
		assert.Equal(t, tt.op, op)
	}

	_, err := ActionFor("bogus")
	assert.Error(t, err)
	_, err = ParseOperation("bogus")
	assert.Error(t, err)
}

func TestWithDefaults(t *testing.T) {
	in := map[string]any{"keyword": "k", "page": 3, "limit": 0}
	out := WithDefaults(Search, in)

	assert.Equal(t, 3, out["page"])
	assert.Equal(t, DefaultLimit, out["limit"])
	assert.Equal(t, DefaultType, out["type"])
	assert.Equal(t, 0, in["limit"], "input must not be modified")

	assert.Equal(t, DefaultQuality, WithDefaults(ResolvePlayableURL, nil)["type"])
	assert.NotContains(t, WithDefaults(ResolveLyric, nil), "page")
}
