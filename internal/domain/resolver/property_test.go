package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFirstSuccessWins checks, for random mixes of good and bad sources,
// that sources run in priority order and nothing runs after a success.
func TestFirstSuccessWins(t *testing.T) {
	if testing.Short() {
		t.Skip("runs many sandbox sessions")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	parameters.MaxSize = 6
	properties := gopter.NewProperties(parameters)

	properties.Property("resolution stops at the first valid result", prop.ForAll(
		func(kinds []int) bool {
			sources := make(staticSources, len(kinds))
			names := make([]string, len(kinds))
			winner := -1
			for i, k := range kinds {
				names[i] = fmt.Sprintf("s%d", i)
				switch k {
				case 0:
					sources[i] = okSearch(names[i])
					if winner < 0 {
						winner = i
					}
				case 1:
					sources[i] = throwing(names[i])
				default:
					sources[i] = emptyList(names[i])
				}
			}

			e, rec := newEngine(t, sources)
			res, err := e.Search(context.Background(), SearchQuery{Keyword: "p"})

			switch {
			case len(sources) == 0:
				return err == nil && res.Message == NoSourcesMessage && len(rec.calls()) == 0
			case winner < 0:
				var agg *AggregateError
				return errors.As(err, &agg) && agg.Attempted == len(sources) &&
					reflect.DeepEqual(rec.calls(), names)
			default:
				return err == nil && res.Results[0].SourceName == names[winner] &&
					reflect.DeepEqual(rec.calls(), names[:winner+1])
			}
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
