package main

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/resolver"
)

type invokeFlags struct {
	platform string
	keyword  string
	quality  string
	board    string
	track    string
	page     int
	limit    int
}

var invokeOperations = []string{"search", "url", "lyric", "pic", "ranking"}

func newInvokeCmd(opts *options) *cobra.Command {
	f := &invokeFlags{}
	cmd := &cobra.Command{
		Use:       "invoke <script.js> <operation>",
		Short:     "Run one operation against a script",
		Long:      "Operations: " + strings.Join(invokeOperations, ", "),
		Args:      cobra.ExactArgs(2),
		ValidArgs: invokeOperations,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, _, err := opts.load(args[0])
			if err != nil {
				return err
			}
			result, err := f.run(cmd, rt.Engine, args[1])
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&f.platform, "platform", "", "platform id passed to the script (default: script name)")
	cmd.Flags().StringVar(&f.keyword, "keyword", "", "search keyword")
	cmd.Flags().StringVar(&f.quality, "quality", "128k", "requested quality for url")
	cmd.Flags().StringVar(&f.board, "board", "", "ranking board id")
	cmd.Flags().StringVar(&f.track, "track", "", "track as a JSON object for url, lyric and pic")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.limit, "limit", 30, "page size")
	return cmd
}

func (f *invokeFlags) trackInfo() (map[string]any, error) {
	if f.track == "" {
		return nil, fmt.Errorf("--track is required")
	}
	var track map[string]any
	if err := sonic.UnmarshalString(f.track, &track); err != nil {
		return nil, fmt.Errorf("invalid --track: %w", err)
	}
	if f.platform != "" {
		track["source"] = f.platform
	}
	return track, nil
}

func (f *invokeFlags) run(cmd *cobra.Command, engine *resolver.Engine, op string) (any, error) {
	ctx := cmd.Context()
	switch op {
	case "search":
		if strings.TrimSpace(f.keyword) == "" {
			return nil, fmt.Errorf("--keyword is required")
		}
		return result(engine.Search(ctx, resolver.SearchQuery{Keyword: f.keyword, Page: f.page, Limit: f.limit, Platform: f.platform}))
	case "url":
		track, err := f.trackInfo()
		if err != nil {
			return nil, err
		}
		return result(engine.ResolveURL(ctx, track, f.quality))
	case "lyric":
		track, err := f.trackInfo()
		if err != nil {
			return nil, err
		}
		return result(engine.ResolveLyric(ctx, track))
	case "pic":
		track, err := f.trackInfo()
		if err != nil {
			return nil, err
		}
		return result(engine.ResolveCover(ctx, track))
	case "ranking":
		if f.platform == "" || f.board == "" {
			return nil, fmt.Errorf("--platform and --board are required")
		}
		return result(engine.RankingDetail(ctx, resolver.RankingQuery{Platform: f.platform, BoardID: f.board, Page: f.page, Limit: f.limit}))
	default:
		return nil, fmt.Errorf("unknown operation %q (want one of %s)", op, strings.Join(invokeOperations, ", "))
	}
}

// result drops typed nil pointers so failures print only the error
func result[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}
