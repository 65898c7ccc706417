package main

import (
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script.js>",
		Short: "Evaluate a script and report what it declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, src, err := opts.load(args[0])
			if err != nil {
				return err
			}
			v, err := rt.Engine.Validate(cmd.Context(), src.Script)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func newTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test <script.js>",
		Short: "Run search and ranking probes against a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, src, err := opts.load(args[0])
			if err != nil {
				return err
			}
			report, err := rt.Engine.Test(cmd.Context(), src)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}
