package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/server"
)

type options struct {
	verbose bool
	timeout string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "sourcectl",
		Short: "Validate and exercise music source scripts",
		Long: `sourcectl loads a source script into the same sandbox the server uses
and either validates it or runs one operation against it.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log sandbox activity to stderr")
	cmd.PersistentFlags().StringVar(&opts.timeout, "timeout", "", "session timeout, e.g. 10s (default from SANDBOX_SESSION_TIMEOUT)")

	cmd.AddCommand(newValidateCmd(opts), newInvokeCmd(opts), newTestCmd(opts))
	return cmd
}

// staticSources serves one script as the only enabled source
type staticSources []registry.Source

func (s staticSources) ListEnabled(context.Context) ([]registry.Source, error) {
	return s, nil
}

// load reads a script file and builds a runtime around it
func (o *options) load(path string) (*server.Runtime, registry.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, registry.Source{}, fmt.Errorf("read script: %w", err)
	}

	cfg := config.LoadOrDefault()
	if o.timeout != "" {
		d, err := time.ParseDuration(o.timeout)
		if err != nil || d <= 0 {
			return nil, registry.Source{}, fmt.Errorf("invalid --timeout %q", o.timeout)
		}
		cfg.Sandbox.SessionTimeout = d
	}

	logger := logging.NewNop()
	if o.verbose {
		logger = logging.FromLevel("debug", true)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	src := registry.Source{ID: name, Name: name, Type: "custom", Script: string(data), Enabled: true}
	rt, err := server.NewRuntime(cfg, staticSources{src}, logger.Logger, nil, nil)
	if err != nil {
		return nil, registry.Source{}, err
	}
	return rt, src, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
