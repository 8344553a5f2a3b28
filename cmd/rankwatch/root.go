package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/FranksOps/rankwatch/internal/config"
)

// app carries state shared by subcommands.
type app struct {
	v         *viper.Viper
	logger    *slog.Logger
	logLevel  string
	logFormat string
	noColor   bool
	stderr    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), stderr: os.Stderr}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:           "rankwatch",
		Short:         "Keyword rank checker",
		Long:          "rankwatch looks up a site's Google position for every keyword in a list and compares it with an earlier run.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(a.logLevel, a.logFormat, a.stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			slog.SetDefault(logger)
			if a.noColor {
				color.NoColor = true
			}

			config.LoadEnv(logger)
			config.BindEnv(a.v)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text|json")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored console output")
	pf.String("spreadsheet-id", "", "Google Sheets spreadsheet id")
	pf.String("credentials-file", "", "Google service account JSON key")
	_ = a.v.BindPFlag(config.KeySpreadsheetID, pf.Lookup("spreadsheet-id"))
	_ = a.v.BindPFlag(config.KeyCredentials, pf.Lookup("credentials-file"))

	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newCompareCmd(a))
	return root
}

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
