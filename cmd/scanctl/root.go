package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultBaseURL = "http://localhost:9000"

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "scanctl",
		Short: "Inspect scans and quality gates on the analysis backend.",
		Long: `scanctl talks to the analysis backend directly and renders scan
results and the quality-gate summary as terminal tables.

Settings resolve in order: flags, SCANCTL_* environment variables,
.scanctl.yaml in the working directory or $HOME, then defaults.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default .scanctl.yaml in . or $HOME)")
	flags.String("base-url", "", "analysis backend base URL")
	flags.String("token", "", "bearer token sent to the backend")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "error", "log level for backend requests (debug, info, warn, error)")
	_ = v.BindPFlags(flags)

	root.AddCommand(newScansCmd(v), newSummaryCmd(v), newVersionCmd())
	return root
}

func loadConfig(v *viper.Viper) error {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".scanctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("SCANCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("base-url", defaultBaseURL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if strings.TrimSpace(v.GetString("base-url")) == "" {
		return errors.New("base-url must not be empty")
	}
	lvl, err := zerolog.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	logger.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05", NoColor: v.GetBool("no-color")}, lvl)

	if v.GetBool("no-color") {
		color.NoColor = true
	}
	return nil
}

func newClient(v *viper.Viper) *analysis.Client {
	return analysis.NewClient(v.GetString("base-url"),
		analysis.WithToken(v.GetString("token")),
		analysis.WithHTTPClient(&http.Client{Timeout: v.GetDuration("timeout")}),
	)
}
