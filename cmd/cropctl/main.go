package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	logpkg "github.com/local/cropmargins/internal/logger"
)

const appName = "cropctl"

var (
	Version   = "0.1.0"
	CommitSha = "unknown"
)

var (
	appDir      = filepath.Join(xdg.StateHome, "cropmargins")
	settingsDir = filepath.Join(xdg.ConfigHome, "cropmargins")

	warnStyle  = color.New(color.FgHiYellow)
	okStyle    = color.New(color.FgHiGreen)
	titleStyle = color.New(color.Bold, color.FgHiWhite)
)

type globalFlags struct {
	verbose  bool
	logLevel string
	config   string
	logFile  string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   appName,
		Short: "Compute and apply PDF crop boxes",
		Long: color.New(color.FgHiMagenta).Sprintf(
			"Crop PDF margins by measuring page content. %s",
			color.New(color.FgBlue).Sprintf("(%s-%s)", Version, CommitSha),
		),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := g.logLevel
			if g.verbose {
				level = "debug"
			}
			return logpkg.Init(logpkg.Options{
				Level:      level,
				Pretty:     true,
				File:       g.logFile,
				MaxSizeMB:  10,
				MaxBackups: 3,
				Component:  "cropctl",
				Console:    cmd.ErrOrStderr(),
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) { logpkg.Close() },
	}
	root.SetOut(stdout)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log each page measurement")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level for the console and log file")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", filepath.Join(appDir, appName+".log"), "Rotated log file, empty to disable")
	root.PersistentFlags().StringVarP(&g.config, "config", "c", filepath.Join(settingsDir, "settings.toml"), "TOML settings file applied before flags")

	root.AddCommand(newCropCmd(g), newComputeCmd(g), newInspectCmd(g))
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		log.Debug().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, color.New(color.FgHiRed).Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintln(w, warnStyle.Sprint("warning: ")+msg)
	}
}
