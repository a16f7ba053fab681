package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	cfgpkg "github.com/local/cropmargins/internal/config"
	"github.com/local/cropmargins/internal/cropjob"
	"github.com/local/cropmargins/internal/measure"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/source"
)

func newCropCmd(g *globalFlags) *cobra.Command {
	var (
		f      settingsFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "crop <input.pdf|s3://bucket/key|https://...>",
		Short: "Measure page content and write crop boxes into a copy of the PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !measure.Available() {
				return errors.New("no page renderer available in this build")
			}
			s, err := loadSettings(cmd, g, &f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			runner := newRunner()
			res, err := runner.Run(ctx, cropjob.Request{ID: "cli", Input: args[0], Output: output, Settings: s})
			if err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%d of %d pages)\n", okStyle.Sprint("cropped"), res.Output, len(res.Selected), res.Pages)
			if res.CropData != "" {
				fmt.Fprintf(out, "crop data: %s\n", res.CropData)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path or s3:// URL (default <input>_cropped.pdf)")
	f.register(cmd.Flags())
	return cmd
}

func newRunner() *cropjob.Runner {
	cfg := cfgpkg.FromEnv()
	return &cropjob.Runner{
		Sources:    source.New(cfg.Storage),
		Boundaries: pdfbox.New(),
		Measurer:   measure.New(nil),
	}
}
