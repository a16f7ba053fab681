package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cfgpkg "github.com/local/cropmargins/internal/config"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/settings"
	"github.com/local/cropmargins/internal/source"
)

func newInspectCmd(g *globalFlags) *cobra.Command {
	var (
		password    string
		fullPageBox []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <input.pdf|s3://bucket/key|https://...>",
		Short: "Print the boxes of every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("full-page-box") {
				s, err := settings.LoadFile(g.config)
				if err != nil {
					return err
				}
				fullPageBox = s.FullPageBox
			}
			precedence, err := pdfbox.ParseBoxTypes(fullPageBox)
			if err != nil {
				return err
			}

			fetcher := source.New(cfgpkg.FromEnv().Storage)
			local, err := fetcher.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer local.Cleanup()

			pbs, err := pdfbox.New().ReadBoundaries(local.Path, password)
			if err != nil {
				return err
			}
			full := pdfbox.FullPageBoxes(pbs, precedence)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"input": args[0], "pages": len(pbs), "full_boxes": full, "boundaries": pbs})
			}
			printBoundaries(cmd.OutOrStdout(), pbs, full)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password of an encrypted input")
	cmd.Flags().StringSliceVar(&fullPageBox, "full-page-box", nil, "Box types intersected to form the full page box")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printBoundaries(w io.Writer, pbs []pdfbox.PageBoundaries, full geometry.PageBoxList) {
	for i, pb := range pbs {
		fmt.Fprintln(w, titleStyle.Sprintf("page %d", i+1)+fmt.Sprintf("  rotation %d", pb.Rotation))
		line := func(name string, b *geometry.Box) {
			if b != nil {
				fmt.Fprintf(w, "  %-6s %s\n", name, b.Format(2))
			}
		}
		line("media", pb.Media)
		line("crop", pb.Crop)
		line("trim", pb.Trim)
		line("bleed", pb.Bleed)
		line("art", pb.Art)
		fmt.Fprintf(w, "  %-6s %s\n", "full", full[i].Format(2))
	}
}
