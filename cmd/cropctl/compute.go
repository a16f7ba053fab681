package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/local/cropmargins/internal/cropjob"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/settings"
)

type computeInput struct {
	Settings json.RawMessage      `json:"settings"`
	Full     geometry.PageBoxList `json:"full_boxes"`
	Content  geometry.PageBoxList `json:"content_boxes"`
	Blank    []bool               `json:"blank,omitempty"`
}

func newComputeCmd(g *globalFlags) *cobra.Command {
	var f settingsFlags
	cmd := &cobra.Command{
		Use:   "compute [request.json]",
		Short: "Compute crop boxes from full and content boxes read as JSON",
		Long: "Reads {\"settings\":{...},\"full_boxes\":[...],\"content_boxes\":[...]} from the\n" +
			"given file or stdin and prints the computed crop boxes as JSON.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				fh, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer fh.Close()
				in = fh
			}
			var req computeInput
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("decode compute request: %w", err)
			}

			base, err := settings.LoadFile(g.config)
			if err != nil {
				return err
			}
			s := base
			if raw := bytes.TrimSpace(req.Settings); len(raw) > 0 && string(raw) != "null" {
				if s, err = settings.Decode(bytes.NewReader(raw), base); err != nil {
					return err
				}
			}
			if err := f.apply(cmd.Flags(), &s); err != nil {
				return err
			}

			res, err := cropjob.Compute(cropjob.ComputeRequest{Settings: s, Full: req.Full, Content: req.Content, Blank: req.Blank})
			if err != nil {
				return err
			}
			printWarnings(cmd.ErrOrStderr(), res.Warnings)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f.register(cmd.Flags())
	return cmd
}
