package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pipstrip/pipstrip/internal/featurepolicy"
	"github.com/spf13/cobra"
)

func newStripCmd() *cobra.Command {
	var feature string

	cmd := &cobra.Command{
		Use:   "strip [value]",
		Short: "Strip a feature from a Feature-Policy value read from the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 1 {
				raw = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				raw = strings.TrimRight(string(data), "\r\n")
			}

			value, ok := featurepolicy.StripFeature(raw, feature)
			if !ok {
				return nil
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}

	cmd.Flags().StringVar(&feature, "feature", featurepolicy.PictureInPicture, "Feature to remove")

	return cmd
}
