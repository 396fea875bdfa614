package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"template-ingest/internal/template/editable"
)

func newThemeCommand() *cobra.Command {
	var (
		color   string
		inPlace bool
	)

	cmd := &cobra.Command{
		Use:   "theme <index.html>",
		Short: "Rewrite the template's --primary-color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}
			themed, err := editable.ApplyColorTheme(string(html), color)
			if err != nil {
				return err
			}
			if inPlace {
				return os.WriteFile(args[0], []byte(themed), 0o644)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), themed)
			return err
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "New primary color as #RRGGBB (required)")
	cmd.Flags().BoolVarP(&inPlace, "write", "w", false, "Write the result back to the file")
	_ = cmd.MarkFlagRequired("color")

	return cmd
}
