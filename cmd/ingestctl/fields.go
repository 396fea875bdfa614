package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"template-ingest/internal/template/editable"
)

func newFieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <index.html>",
		Short: "Print the editable fields of a template as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			html, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}
			fields, err := editable.ExtractFields(string(html))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), fields)
		},
	}
}
