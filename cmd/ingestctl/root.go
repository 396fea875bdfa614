package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"template-ingest/internal/common/logger"
)

var logLevel string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingestctl",
		Short:         "Template ingest tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newProcessCommand(),
		newFieldsCommand(),
		newThemeCommand(),
		newRegistryCommand(),
	)
	return root
}

func cliLogger() logger.Logger {
	return logger.NewStructured(logLevel, "console")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
