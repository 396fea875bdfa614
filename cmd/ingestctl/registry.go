package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"template-ingest/pkg/registry"
)

func newRegistryCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and maintain the activity registry",
	}
	cmd.PersistentFlags().StringVar(&path, "path", registry.DefaultPath, "Path to registry file")

	show := &cobra.Command{
		Use:   "show",
		Short: "List registered activities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK TYPE\tSTATUS\tVERSION\tMESSAGES")
			for _, a := range reg.Activities {
				messages := "-"
				if len(a.Messages) > 0 {
					messages = strings.Join(a.Messages, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.TaskType, a.ImplementationStatus, a.Version, messages)
			}
			return w.Flush()
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := reg.Validate(); err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d activities.\n", len(reg.Activities))
			return nil
		},
	}

	cmd.AddCommand(show, validate, newRegistryAddCommand(&path), newRegistrySetCommand(&path))
	return cmd
}

func newRegistryAddCommand(path *string) *cobra.Command {
	activity := registry.Activity{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadOrNew(*path)
			if err != nil {
				return err
			}
			activity.InputSchema = map[string]interface{}{}
			activity.OutputSchema = map[string]interface{}{}
			activity.ErrorCodes = []string{}
			activity.Workflows = []string{}
			activity.Tags = []string{}
			if err := reg.Add(activity); err != nil {
				return err
			}
			if err := registry.SaveRegistry(reg, *path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added activity: %s\n", activity.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&activity.ID, "id", "", "Activity ID (e.g., process-template-zip)")
	flags.StringVar(&activity.DisplayName, "display-name", "", "Display name")
	flags.StringVar(&activity.Description, "description", "", "Description")
	flags.StringVar(&activity.Category, "category", "", "Category (e.g., template)")
	flags.StringVar(&activity.TaskType, "task-type", "", "Zeebe task type (e.g., template.process-zip)")
	flags.StringVar(&activity.Version, "version", "1.0.0", "Version")
	flags.StringVar(&activity.ImplementationStatus, "status", registry.StatusPlanned, "planned, in-progress, completed or verified")
	flags.StringVar(&activity.Timeout, "timeout", "10s", "Job timeout")
	for _, name := range []string{"id", "display-name", "category", "task-type"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRegistrySetCommand(path *string) *cobra.Command {
	var id, field, value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update one field of an activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.LoadRegistry(*path)
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := reg.Update(id, field, value); err != nil {
				return err
			}
			if err := registry.SaveRegistry(reg, *path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated activity %s, field %s to %s\n", id, field, value)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Activity ID to update")
	cmd.Flags().StringVar(&field, "field", "", "Field to update (status, version, etc.)")
	cmd.Flags().StringVar(&value, "value", "", "New value for the field")
	for _, name := range []string{"id", "field", "value"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
