package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/workbench/internal/export"
	"github.com/rpattn/workbench/internal/filter"
)

func newFilterCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Inspect and edit project filters",
	}
	cmd.AddCommand(
		newFilterShowCommand(a),
		newFilterAddCommand(a),
		newFilterRemoveCommand(a),
		newFilterClearCommand(a),
		newFilterImportCommand(a),
		newFilterProjectsCommand(a),
		newFilterEvalCommand(a),
	)
	return cmd
}

func projectFlag(cmd *cobra.Command, project *string) {
	cmd.Flags().StringVarP(project, "project", "p", "", "project name")
	_ = cmd.MarkFlagRequired("project")
}

func newFilterShowCommand(a *app) *cobra.Command {
	var project string
	var asXML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active filter of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := a.filters(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if asXML {
				document, err := filters.Document(cmd.Context(), project)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(document)
				return err
			}

			set, err := filters.Active(cmd.Context(), project)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if set.Len() == 0 {
				fmt.Fprintln(out, set.Description())
				return nil
			}
			for _, rule := range set.Rules() {
				fmt.Fprintf(out, "%s  %s\n", rule.ID(), rule.Description())
			}
			return nil
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().BoolVar(&asXML, "xml", false, "print the stored XML document")
	return cmd
}

func newFilterAddCommand(a *app) *cobra.Command {
	var (
		project  string
		action   string
		typeName string
		field    string
		op       string
		value    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a rule to a project filter",
		Example: `  workbench filter add -p web --action exclude --field State --op IsEqualTo --value Closed
  workbench filter add -p web --type Bug --field Priority --op IsGreaterThan --value 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedAction, err := filter.ParseAction(action)
			if err != nil {
				return err
			}
			parsedOp, err := filter.ParseOperator(op)
			if err != nil {
				return err
			}

			filters, err := a.filters(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rule, err := filters.AddRule(cmd.Context(), project,
				filter.NewRuleWith(parsedAction, typeName, field, parsedOp, value))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s  %s\n", rule.ID(), rule.Description())
			return nil
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().StringVar(&action, "action", filter.Include.String(), "Include or Exclude")
	cmd.Flags().StringVar(&typeName, "type", filter.AnyType, "work item type the rule applies to")
	cmd.Flags().StringVar(&field, "field", "", "field name, or a built-in selector: Title/Caption, Description/Body, Effort/Metric, Owner")
	cmd.Flags().StringVar(&op, "op", filter.IsEqualTo.String(), "comparison operator")
	cmd.Flags().StringVar(&value, "value", "", "comparison value (empty means null)")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newFilterRemoveCommand(a *app) *cobra.Command {
	var project, id string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a rule by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", id, err)
			}
			filters, err := a.filters(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := filters.RemoveRule(cmd.Context(), project, ruleID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", ruleID)
			return nil
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().StringVar(&id, "id", "", "rule id as printed by filter show")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newFilterClearCommand(a *app) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every rule from a project filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := a.filters(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := filters.Clear(cmd.Context(), project); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filter.Text(filter.MsgNoFilter))
			return nil
		},
	}
	projectFlag(cmd, &project)
	return cmd
}

func newFilterImportCommand(a *app) *cobra.Command {
	var project, file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace a project filter with an XML filter collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			filters, err := a.filters(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := filters.Replace(cmd.Context(), project, document); err != nil {
				return err
			}
			description, err := filters.Description(cmd.Context(), project)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), description)
			return nil
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().StringVarP(&file, "file", "f", "", "XML document to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFilterProjectsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with a saved filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return err
			}
			projects, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, project := range projects {
				fmt.Fprintln(cmd.OutOrStdout(), project)
			}
			return nil
		},
	}
}

func newFilterEvalCommand(a *app) *cobra.Command {
	var project, items, out string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Apply a project filter to a CSV or Excel work item export",
		Long: `Apply a project filter to a CSV or Excel work item export.

--out takes a .csv or .xlsx path. A bare "csv" or "xlsx" writes a generated
file name into the configured export directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			filters, err := a.filters(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			result, err := a.ingestion().IngestFile(ctx, items)
			if err != nil {
				return err
			}
			for _, rowErr := range result.RowErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "row %d skipped: %s\n", rowErr.Row, rowErr.Message)
			}

			visible, description, err := filters.View(ctx, project, result.Items)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintln(stdout, description)
			fmt.Fprintf(stdout, "%d of %d items match\n", len(visible), len(result.Items))

			if out == "" {
				for _, item := range visible {
					fmt.Fprintf(stdout, "%d\t%s\t%s\n", item.ID, item.Type, item.Title)
				}
				return nil
			}

			view := export.View{Project: project, Description: description, Items: visible}
			var written export.Result
			switch format := export.Format(strings.ToLower(out)); format {
			case export.FormatCSV, export.FormatXLSX:
				written, err = a.exporter().Export(ctx, view, format)
			default:
				written, err = a.exporter().WriteFile(ctx, out, view)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "wrote %d rows to %s\n", written.Rows, written.Path)
			return nil
		},
	}
	projectFlag(cmd, &project)
	cmd.Flags().StringVarP(&items, "items", "i", "", "work items as .csv or .xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the filtered view to a .csv or .xlsx file")
	_ = cmd.MarkFlagRequired("items")
	return cmd
}
