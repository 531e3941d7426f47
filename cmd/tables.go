package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ddbridge/internal/common"
	"ddbridge/internal/provision"
	"ddbridge/internal/schema"
	"ddbridge/internal/ui"
	"ddbridge/pkg/errors"
)

var createTableCmd = &cobra.Command{
	Use:   "create-table DATASET.TABLE",
	Short: "Create a table from its data dictionary definition",
	Long: `Create a warehouse table whose columns are derived from the DD03L rows of
the same SAP table in the metadata dataset. An existing table is left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(false, runCreateTable),
}

var createViewCmd = &cobra.Command{
	Use:   "create-view DATASET.VIEW",
	Short: "Create a view from a SQL file or --sql",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, runCreateView),
}

var tableInfoCmd = &cobra.Command{
	Use:   "table-info DATASET.TABLE",
	Short: "Show row count, size and schema of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, runTableInfo),
}

var schemaCmd = &cobra.Command{
	Use:   "schema TABLE",
	Short: "Show the dictionary fields of a table and the columns they map to",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, runSchema),
}

var (
	createTableDryRun bool
	viewSQL           string
	viewFile          string
)

func init() {
	rootCmd.AddCommand(createTableCmd, createViewCmd, tableInfoCmd, schemaCmd)

	createTableCmd.Flags().BoolVarP(&createTableDryRun, "dry-run", "d", false, "Show the planned columns without creating the table")
	createViewCmd.Flags().StringVar(&viewSQL, "sql", "", "View query")
	createViewCmd.Flags().StringVarP(&viewFile, "file", "f", "", "File holding the view query")
}

func runCreateTable(cmd *cobra.Command, a *app, args []string) error {
	dataset, table, err := splitTable(args[0])
	if err != nil {
		return err
	}
	metaDataset := a.cfg.Warehouse.MetadataDataset

	if createTableDryRun {
		columns, err := a.provisioner.PlanTable(cmd.Context(), metaDataset, table)
		if err != nil {
			return err
		}
		fmt.Fprint(ui.Output, schema.NewVisualizer(ui.SupportsColor()).DisplayColumns(columns))
		return nil
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Creating %s.%s", dataset, table))
	spinner.Start()
	outcome, err := a.provisioner.CreateTable(cmd.Context(), metaDataset, dataset, table)
	if err != nil {
		spinner.Stop(false, fmt.Sprintf("%s.%s", dataset, table))
		return err
	}
	spinner.Stop(true, fmt.Sprintf("%s.%s", dataset, table))

	if outcome == provision.OutcomeCreated {
		ui.ShowSuccess(fmt.Sprintf("Created table %s.%s", dataset, table))
	} else {
		ui.ShowInfo(fmt.Sprintf("Table %s.%s already exists", dataset, table))
	}
	return nil
}

func runCreateView(cmd *cobra.Command, a *app, args []string) error {
	dataset, view, err := splitTable(args[0])
	if err != nil {
		return err
	}

	sql := viewSQL
	if viewFile != "" {
		path, err := common.CleanPath(viewFile)
		if err != nil {
			return errors.InvalidArgument("file", err.Error())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read view file: %w", err)
		}
		sql = string(data)
	}
	if strings.TrimSpace(sql) == "" {
		return errors.InvalidArgument("sql", "pass --sql or --file")
	}

	res := a.provisioner.CreateView(cmd.Context(), dataset, view, sql)
	if res.Created {
		ui.ShowSuccess(fmt.Sprintf("Created view %s.%s", dataset, view))
		return nil
	}
	ui.ShowWarning(fmt.Sprintf("View %s.%s was not created: %v", dataset, view, res.Err))
	return nil
}

func runTableInfo(cmd *cobra.Command, a *app, args []string) error {
	dataset, table, err := splitTable(args[0])
	if err != nil {
		return err
	}
	info, err := a.reader.GetTable(cmd.Context(), dataset, table)
	if err != nil {
		return err
	}
	ui.RenderTableInfo(ui.Output, info)
	if len(info.Schema) > 0 {
		fmt.Fprint(ui.Output, schema.NewVisualizer(ui.SupportsColor()).DisplayColumns(info.Schema))
	}
	return nil
}

func runSchema(cmd *cobra.Command, a *app, args []string) error {
	metaDataset := a.cfg.Warehouse.MetadataDataset
	specs, err := a.reader.ReadMetadataSchema(cmd.Context(), metaDataset, args[0])
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		ui.ShowWarning(fmt.Sprintf("No dictionary rows for %s in %s", args[0], metaDataset))
		return nil
	}

	v := schema.NewVisualizer(ui.SupportsColor())
	columns := schema.Map(specs)
	ui.PrintSection("Dictionary fields")
	fmt.Fprint(ui.Output, v.DisplayFieldSpecs(specs))
	ui.PrintSection("Warehouse columns")
	fmt.Fprint(ui.Output, v.DisplayColumns(columns))
	fmt.Fprintln(ui.Output, v.Summary(columns))
	return nil
}
