package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ddbridge/internal/ui"
)

var domainCmd = &cobra.Command{
	Use:   "domain DOMAIN",
	Short: "List the fixed value texts of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		values, err := a.reader.ReadDomainValues(cmd.Context(), a.cfg.Warehouse.MetadataDataset, args[0])
		if err != nil {
			return err
		}
		if len(values) == 0 {
			ui.ShowInfo(fmt.Sprintf("Domain %s has no fixed values", args[0]))
			return nil
		}
		for _, v := range values {
			fmt.Fprintln(ui.Output, v)
		}
		return nil
	}),
}

var checkFieldCmd = &cobra.Command{
	Use:   "checkfield CHECKTABLE DOMAIN",
	Short: "Find the field of a check table that uses a domain",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		field, err := a.reader.ReadCheckField(cmd.Context(), a.cfg.Warehouse.MetadataDataset, args[0], args[1])
		if err != nil {
			return err
		}
		if field == "" {
			ui.ShowInfo(fmt.Sprintf("No field of %s uses domain %s", args[0], args[1]))
			return nil
		}
		fmt.Fprintln(ui.Output, field)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(domainCmd, checkFieldCmd)
}
