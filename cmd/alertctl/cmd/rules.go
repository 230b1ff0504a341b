package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/alert-engine/internal/app"
	"github.com/jwalitptl/alert-engine/internal/repository/postgres"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect alert rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a rules file, or the built-in rules when no file is given",
	Long: `Parse and build every rule in the file and check that each one refers
to a known alert type. Exits non-zero on the first problem.

Example:
  alertctl rules validate ./config/rules.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		catalog, err := app.LoadCatalog(path, postgres.DefaultAlertTypes())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		defs := catalog.Rules()
		if output == "json" {
			type ruleView struct {
				ID        string `json:"id"`
				Kind      string `json:"kind"`
				AlertType string `json:"alert_type"`
				Severity  string `json:"severity"`
				Window    string `json:"window"`
				Cooldown  string `json:"cooldown"`
			}
			views := make([]ruleView, 0, len(defs))
			for _, d := range defs {
				views = append(views, ruleView{d.ID, d.Kind, d.AlertType, d.Severity.String(), d.Window.String(), d.Cooldown.String()})
			}
			return printJSON(out, views)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RULE\tALERT TYPE\tSEVERITY\tWINDOW\tCOOLDOWN")
		for _, d := range defs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.AlertType, d.Severity, d.Window, d.Cooldown)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d rules OK\n", len(defs))
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
}
