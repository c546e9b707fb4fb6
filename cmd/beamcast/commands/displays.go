package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/strandlight/beamcast/internal/display"
)

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List attached displays",
	Long: `List the displays the display server reports, with geometry and
refresh rate. The IDs shown here are what display outputs reference in
the config file; display_id 0 always means the primary display.`,
	Example: `  # List displays in table format (default)
  beamcast displays

  # List displays in JSON format
  beamcast displays --format json`,
	RunE: runDisplays,
}

var displaysFormat string

func init() {
	rootCmd.AddCommand(displaysCmd)

	displaysCmd.Flags().StringVarP(&displaysFormat, "format", "f", "table", "output format (table or json)")
}

func runDisplays(cmd *cobra.Command, args []string) error {
	infos, err := display.ListDisplays()
	if err != nil {
		return fmt.Errorf("failed to list displays: %w", err)
	}

	switch displaysFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "table":
		return printDisplaysTable(infos)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", displaysFormat)
	}
}

func printDisplaysTable(infos []display.DisplayInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tGEOMETRY\tPOSITION\tREFRESH\tPRIMARY")
	fmt.Fprintln(w, "--\t----\t--------\t--------\t-------\t-------")

	for _, d := range infos {
		primary := "No"
		if d.Primary {
			primary = "Yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%dx%d\t%d,%d\t%.2f Hz\t%s\n",
			d.ID, d.Name, d.Width, d.Height, d.X, d.Y, d.RefreshHz, primary)
	}

	return nil
}
