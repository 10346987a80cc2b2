package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comps-cli/internal/persist"
)

var profileCmd = &cobra.Command{
	Use:   "profile [table]",
	Short: "Show how the persister sees a destination table",
	Long:  "Introspects the destination table and prints the resolved id, category and segment columns, the conflict keys, the write mode and every value column that will be filled.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")

		table := cfg.Sync.Table
		if len(args) == 1 {
			table = args[0]
		}

		conn, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		prof, err := persist.Introspect(ctx, conn, table, persist.Options{IDColumn: cfg.Sync.IDColumn})
		if err != nil {
			return eris.Wrapf(err, "profile %s", table)
		}
		return writeProfile(cmd.OutOrStdout(), prof, output)
	},
}

func init() {
	profileCmd.Flags().StringP("output", "o", "table", "output format: table or yaml")
	rootCmd.AddCommand(profileCmd)
}

func writeProfile(w io.Writer, prof *persist.TableProfile, output string) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(prof); err != nil {
			return eris.Wrap(err, "profile: encode yaml")
		}
		return enc.Close()
	case "table", "":
		fmt.Fprintf(w, "Table:  %s\n", prof.Table)
		fmt.Fprintf(w, "Keys:   %s\n", strings.Join(prof.KeyColumns, ", "))
		fmt.Fprintf(w, "Mode:   %s\n\n", writeMode(prof))

		rows := make([][]string, 0, len(prof.Columns))
		for _, c := range prof.Columns {
			rows = append(rows, []string{c.Name, c.DataType, yesNo(c.Nullable), columnRole(prof, c.Name)})
		}
		fmt.Fprintln(w, renderTable([]string{"Column", "Type", "Nullable", "Role"}, rows, nil))
		return nil
	default:
		return eris.Errorf("profile: unknown output %q", output)
	}
}

func writeMode(prof *persist.TableProfile) string {
	if prof.HasUnique {
		return "upsert"
	}
	return "update-then-insert"
}

func columnRole(prof *persist.TableProfile, name string) string {
	var roles []string
	switch name {
	case prof.IDColumn:
		roles = append(roles, "id")
	case prof.CategoryColumn:
		roles = append(roles, "category")
	case prof.SegmentColumn:
		roles = append(roles, "segment")
	}
	switch {
	case slices.Contains(prof.KeyColumns, name):
		roles = append(roles, "key")
	case slices.Contains(prof.ValueColumns, name):
		roles = append(roles, "value")
	case slices.Contains(prof.TouchColumns, name):
		roles = append(roles, "touch")
	}
	if len(roles) == 0 {
		return "-"
	}
	return strings.Join(roles, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
