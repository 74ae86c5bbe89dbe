package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List configured sites and the operations they support",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load backends: %w", err)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("SITE", "BACKEND", "BASE URL", "LIMIT", "OPERATIONS")
		for _, s := range reg.Sites() {
			ops := make([]string, 0, 8)
			for _, op := range s.Templates.Operations() {
				ops = append(ops, string(op))
			}
			sort.Strings(ops)
			t.Row(string(s.Name), string(s.Backend), s.BaseURL,
				fmt.Sprintf("%d/%d", s.Limit, s.MaxLimit), strings.Join(ops, " "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}
