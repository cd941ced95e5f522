package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nemaec/nemaec-engine/pkg/apperrors"
	"github.com/nemaec/nemaec-engine/pkg/budget"
	"github.com/nemaec/nemaec-engine/pkg/config"
	"github.com/nemaec/nemaec-engine/pkg/models"
	"github.com/nemaec/nemaec-engine/pkg/spreadsheet"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	removedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// toolFlags are shared by the offline file commands.
type toolFlags struct {
	template  string
	strict    bool
	asJSON    bool
	tolerance string
	maxDepth  int
	limit     int
}

var (
	inspectFlags toolFlags
	diffFlags    toolFlags

	inspectCmd = &cobra.Command{
		Use:   "inspect <file>",
		Short: "Validate a schedule spreadsheet and print its budget tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0], inspectFlags)
		},
	}

	diffCmd = &cobra.Command{
		Use:   "diff <old-file> <new-file>",
		Short: "Compare two schedule spreadsheets and check the budget balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.OutOrStdout(), args[0], args[1], diffFlags)
		},
	}
)

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *toolFlags
	}{{inspectCmd, &inspectFlags}, {diffCmd, &diffFlags}} {
		c.cmd.Flags().StringVar(&c.flags.template, "template", "", "YAML column mapping (default: the standard schedule template)")
		c.cmd.Flags().BoolVar(&c.flags.asJSON, "json", false, "print JSON instead of text")
		c.cmd.Flags().IntVar(&c.flags.maxDepth, "rollup-max-depth", 0, "only roll up parents at or above this depth (0 = all)")
	}
	inspectCmd.Flags().BoolVar(&inspectFlags.strict, "strict", false, "treat missing dates as errors, as import does")
	inspectCmd.Flags().IntVar(&inspectFlags.limit, "errors", apperrors.DefaultDisplayLimit, "how many row errors to print")
	diffCmd.Flags().StringVar(&diffFlags.tolerance, "tolerance", "0", "largest balance still considered balanced")
}

func ingestFile(path string, flags toolFlags, mode spreadsheet.Mode) (*spreadsheet.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ingester, err := newIngester(&config.ImportConfig{TemplatePath: flags.template})
	if err != nil {
		return nil, err
	}
	return ingester.Ingest(filepath.Base(path), data, mode)
}

func runInspect(w io.Writer, path string, flags toolFlags) error {
	mode := spreadsheet.ModePreview
	if flags.strict {
		mode = spreadsheet.ModeFull
	}
	result, err := ingestFile(path, flags, mode)
	if err != nil {
		return err
	}
	tree := budget.NewCalculator(flags.maxDepth).Tree(result.Items)

	if flags.asJSON {
		return writeIndented(w, struct {
			*spreadsheet.Result
			Tree []models.TreeNode `json:"tree"`
		}{result, tree})
	}

	fmt.Fprintln(w, titleStyle.Render(filepath.Base(path)))
	fmt.Fprintln(w, result.Stats.Summary())
	for _, node := range tree {
		indent := strings.Repeat("  ", max(node.Depth-1, 0))
		line := fmt.Sprintf("%s%-12s %-40s %14s", indent, node.HierarchicalCode,
			truncate(node.Description, 40), node.DisplayTotal.StringFixed(2))
		if node.HasChildren {
			line = titleStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, modifiedStyle.Render(fmt.Sprintf("%d warnings", len(result.Warnings))))
		for _, warning := range result.Warnings {
			fmt.Fprintln(w, "  "+warning)
		}
	}
	if err := result.Err(flags.limit); err != nil {
		var verr *apperrors.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		shown, hidden := verr.Display()
		fmt.Fprintln(w, removedStyle.Render(fmt.Sprintf("%d errors", len(verr.Messages))))
		for _, msg := range shown {
			fmt.Fprintln(w, "  "+msg)
		}
		if hidden > 0 {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  ... and %d more", hidden)))
		}
		return err
	}
	return nil
}

func runDiff(w io.Writer, oldPath, newPath string, flags toolFlags) error {
	tolerance, err := (&config.ImportConfig{BalanceTolerance: flags.tolerance}).Tolerance()
	if err != nil {
		return err
	}

	var results [2]*spreadsheet.Result
	for i, path := range []string{oldPath, newPath} {
		r, err := ingestFile(path, flags, spreadsheet.ModeFull)
		if err != nil {
			return err
		}
		if err := r.Err(apperrors.DefaultDisplayLimit); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		results[i] = r
	}

	diff := budget.NewDiffer(tolerance).Diff(results[0].Items, results[1].Items)
	if flags.asJSON {
		return writeIndented(w, diff)
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s -> %s", filepath.Base(oldPath), filepath.Base(newPath))))
	for _, c := range diff.Added {
		fmt.Fprintln(w, addedStyle.Render(fmt.Sprintf("+ %-12s %-40s %14s", c.HierarchicalCode, truncate(c.After.Description, 40), c.Impact.StringFixed(2))))
	}
	for _, c := range diff.Removed {
		fmt.Fprintln(w, removedStyle.Render(fmt.Sprintf("- %-12s %-40s %14s", c.HierarchicalCode, truncate(c.Before.Description, 40), c.Impact.StringFixed(2))))
	}
	for _, c := range diff.Modified {
		fmt.Fprintln(w, modifiedStyle.Render(fmt.Sprintf("~ %-12s %-40s %14s", c.HierarchicalCode, truncate(c.After.Description, 40), c.Impact.StringFixed(2))))
		for _, fc := range c.Changes {
			fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("    %s: %s -> %s", fc.Field, fc.Before, fc.After)))
		}
	}

	fmt.Fprintf(w, "old total %s, new total %s, balance %s\n",
		diff.OldTotal.StringFixed(2), diff.NewTotal.StringFixed(2), diff.Balance.StringFixed(2))
	for _, alert := range diff.Alerts {
		style := addedStyle
		if !diff.IsBalanced {
			style = removedStyle
		}
		fmt.Fprintln(w, style.Render(alert))
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
