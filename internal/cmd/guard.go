package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calder/gantry/internal/guard"
)

// NewGuardCommand creates the guard command
func NewGuardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard [directory]",
		Short: "Scan a directory tree for a forbidden marker string",
		Long: `Scan a directory tree for a forbidden marker string.

The same scan runs inside workflows as a guard step. Standalone, it lets
you check a tree before committing. Every match is printed as
file:line, and the command exits non-zero when any match is found.

Binary files and VCS or tool directories (.git, node_modules, vendor,
.gantry, ...) are never scanned.

Examples:
  gantry guard --marker "DO NOT SUBMIT"
  gantry guard --marker "FIXME" --path "**/*.py" src/
  gantry guard --marker "TODO" --exclude "docs/**" .`,
		Args: cobra.MaximumNArgs(1),
		RunE: guardCommand,
	}

	cmd.Flags().String("marker", "", "Literal text to search for (required)")
	cmd.Flags().StringSlice("path", nil, "Glob pattern(s) to include (default: all files)")
	cmd.Flags().StringSlice("exclude", nil, "Glob pattern(s) to exclude")
	cmd.MarkFlagRequired("marker")

	return cmd
}

// guardCommand implements the guard command logic
func guardCommand(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	marker, _ := cmd.Flags().GetString("marker")
	paths, _ := cmd.Flags().GetStringSlice("path")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")

	scanner := guard.NewScanner(marker)
	scanner.Paths = paths
	scanner.Exclude = exclude

	matches, err := scanner.Scan(cmd.Context(), root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, m := range matches {
		fmt.Fprintf(out, "%s:%d: %s\n", m.File, m.Line, m.Text)
	}

	if len(matches) > 0 {
		return fmt.Errorf("%w: %d occurrence(s) of %q",
			guard.ErrMarkerFound, len(matches), marker)
	}

	fmt.Fprintf(out, "No occurrences of %q found.\n", marker)
	return nil
}
