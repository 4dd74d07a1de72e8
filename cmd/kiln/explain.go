package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kiln/internal/diag"
)

var (
	explainHeading = color.New(color.FgCyan, color.Bold)
	explainFamily  = color.New(color.FgYellow)
)

var explainCmd = &cobra.Command{
	Use:   "explain <code>",
	Short: "Explain a diagnostic code",
	Long:  `Explain prints the long-form description of a diagnostic code, e.g. K4001 or 5007`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := parseCode(args[0])
		if err != nil {
			return err
		}
		text := diag.Explain(code)
		if text == "" {
			return fmt.Errorf("unknown diagnostic code %s", code)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", explainHeading.Sprint(code.String()), explainFamily.Sprint(codeFamily(code)))
		fmt.Fprintln(out, text)
		return nil
	},
}

// parseCode accepts "K4001", "k4001" or a bare "4001".
func parseCode(s string) (diag.Code, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "K"), "k")
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("malformed diagnostic code %q", s)
	}
	return diag.Code(n), nil
}

func codeFamily(c diag.Code) string {
	switch {
	case c >= 4000 && c < 5000:
		return "type inference"
	case c >= 5000 && c < 6000:
		return "ownership and borrows"
	case c >= 7000 && c < 8000:
		return "code generation (internal limit)"
	default:
		return "general"
	}
}
