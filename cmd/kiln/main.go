package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kiln/internal/prof"
	"kiln/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln compiler middle end and code generator",
	Long:  `Kiln checks types and ownership over the typed IR and emits x86-64 assembly`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(targetCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	rootCmd.PersistentFlags().String("cpuprofile", "", "write a CPU profile to the given path")
	rootCmd.PersistentFlags().String("memprofile", "", "write a heap profile to the given path on exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("color")
		if err := applyColorMode(mode); err != nil {
			return err
		}
		if path, _ := cmd.Flags().GetString("cpuprofile"); path != "" {
			return prof.StartCPU(path)
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("cpuprofile"); path != "" {
			prof.StopCPU()
		}
		if path, _ := cmd.Flags().GetString("memprofile"); path != "" {
			return prof.WriteMem(path)
		}
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyColorMode(mode string) error {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "auto":
		color.NoColor = !isTerminal(os.Stdout)
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
