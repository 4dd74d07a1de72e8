package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kiln/internal/target"
)

var (
	targetHeading = color.New(color.FgCyan, color.Bold)
	targetLabel   = color.New(color.FgGreen)
)

var targetCmd = &cobra.Command{
	Use:   "target [file.toml]",
	Short: "Show a target's register file",
	Long:  `Target prints the register description the allocator would use: the builtin x86-64 file, or one loaded from a TOML override`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var desc *target.Desc
		if len(args) == 1 {
			loaded, err := target.LoadFile(args[0])
			if err != nil {
				return err
			}
			desc = loaded
		} else {
			desc = target.X8664()
		}
		if err := desc.Validate(); err != nil {
			return fmt.Errorf("invalid target description: %w", err)
		}
		renderTarget(cmd.OutOrStdout(), desc)
		return nil
	},
}

func renderTarget(out io.Writer, desc *target.Desc) {
	fmt.Fprintf(out, "%s\n", targetHeading.Sprint(desc.Name))
	fmt.Fprintf(out, "%s %d bytes, stack aligned to %d, frame limit %d\n",
		targetLabel.Sprint("pointers:"), desc.PtrSize, desc.StackAlign, desc.FrameLimit)
	fmt.Fprintf(out, "%s %s\n", targetLabel.Sprint("gp:"), regLine(desc.GP))
	if len(desc.FP) > 0 {
		fmt.Fprintf(out, "%s %s\n", targetLabel.Sprint("fp:"), regLine(desc.FP))
	}
	fmt.Fprintf(out, "%s %s / %s\n", targetLabel.Sprint("args:"),
		strings.Join(desc.ArgsGP, " "), strings.Join(desc.ArgsFP, " "))
	ret := desc.RetGP
	if desc.RetFP != "" {
		ret += " / " + desc.RetFP
	}
	fmt.Fprintf(out, "%s %s\n", targetLabel.Sprint("ret:"), ret)
}

func regLine(regs []target.Reg) string {
	parts := make([]string, 0, len(regs))
	for _, r := range regs {
		name := r.Name
		if r.CalleeSaved {
			name += "*"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " ") + "  (* callee-saved)"
}
