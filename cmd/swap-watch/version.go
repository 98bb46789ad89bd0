package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		v := version
		if info, ok := debug.ReadBuildInfo(); ok && v == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		fmt.Fprintf(out, "swap-watch %s", v)
		if commit != "" && commit != "none" {
			fmt.Fprintf(out, " commit %s", commit)
		}
		if date != "" {
			fmt.Fprintf(out, " built %s", date)
		}
		fmt.Fprintln(out)

		if info, ok := debug.ReadBuildInfo(); ok {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/ethereum/go-ethereum" {
					fmt.Fprintf(out, "go-ethereum %s\n", dep.Version)
				}
			}
		}
		return nil
	},
}
