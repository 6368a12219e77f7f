package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-meetings-client/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...internal/cmd.Version=v1.2.3".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the meetctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		figure.Write(out, figure.NewFigure(config.New().GetAppName(), "cybermedium", true))
		fmt.Fprintln(out)

		info := map[string]string{"version": Version}
		if bi, ok := debug.ReadBuildInfo(); ok {
			info["go"] = bi.GoVersion
		}
		return printResult(cmd, info)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
