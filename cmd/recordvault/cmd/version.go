package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the release tag, stamped at build time via
// -ldflags "-X github.com/recordvault/recordvault/cmd/recordvault/cmd.Version=v1.2.3".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the recordvault version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recordvault %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
