package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "spanner",
	Short: "Spanner is the session middleware in front of the spleis person lookup",
	Long: `Spanner sits between the case-worker frontend and the spleis person API.
It owns the login flow, keeps tokens fresh and writes a tamper-evident audit
trail of every person access.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
