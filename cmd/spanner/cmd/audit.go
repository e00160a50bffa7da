package cmd

import "github.com/spf13/cobra"

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail tools",
	Long:  `Commands for exporting and verifying the person-access audit trail.`,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
