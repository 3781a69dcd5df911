package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vogeltak/reading-addiction/internal/common"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reading-addiction version %s\n", common.GetFullVersion())
		},
	}
}
