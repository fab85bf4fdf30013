package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "docq",
		Short:         "docq compiles document filters into canonical query fragments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(compileCmd(), describeCmd(), resolveCmd())
	return cmd
}
