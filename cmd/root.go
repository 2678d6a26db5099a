package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Voicechat is a mesh audio conferencing application.",
	Run: func(cmd *cobra.Command, args []string) {
		runRelay()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
