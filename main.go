package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cl "github.com/sekolahku/docgate/client"
	kv "github.com/sekolahku/docgate/kv/cmd"
	sr "github.com/sekolahku/docgate/server"
)

var rootCmd = &cobra.Command{
	Use:           "docgate",
	Short:         "document store gateway for the school app",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(sr.CMD)
	rootCmd.AddCommand(kv.CMD)
	cl.RegisterCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
