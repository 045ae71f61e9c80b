// Package cmd is for command line interactions with the mhm2p assembler
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use: "mhm2p",
	Short: `Assemble short reads into contigs over a distributed de Bruijn graph.
Ranks run as goroutines coordinated by an in-process communication fabric`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
