// Package main is the entry point for gsadapt, a content adaptor framework
// that bridges a document repository to a search indexer.
package main

import (
	"log"
	"os"

	"github.com/docuhub/gsadapt/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
