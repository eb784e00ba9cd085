package main

import (
	"fmt"
	"os"

	"github.com/arthur-debert/treetx/cmd/treetx"
	"github.com/arthur-debert/treetx/pkg/output/styles"
)

func main() {
	rootCmd := treetx.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		errorStyle := styles.GetStyle("Error")
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(treetx.ExitCode(err))
	}
}
