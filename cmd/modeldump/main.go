// Command modeldump dumps the structure of a TorchScript model archive.
package main

import (
	"os"

	"github.com/spf13/afero"

	"github.com/kisielk/modeldump/internal/cli"
)

func main() {
	opts := cli.Options{
		Fs:     afero.NewOsFs(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if err := cli.Execute(opts, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
