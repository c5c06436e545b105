package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/rpmverify/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Status)
		}
		os.Exit(1)
	}
}
