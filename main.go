package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/projecteru2/scopelock/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	// Mirror the wrapped command's exit status for `scopelock run`.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
