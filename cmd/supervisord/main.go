// Command supervisord is the local control-plane process: it owns the
// llama and diffusion child processes, arbitrates RAM/VRAM between them,
// and exposes an HTTP control API for starting, stopping, and generating.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
