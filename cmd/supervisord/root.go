package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "supervisord",
	Short: "Local supervisor for the llama and diffusion inference servers",
	Long:  "supervisord owns the llama.cpp and stable-diffusion.cpp child processes, arbitrates RAM/VRAM between them, and exposes an HTTP control API.",
}
