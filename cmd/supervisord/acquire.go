package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/forgebench/infersupervisor/internal/binaryacquire"
	"github.com/forgebench/infersupervisor/internal/config"
	"github.com/forgebench/infersupervisor/internal/supervisor"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <llm|diffusion>",
	Short: "Download a native server binary from a releases page",
	Long: `Scrape a GitHub-style releases HTML page for the asset matching
--pattern, download it, and verify it against --sha256 when given.

Examples:
  supervisord acquire llm --releases-url https://github.com/ggml-org/llama.cpp/releases/latest \
    --pattern 'linux-x64\.tar\.gz$'
  supervisord acquire diffusion --releases-url https://github.com/leejet/stable-diffusion.cpp/releases/latest \
    --pattern 'linux-x64\.tar\.gz$' --sha256 <hex>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var binaryName string
		switch args[0] {
		case "llm", "llama":
			binaryName = supervisor.LlamaBinaryName()
		case "diffusion":
			binaryName = supervisor.DiffusionBinaryName()
		default:
			return fmt.Errorf(`unknown target %q (want "llm" or "diffusion")`, args[0])
		}

		pageURL, _ := cmd.Flags().GetString("releases-url")
		if pageURL == "" {
			return fmt.Errorf("--releases-url is required")
		}
		patternStr, _ := cmd.Flags().GetString("pattern")
		if patternStr == "" {
			return fmt.Errorf("--pattern is required, e.g. 'linux-x64\\.tar\\.gz$'")
		}
		pattern, err := regexp.Compile(patternStr)
		if err != nil {
			return fmt.Errorf("compile --pattern: %w", err)
		}
		sha256sum, _ := cmd.Flags().GetString("sha256")

		binDir, _ := cmd.Flags().GetString("bin-dir")
		if binDir == "" {
			binDir = config.BinDir()
		}
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			return fmt.Errorf("create bin dir: %w", err)
		}

		finder := binaryacquire.NewPageFinder()
		ctx := cmd.Context()

		fmt.Printf("Looking up %s asset on %s...\n", binaryName, pageURL)
		asset, err := finder.Find(ctx, pageURL, pattern)
		if err != nil {
			return err
		}

		dest := filepath.Join(binDir, binaryName)
		fmt.Printf("Downloading %s -> %s\n", asset.URL, dest)
		if err := binaryacquire.Download(ctx, finder.HTTPClient, asset, dest, sha256sum); err != nil {
			return err
		}

		fmt.Printf("Saved to %s\n", dest)
		return nil
	},
}

func init() {
	acquireCmd.Flags().String("releases-url", "", "HTML releases page to scrape for the binary asset")
	acquireCmd.Flags().String("pattern", "", `regexp matched against release asset hrefs, e.g. 'linux-x64\.tar\.gz$'`)
	acquireCmd.Flags().String("sha256", "", "expected sha256 of the downloaded asset (skips verification when empty)")
	acquireCmd.Flags().String("bin-dir", "", "directory to save the binary into (default: the configured bin directory)")
	rootCmd.AddCommand(acquireCmd)
}
