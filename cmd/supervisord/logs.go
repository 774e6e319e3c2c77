package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs <llm|diffusion>",
	Short: "Print a managed server's recent log lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, _ := cmd.Flags().GetInt("lines")
		url := fmt.Sprintf("%s/api/servers/%s/logs?lines=%d", controlURL(cmd), args[0], lines)

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("reach supervisord (is it running?): %w", err)
		}
		defer resp.Body.Close()

		var body struct {
			Lines []string `json:"lines"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode logs response: %w", err)
		}

		for _, line := range body.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().String("host", "127.0.0.1", "control API host")
	logsCmd.Flags().Int("port", 8079, "control API port")
	logsCmd.Flags().Int("lines", 200, "number of trailing log lines to print")
	rootCmd.AddCommand(logsCmd)
}
