package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <llm|diffusion>",
	Short: "Print a managed server's lifecycle status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := controlURL(cmd) + "/api/servers/" + args[0] + "/status"

		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("reach supervisord (is it running?): %w", err)
		}
		defer resp.Body.Close()

		var info map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return fmt.Errorf("decode status response: %w", err)
		}

		pretty, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(pretty))
		return nil
	},
}

func controlURL(cmd *cobra.Command) string {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	return fmt.Sprintf("http://%s:%d", host, port)
}

func init() {
	statusCmd.Flags().String("host", "127.0.0.1", "control API host")
	statusCmd.Flags().Int("port", 8079, "control API port")
	rootCmd.AddCommand(statusCmd)
}
