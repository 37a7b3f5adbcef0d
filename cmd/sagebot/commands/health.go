package commands

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `sagebot health` command. It probes the
// dashboard /health endpoint; used by Docker HEALTHCHECK and monitoring.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running daemon's health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			address, _ := cmd.Flags().GetString("address")
			if strings.HasPrefix(address, ":") {
				address = "localhost" + address
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + address + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			fmt.Println(strings.TrimSpace(string(body)))

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: HTTP %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().String("address", ":8080", "dashboard address to probe")
	return cmd
}
