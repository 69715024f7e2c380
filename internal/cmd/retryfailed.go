package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var retryFailedAddr string

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed <batch-id>",
	Short: "Requeue every Failed task of a running server's batch",
	Args:  cobra.ExactArgs(1),
	Long: `Requeue calls a running "ttsdispatch serve" instance's
POST /retry_failed/{batchID} endpoint.

Example:
  ttsdispatch retry-failed 3f29f39f-... --addr http://localhost:5055`,
	RunE: runRetryFailed,
}

func init() {
	rootCmd.AddCommand(retryFailedCmd)
	retryFailedCmd.Flags().StringVar(&retryFailedAddr, "addr", "http://localhost:5055", "base URL of a running ttsdispatch serve instance")
}

func runRetryFailed(cmd *cobra.Command, args []string) error {
	batchID := args[0]

	var result map[string]interface{}
	if err := postToServer(retryFailedAddr, fmt.Sprintf("/retry_failed/%s", batchID), &result); err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
