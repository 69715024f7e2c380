package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var continueAddr string

var continueCmd = &cobra.Command{
	Use:   "continue <folder>",
	Short: "Resume a batch folder's missing .mp3 outputs",
	Args:  cobra.ExactArgs(1),
	Long: `Continue calls a running "ttsdispatch serve" instance's
POST /api/continue/{folder} endpoint, which creates one new batch holding
every .md source file in folder whose .mp3 output is still missing.

Example:
  ttsdispatch continue batch_1700000000_abcd1234 --addr http://localhost:5055`,
	RunE: runContinue,
}

func init() {
	rootCmd.AddCommand(continueCmd)
	continueCmd.Flags().StringVar(&continueAddr, "addr", "http://localhost:5055", "base URL of a running ttsdispatch serve instance")
}

func runContinue(cmd *cobra.Command, args []string) error {
	folder := args[0]

	var result map[string]interface{}
	if err := postToServer(continueAddr, fmt.Sprintf("/api/continue/%s", folder), &result); err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
