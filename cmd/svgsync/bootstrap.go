package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// bootstrapResponse mirrors the server's /api/v1/bootstrap response.
type bootstrapResponse struct {
	State          string `json:"state"`
	ManagedModelID string `json:"managedModelId,omitempty"`
	Provisioned    bool   `json:"provisioned"`
}

func newBootstrapCmd() *cobra.Command {
	var provision bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Reconcile the managed schema",
		Long: `Run one reconciliation pass against the record store. If the managed
schema already exists it is adopted and the server becomes READY. With
--provision, an absent schema is created instead of leaving the server
uninitialized.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(provision)
		},
	}

	cmd.Flags().BoolVar(&provision, "provision", false, "Create the managed schema if it does not exist")

	return cmd
}

func runBootstrap(provision bool) error {
	path := "/api/v1/bootstrap"
	if provision {
		path += "?provision=true"
	}

	body, err := globalClient.doRequest("POST", path, nil)
	if err != nil {
		return err
	}

	var resp bootstrapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	if format == outputTable {
		modelID := resp.ManagedModelID
		if modelID == "" {
			modelID = "-"
		}
		provisioned := "no"
		if resp.Provisioned {
			provisioned = "yes"
		}
		fmt.Fprintf(os.Stdout, "State:          %s\n", resp.State)
		fmt.Fprintf(os.Stdout, "Managed Model:  %s\n", modelID)
		fmt.Fprintf(os.Stdout, "Provisioned:    %s\n", provisioned)
		return nil
	}

	return printJSON(os.Stdout, resp)
}
