package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// statusResponse mirrors the server's /api/v1/status response.
type statusResponse struct {
	State              string `json:"state"`
	ManagedModelID     string `json:"managedModelId,omitempty"`
	ConfigVersion      string `json:"configVersion,omitempty"`
	LegacyEntriesCount int    `json:"legacyEntriesCount"`
	UptimeSeconds      int64  `json:"uptimeSeconds"`
}

// healthResponse mirrors the server's health endpoint response.
type healthResponse struct {
	Status string `json:"status"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show svgsync server status",
		Long: `Show the state of the svgsync server: whether the managed schema is
provisioned, the current configuration version, and how many legacy inline
entries are still waiting to be migrated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	healthBody, err := globalClient.doRequest("GET", "/healthz", nil)
	if err != nil {
		return fmt.Errorf("checking server health: %w", err)
	}

	var health healthResponse
	if err := json.Unmarshal(healthBody, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	statusBody, err := globalClient.doRequest("GET", "/api/v1/status", nil)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	var status statusResponse
	if err := json.Unmarshal(statusBody, &status); err != nil {
		return fmt.Errorf("parsing status response: %w", err)
	}

	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	if format == outputTable {
		modelID := status.ManagedModelID
		if modelID == "" {
			modelID = "-"
		}
		configVersion := status.ConfigVersion
		if configVersion == "" {
			configVersion = "-"
		}
		fmt.Fprintf(os.Stdout, "Server:          %s\n", serverURL)
		fmt.Fprintf(os.Stdout, "Health:          %s\n", health.Status)
		fmt.Fprintf(os.Stdout, "State:           %s\n", status.State)
		fmt.Fprintf(os.Stdout, "Managed Model:   %s\n", modelID)
		fmt.Fprintf(os.Stdout, "Config Version:  %s\n", truncate(configVersion, 16))
		fmt.Fprintf(os.Stdout, "Legacy Entries:  %d\n", status.LegacyEntriesCount)
		fmt.Fprintf(os.Stdout, "Uptime:          %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
		return nil
	}

	combined := map[string]any{
		"server": serverURL,
		"health": health,
		"status": status,
	}

	return printJSON(os.Stdout, combined)
}
