// Package main provides the svgsync CLI for managing a running
// svgsync-server. It is a management-plane tool that talks to the server's
// HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	serverURL    string
	outputFlag   string
	globalClient *syncClient
)

// syncClient wraps an HTTP client and the server base URL.
type syncClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// newSyncClient creates a new client targeting the given server URL.
func newSyncClient(baseURL string) *syncClient {
	return &syncClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
}

// doRequest performs an HTTP request and returns the response body bytes.
// It returns an error if the status code indicates a failure.
func (c *syncClient) doRequest(method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending request", "method", method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to svgsync server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		// Try to extract the error message from the JSON response.
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "svgsync",
		Short: "CLI for the svgsync server management plane",
		Long: `svgsync is a command-line tool for managing a running svgsync-server.

It provides commands for inspecting sync state, provisioning the managed
schema, uploading assets, triggering manual syncs, and migrating legacy
inline entries.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalClient = newSyncClient(serverURL)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8084", "svgsync server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json")

	// Register subcommands
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBootstrapCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
