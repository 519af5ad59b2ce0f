package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// uploadResponse mirrors the record returned by POST /api/v1/assets.
type uploadResponse struct {
	ID       string    `json:"id"`
	ModelID  string    `json:"modelId"`
	Name     string    `json:"name"`
	AssetRef *assetRef `json:"assetRef,omitempty"`
	Draft    bool      `json:"draft"`
}

type assetRef struct {
	AssetID string `json:"assetId"`
	URL     string `json:"url,omitempty"`
}

func newUploadCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload SVG_FILE",
		Short: "Upload an SVG as a new managed asset",
		Long: `Upload an SVG file as a new asset and create the record referencing it.
This is the only path that creates first-time assets; the sync paths only
refresh existing ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(args[0], name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the file name)")

	return cmd
}

func runUpload(path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading SVG file: %w", err)
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	payload, err := json.Marshal(map[string]string{
		"source": string(data),
		"name":   name,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	body, err := globalClient.doRequest("POST", "/api/v1/assets", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	var rec uploadResponse
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	format, err := parseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	if format == outputTable {
		assetID := "-"
		url := "-"
		if rec.AssetRef != nil {
			assetID = rec.AssetRef.AssetID
			if rec.AssetRef.URL != "" {
				url = rec.AssetRef.URL
			}
		}
		fmt.Fprintf(os.Stdout, "Record:  %s\n", rec.ID)
		fmt.Fprintf(os.Stdout, "Name:    %s\n", rec.Name)
		fmt.Fprintf(os.Stdout, "Asset:   %s\n", assetID)
		fmt.Fprintf(os.Stdout, "URL:     %s\n", url)
		return nil
	}

	return printJSON(os.Stdout, rec)
}
