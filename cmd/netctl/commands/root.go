// Package commands implements the netctl CLI commands.
package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the HTTP client used for all admin API requests.
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// serverAddr is the nethost admin API address (host:port).
	serverAddr string

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for netctl.
var rootCmd = &cobra.Command{
	Use:   "netctl",
	Short: "CLI client for the nethost admin API",
	Long:  "netctl talks to a running nethost's admin HTTP API to inspect clients, bound objects, and message types.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "127.0.0.1:8088",
		"nethost admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(clientsCmd())
	rootCmd.AddCommand(objectsCmd())
	rootCmd.AddCommand(messageTypesCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// adminURL builds the full URL for an admin API path.
func adminURL(path string) string {
	return "http://" + serverAddr + path
}

// getJSON issues a GET request against the admin API and decodes the JSON
// response body into out.
func getJSON(path string, out any) error {
	resp, err := httpClient.Get(adminURL(path))
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// doRequest issues a request with the given method and optional JSON body
// against the admin API, returning an error for non-2xx responses.
func doRequest(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, adminURL(path), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	return nil
}
