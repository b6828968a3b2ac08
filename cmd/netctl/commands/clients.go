package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// clientInfo mirrors internal/adminapi's client list response shape.
type clientInfo struct {
	ClientID   uint32 `json:"client_id"`
	Remote     uint64 `json:"remote_handle"`
	RTTMicros  int64  `json:"rtt_micros,omitempty"`
	RTTUnknown bool   `json:"rtt_unknown,omitempty"`
	OffsetNs   *int64 `json:"clock_offset_ns,omitempty"`
}

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect and manage connected clients",
	}

	cmd.AddCommand(clientsListCmd())
	cmd.AddCommand(clientsDisconnectCmd())

	return cmd
}

func clientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected clients",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var clients []clientInfo
			if err := getJSON("/api/clients", &clients); err != nil {
				return fmt.Errorf("list clients: %w", err)
			}

			out, err := formatClients(clients, outputFormat)
			if err != nil {
				return fmt.Errorf("format clients: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func clientsDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <client-id>",
		Short: "Force-disconnect a connected client",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 32); err != nil {
				return fmt.Errorf("parse client id %q: %w", args[0], err)
			}

			if err := doRequest("POST", "/api/clients/"+args[0]+"/disconnect", nil); err != nil {
				return fmt.Errorf("disconnect client %s: %w", args[0], err)
			}

			fmt.Printf("Client %s disconnected.\n", args[0])
			return nil
		},
	}
}
