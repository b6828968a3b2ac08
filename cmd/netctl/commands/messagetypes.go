package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// messageTypeInfo mirrors internal/adminapi's message-type list response shape.
type messageTypeInfo struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Direction string `json:"direction"`
}

func messageTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messagetypes",
		Short: "List registered message types",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var types []messageTypeInfo
			if err := getJSON("/api/messagetypes", &types); err != nil {
				return fmt.Errorf("list message types: %w", err)
			}

			out, err := formatMessageTypes(types, outputFormat)
			if err != nil {
				return fmt.Errorf("format message types: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
