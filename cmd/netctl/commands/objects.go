package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// errClientIDRequired indicates the --client flag is required for an
// authority operation.
var errClientIDRequired = errors.New("--client flag is required")

// objectInfo mirrors internal/adminapi's bound-object list response shape.
type objectInfo struct {
	ObjectID  uint32 `json:"object_id"`
	GUID      string `json:"guid"`
	Delegate  uint32 `json:"delegate_client_id,omitempty"`
	Delegated bool   `json:"delegated"`
}

func objectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Inspect and manage bound objects and their authority",
	}

	cmd.AddCommand(objectsListCmd())
	cmd.AddCommand(objectsDelegateCmd())
	cmd.AddCommand(objectsRevokeCmd())

	return cmd
}

func objectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bound objects",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var objects []objectInfo
			if err := getJSON("/api/objects", &objects); err != nil {
				return fmt.Errorf("list objects: %w", err)
			}

			out, err := formatObjects(objects, outputFormat)
			if err != nil {
				return fmt.Errorf("format objects: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func objectsDelegateCmd() *cobra.Command {
	var clientID uint32

	cmd := &cobra.Command{
		Use:   "delegate <object-id>",
		Short: "Delegate a bound object's authority to a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 32); err != nil {
				return fmt.Errorf("parse object id %q: %w", args[0], err)
			}
			if clientID == 0 {
				return errClientIDRequired
			}

			body := map[string]uint32{"client_id": clientID}
			if err := doRequest("POST", "/api/objects/"+args[0]+"/authority", body); err != nil {
				return fmt.Errorf("delegate authority for object %s: %w", args[0], err)
			}

			fmt.Printf("Object %s delegated to client %d.\n", args[0], clientID)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&clientID, "client", 0, "client id to delegate authority to (required)")

	return cmd
}

func objectsRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <object-id>",
		Short: "Revoke a bound object's delegated authority back to the host",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 32); err != nil {
				return fmt.Errorf("parse object id %q: %w", args[0], err)
			}

			if err := doRequest("DELETE", "/api/objects/"+args[0]+"/authority", nil); err != nil {
				return fmt.Errorf("revoke authority for object %s: %w", args[0], err)
			}

			fmt.Printf("Authority revoked for object %s.\n", args[0])
			return nil
		},
	}
}
