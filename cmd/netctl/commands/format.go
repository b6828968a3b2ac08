package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatClients renders connected clients in the requested format.
func formatClients(clients []clientInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		return toJSON(clients)
	case formatTable:
		return formatClientsTable(clients), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatClientsTable(clients []clientInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT-ID\tREMOTE-HANDLE\tRTT")

	for _, c := range clients {
		rtt := valueNA
		if !c.RTTUnknown {
			rtt = fmt.Sprintf("%dus", c.RTTMicros)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\n", c.ClientID, c.Remote, rtt)
	}

	w.Flush() //nolint:errcheck // tabwriter.Flush on a strings.Builder never fails.
	return buf.String()
}

// formatObjects renders bound objects in the requested format.
func formatObjects(objects []objectInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		return toJSON(objects)
	case formatTable:
		return formatObjectsTable(objects), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatObjectsTable(objects []objectInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OBJECT-ID\tGUID\tDELEGATE")

	for _, o := range objects {
		delegate := valueNA
		if o.Delegated {
			delegate = fmt.Sprintf("%d", o.Delegate)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", o.ObjectID, o.GUID, delegate)
	}

	w.Flush() //nolint:errcheck // tabwriter.Flush on a strings.Builder never fails.
	return buf.String()
}

// formatMessageTypes renders message types in the requested format.
func formatMessageTypes(types []messageTypeInfo, format string) (string, error) {
	switch format {
	case formatJSON:
		return toJSON(types)
	case formatTable:
		return formatMessageTypesTable(types), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatMessageTypesTable(types []messageTypeInfo) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tDIRECTION")

	for _, t := range types {
		name := t.Name
		if name == "" {
			name = valueNA
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, name, t.Kind, t.Direction)
	}

	w.Flush() //nolint:errcheck // tabwriter.Flush on a strings.Builder never fails.
	return buf.String()
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
