package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/fzdarsky/realmgate/pkg/protocol"
)

// Format represents an output format.
type Format string

const (
	// FormatTable prints aligned columns.
	FormatTable Format = "table"
	// FormatYAML represents YAML output format.
	FormatYAML Format = "yaml"
	// FormatJSON represents JSON output format.
	FormatJSON Format = "json"
)

// ParseFormat parses a format string into a Format value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "table", "":
		return FormatTable, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid output format '%s': must be 'table', 'yaml' or 'json'", s)
	}
}

// FormatRealms renders a realm list.
func FormatRealms(realms []protocol.RealmEntry, format Format) (string, error) {
	switch format {
	case FormatTable:
		var buf bytes.Buffer
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tCHARS\tLOCKED\tFLAGS")
		for _, r := range realms {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\t0x%02X\n", r.ID, r.Name, r.Endpoint(), r.NumChars, r.Locked, r.Flags)
		}
		if err := w.Flush(); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return FormatData(realms, format)
	}
}

// FormatData formats data as YAML or JSON.
func FormatData(data any, format Format) (string, error) {
	switch format {
	case FormatYAML:
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("failed to format as YAML: %w", err)
		}
		return string(out), nil
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to format as JSON: %w", err)
		}
		return string(out) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
