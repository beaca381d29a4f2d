package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/srg/gattcache/internal/device"
)

var (
	headerColor  = color.New(color.Bold)
	serviceColor = color.New(color.FgCyan, color.Bold)
	charColor    = color.New(color.FgGreen)
	valueColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecords prints staged records strongest signal first.
func printRecords(w io.Writer, records []device.RecordJSON, format string, now time.Time) error {
	sorted := make([]device.RecordJSON, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RSSI > sorted[j].RSSI })

	if format == "json" {
		return writeJSON(w, sorted)
	}

	if len(sorted) == 0 {
		_, err := fmt.Fprintln(w, "No devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tSERVICES\tLAST SEEN")
	for _, r := range sorted {
		name := r.Name
		if name == "" {
			name = "(unknown)"
		}
		services := "-"
		if len(r.Services) > 0 {
			services = strings.Join(r.Services, ", ")
		}
		connectable := "no"
		if r.Connectable {
			connectable = "yes"
		}
		seen := now.Sub(time.Unix(r.LastSeen, 0)).Round(time.Second)
		if seen < 0 {
			seen = 0
		}
		fmt.Fprintf(tw, "%s\t%s\t%d dBm\t%s\t%s\t%s ago\n", name, r.ID, r.RSSI, connectable, services, seen)
	}
	return tw.Flush()
}

// printPeripheral prints a committed tree as json or as an indented tree.
func printPeripheral(w io.Writer, snapshot device.PeripheralJSON, format string) error {
	if format == "json" {
		return writeJSON(w, snapshot)
	}

	name := snapshot.Name
	if name == "" {
		name = "(unknown)"
	}
	fmt.Fprintf(w, "%s [%s] %s\n", headerColor.Sprint(name), snapshot.ID, dimColor.Sprint(snapshot.State))

	for i, svc := range snapshot.Services {
		branch, indent := treeBranch(i == len(snapshot.Services)-1)
		fmt.Fprintf(w, "%s%s\n", branch, label(serviceColor, svc.Name, svc.UUID))

		for j, c := range svc.Characteristics {
			cBranch, cIndent := treeBranch(j == len(svc.Characteristics)-1)
			line := label(charColor, c.Name, c.UUID)
			if c.Properties != "" {
				line += " [" + c.Properties + "]"
			}
			if c.Notifying {
				line += " " + dimColor.Sprint("notifying")
			}
			if c.Value != "" {
				line += " = " + valueColor.Sprint(c.Value)
			}
			fmt.Fprintf(w, "%s%s%s\n", indent, cBranch, line)

			for k, d := range c.Descriptors {
				dBranch, _ := treeBranch(k == len(c.Descriptors)-1)
				dLine := label(nil, d.Name, d.UUID)
				if d.Value != "" {
					dLine += " = " + valueColor.Sprint(d.Value)
				}
				fmt.Fprintf(w, "%s%s%s%s\n", indent, cIndent, dBranch, dLine)
			}
		}
	}
	return nil
}

func treeBranch(last bool) (branch, indent string) {
	if last {
		return "└── ", "    "
	}
	return "├── ", "│   "
}

// label renders "Name (uuid)", or just the uuid when no name is known.
func label(c *color.Color, name, uuid string) string {
	if name == "" || strings.EqualFold(name, uuid) {
		return uuid
	}
	if c != nil {
		name = c.Sprint(name)
	}
	return fmt.Sprintf("%s (%s)", name, uuid)
}
