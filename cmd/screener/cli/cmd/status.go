package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/vps-screener/pkg/model"
)

var (
	statusServer  string
	statusOutput  string
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest status of every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		defer cancel()

		records, err := fetchStatus(ctx, http.DefaultClient, statusServer)
		if err != nil {
			return err
		}
		return renderStatus(cmd.OutOrStdout(), records, statusOutput, time.Now())
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusServer, "server", "s", "http://localhost:3000", "screener HTTP address")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table, json or yaml")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "request timeout")
}

func fetchStatus(ctx context.Context, client *http.Client, server string) ([]model.StatusRecord, error) {
	url := strings.TrimRight(server, "/") + "/v1/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var records []model.StatusRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return records, nil
}

func renderStatus(w io.Writer, records []model.StatusRecord, format string, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tCPU%\tRAM%\tDISK%\tPROJECTS\tLAST SEEN\tSTALE")
	for _, r := range records {
		cpu, ram, disk := "-", "-", "-"
		if sys, ok := r.Metrics.System(); ok {
			cpu = fmt.Sprintf("%.1f", sys.CPUPercent)
			ram = optional(sys.RAMPercent)
			disk = optional(sys.DiskPercent)
		}
		projects := strings.Join(r.Metrics.Projects(), ",")
		if projects == "" {
			projects = "-"
		}
		seen := now.Sub(r.LastReceiptTime).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s ago\t%t\n", r.NodeID, cpu, ram, disk, projects, seen, r.Stale)
	}
	return tw.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
