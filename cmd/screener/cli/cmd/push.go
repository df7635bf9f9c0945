package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/balaji-balu/vps-screener/internal/edgenode"
	"github.com/balaji-balu/vps-screener/pkg/model"
)

var (
	pushServer   string
	pushNode     string
	pushToken    string
	pushCPU      float64
	pushRAM      float64
	pushDisk     float64
	pushProjects []string
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send one metrics report the way an agent does",
	RunE: func(cmd *cobra.Command, args []string) error {
		node := pushNode
		if node == "" {
			h, err := os.Hostname()
			if err != nil {
				return err
			}
			node = h
		}

		sys := model.Metric{CPUPercent: pushCPU}
		if cmd.Flags().Changed("ram-percent") {
			sys.RAMPercent = &pushRAM
		}
		if cmd.Flags().Changed("disk-percent") {
			sys.DiskPercent = &pushDisk
		}
		bundle := model.MetricsBundle{model.SystemSubject: sys}
		for _, p := range pushProjects {
			name, cpu, err := parseProject(p)
			if err != nil {
				return err
			}
			bundle[name] = model.Metric{CPUPercent: cpu}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		en := edgenode.NewEdgeNode(pushServer, pushToken, http.DefaultClient)
		msg, err := en.ReportMetrics(ctx, node, bundle, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVarP(&pushServer, "server", "s", "http://localhost:3000", "screener HTTP address")
	pushCmd.Flags().StringVar(&pushNode, "node", "", "node identifier (default: hostname)")
	pushCmd.Flags().StringVar(&pushToken, "token", "", "bearer token sent with the report")
	pushCmd.Flags().Float64Var(&pushCPU, "cpu", 0, "node cpu percent")
	pushCmd.Flags().Float64Var(&pushRAM, "ram-percent", 0, "node ram percent")
	pushCmd.Flags().Float64Var(&pushDisk, "disk-percent", 0, "node disk percent")
	pushCmd.Flags().StringArrayVar(&pushProjects, "project", nil, "project cpu as name=percent, repeatable")
}

func parseProject(s string) (string, float64, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" || name == model.SystemSubject {
		return "", 0, fmt.Errorf("invalid --project %q, want name=percent", s)
	}
	cpu, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --project %q: %w", s, err)
	}
	return name, cpu, nil
}
