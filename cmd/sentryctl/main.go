// Command sentryctl is a thin HTTP client over the running gateway's
// AdminSurface: inspect queue stats, tune per-model limits, reset
// counters, flush the scan cache.
package main

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

const ctlVersion = "0.1.0"

func main() {
	var addr string

	rootCmd := &cobra.Command{
		Use:   "sentryctl",
		Short: "control client for a running sentrygate gateway",
	}
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", "http://127.0.0.1:8787", "gateway base URL")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sentryctl v%s\n", ctlVersion)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "check gateway liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(addr, "/health")
		},
	})

	var configFormat string
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the running configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/config"
			if configFormat == "yaml" {
				path += "?format=yaml"
			}
			return getAndPrint(addr, path)
		},
	}
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "json", "output format: json or yaml")
	rootCmd.AddCommand(configCmd)

	var statsModel string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print per-model (or all-model) queue stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/queue/stats"
			if statsModel != "" {
				path += "?model=" + statsModel
			}
			return getAndPrint(addr, path)
		},
	}
	statsCmd.Flags().StringVarP(&statsModel, "model", "m", "", "limit to one model")
	rootCmd.AddCommand(statsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "memory",
		Short: "print the host memory reading used for \"auto\" limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(addr, "/queue/memory")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backends",
		Short: "print every backend's circuit state and call counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(addr, "/admin/backends")
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scanners",
		Short: "print the configured input/output scanner names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(addr, "/admin/scanners")
		},
	})

	resetCmd := &cobra.Command{
		Use:   "reset <model>",
		Short: "zero a model's processed/rejected counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(addr, "/admin/queue/reset", map[string]any{"model": args[0]})
		},
	}
	rootCmd.AddCommand(resetCmd)

	var parallelLimit, queueLimit int
	updateCmd := &cobra.Command{
		Use:   "update <model>",
		Short: "reconfigure a model's parallel/queue limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"model": args[0]}
			if cmd.Flags().Changed("parallel-limit") {
				body["parallel_limit"] = parallelLimit
			}
			if cmd.Flags().Changed("queue-limit") {
				body["queue_limit"] = queueLimit
			}
			return postAndPrint(addr, "/admin/queue/update", body)
		},
	}
	updateCmd.Flags().IntVar(&parallelLimit, "parallel-limit", 0, "new parallel limit")
	updateCmd.Flags().IntVar(&queueLimit, "queue-limit", 0, "new queue limit")
	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cache-clear",
		Short: "flush every cached scan verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(addr, "/admin/cache/clear", nil)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getAndPrint(addr, path string) error {
	resp, err := httpClient.Get(addr + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(addr, path string, body map[string]any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := httpClient.Post(addr+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, raw)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
