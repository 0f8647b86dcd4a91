package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spdeepak/livewatch/internal/bootstrap"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "livewatch",
	Short: "livewatch - live status of followed channels under a daily API quota",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the scheduled refresh and quota reset",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run one resolution pass and print the channel list as JSON",
	RunE:  runResolve,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print quota and cache metrics from a running server",
	RunE:  runMetrics,
}

var (
	configFlag     string
	addrFlag       string
	resolveTimeout time.Duration
	metricsTimeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "configs/livewatch.yaml", "Path to the config file")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 30*time.Second, "How long to wait for the pass")
	metricsCmd.Flags().StringVar(&addrFlag, "addr", "http://localhost:8080", "Base URL of the running server")
	metricsCmd.Flags().DurationVar(&metricsTimeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.AddCommand(serveCmd, resolveCmd, metricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	rt, err := bootstrap.NewRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return rt.RunAPI(cmd.Context())
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap.LoadConfig(configFlag)
	if err != nil {
		return err
	}
	return resolve(cmd.Context(), cfg, resolveTimeout, cmd.OutOrStdout())
}

// resolve runs one pass with cfg and writes the result to out.
func resolve(ctx context.Context, cfg bootstrap.Config, timeout time.Duration, out io.Writer) (err error) {
	rt, err := bootstrap.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); err == nil {
			err = closeErr
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rt.ResolveOnce(ctx))
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), metricsTimeout)
	defer cancel()
	return fetchMetrics(ctx, http.DefaultClient, addrFlag, cmd.OutOrStdout())
}

// fetchMetrics reads /api/streamers/metrics from the server at addr and
// writes the indented body to out.
func fetchMetrics(ctx context.Context, client *http.Client, addr string, out io.Writer) error {
	url := strings.TrimRight(addr, "/") + "/api/streamers/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch metrics: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return fmt.Errorf("decode metrics: %w", err)
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}
