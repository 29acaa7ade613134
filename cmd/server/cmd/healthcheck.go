package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckCmd = &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is ready",
		Long: `Performs a readiness check by calling the /readyz endpoint.

This command is used by container HEALTHCHECK directives. It exits with
code 0 if the server is healthy and non-zero otherwise.

Exit codes:
  0 - Server is healthy
  1 - Server is unhealthy, degraded or unreachable`,
		RunE: runHealthcheck,
	}

	healthcheckTimeout    int
	healthcheckURL        string
	healthcheckRetries    int
	healthcheckRetryDelay time.Duration
	healthcheckFormat     string
)

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "readiness URL (default: http://localhost:{SERVER_PORT}/readyz)")
	healthcheckCmd.Flags().IntVar(&healthcheckRetries, "retries", 0, "retries after a failed check")
	healthcheckCmd.Flags().DurationVar(&healthcheckRetryDelay, "retry-delay", 2*time.Second, "delay between retries")
	healthcheckCmd.Flags().StringVar(&healthcheckFormat, "format", "simple", "output format (simple, table, json)")
}

// HealthResponse matches the body of GET /readyz.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is the outcome of probing one URL.
type HealthCheckResult struct {
	URL        string          `json:"url"`
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code,omitempty"`
	IsHealthy  bool            `json:"healthy"`
	LatencyMs  int64           `json:"latency_ms"`
	RetryCount int             `json:"retries"`
	Error      string          `json:"error,omitempty"`
	Response   *HealthResponse `json:"response,omitempty"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := healthcheckURL
	if url == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		url = fmt.Sprintf("http://localhost:%s/readyz", port)
	}

	result := performHealthCheckWithRetries(url)
	if err := writeResults(cmd.OutOrStdout(), []HealthCheckResult{result}); err != nil {
		return err
	}
	if !result.IsHealthy {
		return fmt.Errorf("unhealthy: %s", result.Status)
	}
	return nil
}

func performHealthCheck(url string) HealthCheckResult {
	result := HealthCheckResult{URL: url, Status: "unreachable"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	result.StatusCode = resp.StatusCode

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Status = "invalid_response"
		result.Error = fmt.Sprintf("parse response: %v", err)
		return result
	}
	result.Response = &body
	result.Status = body.Status
	result.IsHealthy = resp.StatusCode == http.StatusOK && body.Status == "healthy"
	return result
}

func performHealthCheckWithRetries(url string) HealthCheckResult {
	result := performHealthCheck(url)
	for attempt := 1; !result.IsHealthy && attempt <= healthcheckRetries; attempt++ {
		time.Sleep(healthcheckRetryDelay)
		result = performHealthCheck(url)
		result.RetryCount = attempt
	}
	return result
}

func writeResults(out io.Writer, results []HealthCheckResult) error {
	switch healthcheckFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tSTATUS\tCODE\tLATENCY\tCHECKS")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\n", r.URL, r.Status, r.StatusCode, r.LatencyMs, summarizeChecks(r.Response))
		}
		return w.Flush()
	default:
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(out, "%s: %s (%s)\n", r.URL, r.Status, r.Error)
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", r.URL, r.Status)
		}
		return nil
	}
}

func summarizeChecks(resp *HealthResponse) string {
	if resp == nil || len(resp.Checks) == 0 {
		return "-"
	}
	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	summary := ""
	for i, name := range names {
		if i > 0 {
			summary += ", "
		}
		summary += name + "=" + resp.Checks[name].Status
	}
	return summary
}
