package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmoslabs/simbatch/internal/server/handlers"
	"github.com/atmoslabs/simbatch/internal/server/middleware"
	"github.com/atmoslabs/simbatch/pkg/job"
)

var (
	jobsServer string
	jobsCaller string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage simulation jobs",
	Long: `Submit and manage simulation jobs against a running simbatch server.

This command group is designed to be agent-friendly:

- stable job ids
- predictable exit codes
- optional JSON output for machine parsing`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a simulation job",
	Long: `Submit a simulation job.

Examples:
  simbatch jobs submit --type fullchem --resolution 4x5 \
      --start 2024-01-01 --end 2024-01-31 --family graviton --size 8xlarge --spot`,
	RunE: runJobsSubmit,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your jobs, newest first",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsCmd.PersistentFlags().StringVar(&jobsServer, "server", "http://localhost:8080", "Server base URL")
	jobsCmd.PersistentFlags().StringVar(&jobsCaller, "caller", "", "Caller identity (defaults to $SIMBATCH_CALLER, then $USER)")

	jobsSubmitCmd.Flags().String("type", "", "Simulation type (fullchem, aerosol, transport, co2)")
	jobsSubmitCmd.Flags().String("resolution", "", "Grid resolution (4x5, 2x2.5, 0.5x0.625, c24, c90, c180)")
	jobsSubmitCmd.Flags().String("start", "", "Simulation start date (YYYY-MM-DD)")
	jobsSubmitCmd.Flags().String("end", "", "Simulation end date (YYYY-MM-DD)")
	jobsSubmitCmd.Flags().String("family", "graviton", "Processor family (graviton, intel, amd)")
	jobsSubmitCmd.Flags().String("size", "4xlarge", "Instance size (large, 4xlarge, 8xlarge, 16xlarge)")
	jobsSubmitCmd.Flags().Bool("spot", false, "Run on spot capacity")
	jobsSubmitCmd.Flags().Bool("json", false, "Output as JSON")

	jobsListCmd.Flags().String("status", "", "Filter by status")
	jobsListCmd.Flags().Int("limit", 0, "Page size (server default 50)")
	jobsListCmd.Flags().String("page-token", "", "Continue a previous listing")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")

	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsCancelCmd.Flags().Bool("json", false, "Output as JSON")
}

func callerIdentity() (string, error) {
	if jobsCaller != "" {
		return jobsCaller, nil
	}
	if env := os.Getenv("SIMBATCH_CALLER"); env != "" {
		return env, nil
	}
	if u := os.Getenv("USER"); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("caller identity is required; set --caller or SIMBATCH_CALLER")
}

// apiRequest performs an authenticated call against the server and decodes
// the response into out when the status matches wantStatus. Error envelopes
// from the server are turned into readable errors.
func apiRequest(cmd *cobra.Command, method, path string, body, out any, wantStatus int) error {
	caller, err := callerIdentity()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method,
		strings.TrimRight(jobsServer, "/")+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.CallerHeader, caller)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != wantStatus {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runJobsSubmit(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	simType, _ := cmd.Flags().GetString("type")
	resolution, _ := cmd.Flags().GetString("resolution")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	family, _ := cmd.Flags().GetString("family")
	size, _ := cmd.Flags().GetString("size")
	spot, _ := cmd.Flags().GetBool("spot")

	spec := job.Spec{
		SimulationType:  simType,
		Resolution:      resolution,
		StartDate:       start,
		EndDate:         end,
		ProcessorFamily: family,
		InstanceSize:    size,
		SpotEligible:    spot,
	}

	var resp handlers.SubmitResponse
	if err := apiRequest(cmd, http.MethodPost, "/jobs", spec, &resp, http.StatusAccepted); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Printf("job_id=%s\nstatus=%s\n", resp.JobID, resp.Status)
	return nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	statusFilter, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	pageToken, _ := cmd.Flags().GetString("page-token")

	q := url.Values{}
	if statusFilter != "" {
		q.Set("status", statusFilter)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp handlers.ListResponse
	if err := apiRequest(cmd, http.MethodGet, path, nil, &resp, http.StatusOK); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tTYPE\tRESOLUTION\tSTATUS\tATTEMPT\tCREATED\tCOST")
	for _, j := range resp.Jobs {
		cost := "-"
		if j.CostActualUSD > 0 {
			cost = fmt.Sprintf("$%.2f", j.CostActualUSD)
		} else if j.CostEstimateUSD > 0 {
			cost = fmt.Sprintf("~$%.2f", j.CostEstimateUSD)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortJobID(j.ID),
			j.Spec.SimulationType,
			j.Spec.Resolution,
			j.Status,
			j.Attempt,
			j.CreatedAt.UTC().Format(time.RFC3339),
			cost,
		)
	}
	if resp.NextPageToken != "" {
		_ = w.Flush()
		fmt.Printf("\nNext page: --page-token %s\n", resp.NextPageToken)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	var j job.Job
	if err := apiRequest(cmd, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &j, http.StatusOK); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(j)
	}

	fmt.Printf("job_id=%s\n", j.ID)
	fmt.Printf("status=%s\n", j.Status)
	fmt.Printf("type=%s resolution=%s dates=%s..%s\n",
		j.Spec.SimulationType, j.Spec.Resolution, j.Spec.StartDate, j.Spec.EndDate)
	fmt.Printf("family=%s size=%s spot=%t\n",
		j.Spec.ProcessorFamily, j.Spec.InstanceSize, j.Spec.SpotEligible)
	fmt.Printf("attempt=%d\n", j.Attempt)
	if j.ComputeHandle != "" {
		fmt.Printf("compute_handle=%s\n", j.ComputeHandle)
	}
	if j.CostEstimateUSD > 0 {
		fmt.Printf("cost_estimate_usd=%.2f\n", j.CostEstimateUSD)
	}
	if j.CostActualUSD > 0 {
		fmt.Printf("cost_actual_usd=%.2f\n", j.CostActualUSD)
	}
	if j.ResultLocation != "" {
		fmt.Printf("result_location=%s\n", j.ResultLocation)
	}
	if j.FailureReason != nil {
		fmt.Printf("failure=%s: %s\n", j.FailureReason.Category, j.FailureReason.Detail)
	}
	fmt.Printf("created_at=%s\n", j.CreatedAt.UTC().Format(time.RFC3339))
	if j.StartedAt != nil {
		fmt.Printf("started_at=%s\n", j.StartedAt.UTC().Format(time.RFC3339))
	}
	if j.CompletedAt != nil {
		fmt.Printf("completed_at=%s\n", j.CompletedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	var resp handlers.SubmitResponse
	if err := apiRequest(cmd, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &resp, http.StatusOK); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Printf("job_id=%s\nstatus=%s\n", resp.JobID, resp.Status)
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}
