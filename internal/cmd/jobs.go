package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fabric-fusion-backend/internal/models"
	"fabric-fusion-backend/internal/services"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run fusion jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the stored record of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsListCmd = &cobra.Command{
	Use:   "list <user_id>",
	Short: "List the most recent jobs of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsList,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job_id>",
	Short: "Process a job in this process",
	Long: `Run the fusion pipeline for an existing job without going through the
queue. Jobs that already finished are reported unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsRun,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a fusion job",
	Long: `Create a fusion job owned by --user. With Redis configured the job is queued
for the API server's workers; otherwise it is processed here before the
command returns.`,
	Args: cobra.NoArgs,
	RunE: runJobsSubmit,
}

func parseJobID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q: %w", arg, err)
	}
	return id, nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Store.Get(commandContext(cmd), id)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return writeJob(cmd.OutOrStdout(), job, asJSON)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	jobs, err := a.Store.List(commandContext(cmd), args[0], limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tCATEGORY\tSTATUS\tPROGRESS\tCREATED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", job.ID, job.Category, job.Status, job.Progress, job.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	if _, err := a.Orchestrator.Process(ctx, id); err != nil {
		return err
	}

	job, err := a.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	return writeJob(cmd.OutOrStdout(), job, asJSON)
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	user, _ := flags.GetString("user")
	if user == "" {
		return fmt.Errorf("--user is required")
	}

	req := models.CreateFusionJobRequest{}
	req.Category, _ = flags.GetString("category")
	req.ModelImageURL, _ = flags.GetString("model")
	req.ReferenceModelURL, _ = flags.GetString("reference")
	req.FabricTopURL, _ = flags.GetString("top")
	req.FabricBottomURL, _ = flags.GetString("bottom")
	req.UserConsent, _ = flags.GetBool("consent")
	if flags.Changed("strength") {
		strength, _ := flags.GetFloat64("strength")
		req.Strength = &strength
	}

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	svc := services.NewFusionService(a.Store, a.Queue, a.Assets, a.Log)
	job, err := svc.Submit(ctx, user, req)
	if err != nil {
		return err
	}

	if a.Config.RedisAddr != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", job.ID)
		return nil
	}

	// Nothing else reads the in-process queue
	if _, err := a.Orchestrator.Process(ctx, job.ID); err != nil {
		return err
	}
	job, err = a.Store.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	asJSON, _ := flags.GetBool("json")
	return writeJob(cmd.OutOrStdout(), job, asJSON)
}

func writeJob(out io.Writer, job *models.FusionJob, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models.JobResultResponse{
			JobID:      job.ID.String(),
			Status:     job.Status,
			ResultURL:  job.ResultURL,
			Candidates: job.Candidates,
			Metadata:   job.Metadata,
			Error:      job.Error,
		})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job:\t%s\n", job.ID)
	fmt.Fprintf(w, "User:\t%s\n", job.UserID)
	fmt.Fprintf(w, "Category:\t%s\n", job.Category)
	fmt.Fprintf(w, "Status:\t%s (%d%%)\n", job.Status, job.Progress)
	if job.StatusDetail != "" {
		fmt.Fprintf(w, "Detail:\t%s\n", job.StatusDetail)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", job.Error)
	}
	if job.ResultURL != "" {
		fmt.Fprintf(w, "Result:\t%s\n", job.ResultURL)
	}
	for i, c := range job.Candidates {
		mode := c.Mode
		if c.IsFallback() {
			mode += ", fallback"
		}
		fmt.Fprintf(w, "Candidate %d:\t%s (%s)\n", i+1, c.URL, mode)
	}
	return w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{jobsStatusCmd, jobsRunCmd, jobsSubmitCmd} {
		c.Flags().Bool("json", false, "print the job as JSON")
	}
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs")

	f := jobsSubmitCmd.Flags()
	f.String("user", "", "owner of the job (JWT subject)")
	f.String("category", "other", "garment category")
	f.String("model", "", "model photograph URL")
	f.String("reference", "", "reference model URL, used when --model is empty")
	f.String("top", "", "top fabric URL")
	f.String("bottom", "", "bottom fabric URL")
	f.Float64("strength", 0, "generation strength in (0,1]")
	f.Bool("consent", false, "allow face protection")

	jobsCmd.AddCommand(jobsStatusCmd, jobsListCmd, jobsRunCmd, jobsSubmitCmd)
	rootCmd.AddCommand(jobsCmd)
}
