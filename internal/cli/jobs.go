package cli

import (
	"fmt"
	"strconv"

	"github.com/shaiso/quizflow/internal/audit"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/spf13/cobra"
)

// NewJobsCmd создаёт группу команд для отложенных задач.
func NewJobsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage deferred jobs",
	}

	cmd.AddCommand(
		newJobsListCmd(appFn, outputFn),
		newJobsShowCmd(appFn, outputFn),
		newJobsRetryCmd(appFn, outputFn),
		newJobsCancelCmd(appFn, outputFn),
		newJobsCompleteCmd(appFn, outputFn),
	)
	return cmd
}

var jobHeaders = []string{"ID", "TYPE", "TARGET", "STATUS", "FIRE_AT", "ATTEMPTS", "LAST_ERROR"}

func jobRow(j *domain.Job) []string {
	return []string{
		j.ID.String(), j.Type, j.TargetID.String(), string(j.Status),
		formatTime(&j.FireAt), strconv.Itoa(j.Attempts), j.LastError,
	}
}

func newJobsListCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var status, jobType, target string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			f := repo.JobFilter{
				Status: domain.JobStatus(status),
				Type:   jobType,
				Limit:  limit,
				Offset: offset,
			}
			if target != "" {
				id, err := parseID("target", target)
				if err != nil {
					return err
				}
				f.TargetID = &id
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				jobs, err := app.Scheduler.List(cmd.Context(), f)
				if err != nil {
					return err
				}
				rows := make([][]string, len(jobs))
				for i, j := range jobs {
					rows[i] = jobRow(j)
				}
				return out.Print(jobHeaders, rows, jobs)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, DONE, FAILED, CANCELLED)")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	cmd.Flags().StringVar(&target, "target", "", "Filter by target ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max rows (default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func newJobsShowCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), appFn, func(app *App) error {
				job, err := app.Scheduler.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return out.Print(jobHeaders, [][]string{jobRow(job)}, job)
			})
		},
	}
}

func newJobsRetryCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var actorID, role string

	cmd := &cobra.Command{
		Use:   "retry JOB_ID",
		Short: "Requeue a failed or cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			actor, err := parseActor(actorID, role)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				job, err := app.Scheduler.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				logActivity(cmd.Context(), app, out, actor, audit.Entry{
					Type:        domain.ActivityJobRetried,
					Description: fmt.Sprintf("Requeued %s job", job.Type),
					TargetID:    &job.ID,
					TargetType:  "job",
					TargetName:  job.Type,
				})
				out.Success(fmt.Sprintf("Job requeued: %s", job.ID))
				return out.Print(jobHeaders, [][]string{jobRow(job)}, job)
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Acting user ID (empty = system)")
	cmd.Flags().StringVar(&role, "role", "", "Acting user role (default: admin)")
	return cmd
}

func newJobsCancelCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var jobType, target, actorID, role string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel pending jobs of a type for a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			targetID, err := parseID("target", target)
			if err != nil {
				return err
			}
			actor, err := parseActor(actorID, role)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				n, err := app.Scheduler.Cancel(cmd.Context(), jobType, targetID)
				if err != nil {
					return err
				}
				if n > 0 {
					logActivity(cmd.Context(), app, out, actor, audit.Entry{
						Type:        domain.ActivityJobsCancelled,
						Description: fmt.Sprintf("Cancelled %d %s job(s)", n, jobType),
						TargetID:    &targetID,
						TargetType:  "quiz",
					})
				}
				out.Success(fmt.Sprintf("Cancelled %d job(s)", n))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&jobType, "type", "", "Job type (required)")
	cmd.Flags().StringVar(&target, "target", "", "Target ID (required)")
	cmd.Flags().StringVar(&actorID, "actor", "", "Acting user ID (empty = system)")
	cmd.Flags().StringVar(&role, "role", "", "Acting user role (default: admin)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newJobsCompleteCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "complete JOB_ID",
		Short: "Mark a job as done without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), appFn, func(app *App) error {
				if err := app.Scheduler.MarkDone(cmd.Context(), id); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Job marked done: %s", id))
				return nil
			})
		},
	}
}
