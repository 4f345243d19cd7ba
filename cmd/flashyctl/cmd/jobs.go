package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/flashy-edu/flashy/jobs"
)

var jobsListSize int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the background job queue",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counters for the default queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: settings.RedisAddr})
		defer inspector.Close()

		info, err := inspector.GetQueueInfo(jobs.QueueDefault)
		if err != nil {
			return fmt.Errorf("failed to read queue %s: %w", jobs.QueueDefault, err)
		}
		return printQueueStats(cmd.OutOrStdout(), info)
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retrying",
	Short: "List tasks waiting to be retried",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: settings.RedisAddr})
		defer inspector.Close()

		tasks, err := inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(jobsListSize), asynq.Page(1))
		if err != nil {
			return fmt.Errorf("failed to list retry tasks: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tRETRIED\tNEXT\tLAST ERROR")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n", t.ID, t.Type, t.Retried, t.MaxRetry, t.NextProcessAt.Format("2006-01-02 15:04:05"), t.LastErr)
		}
		return tw.Flush()
	},
}

func init() {
	jobsRetryCmd.Flags().IntVar(&jobsListSize, "size", 20, "Maximum tasks to list")
	jobsCmd.AddCommand(jobsStatsCmd, jobsRetryCmd)
}

func printQueueStats(w io.Writer, info *asynq.QueueInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED\tPAUSED")
	if info != nil {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%t\n", info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived, info.Paused)
	}
	return tw.Flush()
}
