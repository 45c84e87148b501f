package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fabric-fusion-backend/internal/realtime"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job_id>",
	Short: "Follow the live events of a job",
	Long: `Subscribe to a job's Redis channel and print its events until the job
completes or fails. Requires REDIS_ADDR.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
	}

	cfg, log, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required to watch jobs")
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	subscriber, err := realtime.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisEventsChannel)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	out := cmd.OutOrStdout()
	err = subscriber.Subscribe(ctx, id.String(), func(event realtime.JobEvent) {
		if printEvent(out, event) {
			cancel()
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// printEvent writes one event line and reports whether it ends the job.
func printEvent(out io.Writer, event realtime.JobEvent) bool {
	payload, _ := json.Marshal(event.Payload)
	fmt.Fprintf(out, "%s %-14s %s\n", event.SentAt.Format("15:04:05"), event.Event, payload)
	return event.Event == realtime.EventCompleted || event.Event == realtime.EventFailed
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
