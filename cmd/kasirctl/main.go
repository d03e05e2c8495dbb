// Command kasirctl enqueues maintenance jobs and reports queue state.
//
//	kasirctl summary [-date 2025-01-14]
//	kasirctl queue
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Gazel/SecureKasir/jobs"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		slog.Default().Error("kasirctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: kasirctl <summary|queue> [flags]")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch args[0] {
	case "summary":
		fs := flag.NewFlagSet("summary", flag.ContinueOnError)
		date := fs.String("date", "", "business date YYYY-MM-DD, defaults to yesterday")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		client := jobs.NewClient(opts)
		defer client.Close()
		info, err := client.EnqueueDailySummary(ctx, *date)
		if err != nil {
			return fmt.Errorf("enqueue summary: %w", err)
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "queue":
		inspector := asynq.NewInspector(opts)
		defer inspector.Close()
		info, err := inspector.GetQueueInfo(jobs.QueueDefault)
		if err != nil {
			return fmt.Errorf("inspect queue: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"queue":     info.Queue,
			"pending":   info.Pending,
			"active":    info.Active,
			"scheduled": info.Scheduled,
			"retry":     info.Retry,
			"failed":    info.Failed,
		})
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
