package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/camposter/internal/app"
	"github.com/ibeckermayer/camposter/internal/auth"
	"github.com/ibeckermayer/camposter/internal/config"
	"github.com/ibeckermayer/camposter/internal/scheduler"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "camposter",
		Short: "Post traffic camera snapshots with AI-written descriptions",
		Long: `camposter downloads a traffic camera snapshot, asks a vision model to describe it,
and posts the image with its description to Bluesky.

Examples:
  # Post once and exit
  camposter run

  # Post on the configured cron schedule until interrupted
  camposter schedule --config ./camposter.toml`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Fetch, describe and post one snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			sched, err := newScheduler(a)
			if err != nil {
				return err
			}

			// Failures are logged, not reflected in the exit status.
			if err := sched.RunNow(scheduler.PostJobName, postJob(a)); err != nil {
				log.Printf("Post job failed: %v", err)
			}
			return nil
		},
	}

	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Run the post job on the configured cron schedule",
		Long: `Run the post job on the cron expression in [schedule]. SIGHUP reloads the
config file; SIGINT or SIGTERM waits for a running job and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return runSchedule(a)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config dir)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
}

// loadConfig loads configuration, creating a default file on first run
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		// First run - create default config
		cfg = config.Default()
		if err := cfg.SaveTo(path); err != nil {
			log.Printf("Warning: could not save default config: %v", err)
		} else {
			log.Printf("Created default config at: %s", path)
		}
	}

	return cfg, path, nil
}

func newApp() (*app.App, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	secrets, err := auth.NewEnvProvider(cfg.Credentials.EnvFile)
	if err != nil {
		return nil, err
	}

	return app.New(cfg, path, secrets)
}

func newScheduler(a *app.App) (*scheduler.Scheduler, error) {
	cfg := a.Config()
	return scheduler.New(cfg.Schedule.Timezone, time.Duration(cfg.Schedule.JobTimeoutMinutes)*time.Minute)
}

// postJob runs one PostJob and logs its report
func postJob(a *app.App) scheduler.Job {
	return func(ctx context.Context) error {
		report, err := a.PostJob(ctx)
		if report != nil {
			log.Println(report.Summary())
		}
		return err
	}
}

func runSchedule(a *app.App) error {
	cfg := a.Config()

	sched, err := newScheduler(a)
	if err != nil {
		return err
	}

	if err := sched.AddPostJob(cfg.Schedule.Cron, postJob(a)); err != nil {
		return err
	}
	log.Printf("Posting to %s on schedule %q (%s)", a.Platform(), cfg.Schedule.Cron, cfg.Schedule.Timezone)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	sched.Start()
	for _, job := range sched.ListJobs() {
		log.Printf("Next %s run at %s", job.Name, job.NextRun.Format(time.RFC1123))
	}

	for sig := range sigs {
		if sig == syscall.SIGHUP {
			if err := a.ReloadConfig(); err != nil {
				log.Printf("Failed to reload config: %v", err)
			}
			continue
		}
		log.Printf("Received %s, waiting for running jobs", sig)
		<-sched.Stop().Done()
		break
	}

	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
