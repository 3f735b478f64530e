// quizflow — операторский CLI: переходы квизов, отложенные задачи,
// уведомления, журнал активности и миграции.
//
// Использование:
//
//	quizflow [--config PATH] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	quiz           publish, close, release
//	jobs           list, show, retry, cancel, complete
//	notifications  list, read, unread
//	activity       Последние записи журнала
//	migrate        Миграции схемы
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/quizflow/internal/app"
	"github.com/shaiso/quizflow/internal/cli"
	"github.com/shaiso/quizflow/internal/config"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "quizflow",
		Short:         "quizflow CLI — quiz lifecycle operations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvPath), "Path to YAML config")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// Логи CLI идут в stderr, чтобы не мешать --json.
	logger := telemetry.SetupLogger(telemetry.LoggerOptions{Format: "text", Output: os.Stderr})

	loadConfig := func() (config.Config, error) {
		return config.Load(configPath)
	}

	appFn := func(ctx context.Context) (*cli.App, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		pool, err := repo.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		// Обработчики событий выполняются в процессе CLI: release и publish
		// рассылают письма сами.
		emailQueue, closeQueue := app.DialEmailQueue(ctx, cfg, logger)
		svc := app.New(app.PostgresStores(pool), app.Options{
			Config:     cfg,
			EmailQueue: emailQueue,
			Logger:     logger,
		})
		return &cli.App{
			Lifecycle:     svc.Lifecycle,
			Scheduler:     svc.Scheduler,
			Notifications: svc.Notifications,
			Audit:         svc.Audit,
			Close: func() {
				closeQueue()
				pool.Close()
			},
		}, nil
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	dsnFn := func() string {
		cfg, err := loadConfig()
		if err != nil {
			logger.Warn("config not loaded, using defaults", "error", err)
		}
		return cfg.Postgres.URL
	}

	rootCmd.AddCommand(
		cli.NewQuizCmd(appFn, outputFn),
		cli.NewJobsCmd(appFn, outputFn),
		cli.NewNotificationsCmd(appFn, outputFn),
		cli.NewActivityCmd(appFn, outputFn),
		cli.NewMigrateCmd(dsnFn, logger),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
