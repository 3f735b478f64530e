package cli

import (
	"log/slog"

	"github.com/shaiso/quizflow/internal/repo/migrations"
	"github.com/spf13/cobra"
)

// NewMigrateCmd создаёт команду применения миграций.
// dsnFn вызывается после разбора флагов.
func NewMigrateCmd(dsnFn func() string, logger *slog.Logger) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rollback {
				return migrations.Rollback(cmd.Context(), dsnFn(), logger)
			}
			return migrations.Apply(cmd.Context(), dsnFn(), logger)
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll back the last migration group")
	return cmd
}
