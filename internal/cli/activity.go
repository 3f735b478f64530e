package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// NewActivityCmd создаёт команду просмотра журнала действий.
func NewActivityCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent administrative activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			return withApp(cmd.Context(), appFn, func(app *App) error {
				items, err := app.Audit.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				rows := make([][]string, len(items))
				for i, a := range items {
					rows[i] = []string{
						a.CreatedAt.UTC().Format(time.RFC3339), a.Type,
						a.PerformedByName, a.PerformedByRole, a.Description,
					}
				}
				return out.Print([]string{"AT", "TYPE", "BY", "ROLE", "DESCRIPTION"}, rows, items)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}
