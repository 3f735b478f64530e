package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/lifecycle"
	"github.com/spf13/cobra"
)

// NewQuizCmd создаёт группу команд жизненного цикла квиза.
func NewQuizCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Publish, close and release quizzes",
	}

	cmd.AddCommand(
		newQuizOpCmd("publish", "Publish a draft quiz and schedule its jobs", (*lifecycle.Service).Publish, appFn, outputFn),
		newQuizOpCmd("close", "Close a published quiz", (*lifecycle.Service).Close, appFn, outputFn),
		newQuizOpCmd("release", "Grade submissions and release results", (*lifecycle.Service).ReleaseResults, appFn, outputFn),
	)
	return cmd
}

func newQuizOpCmd(
	name, short string,
	fn func(s *lifecycle.Service, ctx context.Context, id uuid.UUID, actor lifecycle.Actor) (*domain.Quiz, error),
	appFn AppFunc,
	outputFn func() *Output,
) *cobra.Command {
	var actorID, role string

	cmd := &cobra.Command{
		Use:   name + " QUIZ_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			quizID, err := parseID("quiz", args[0])
			if err != nil {
				return err
			}
			actor, err := parseActor(actorID, role)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				quiz, err := fn(app.Lifecycle, cmd.Context(), quizID, actor)
				if err != nil {
					return fmt.Errorf("%s quiz: %w", name, err)
				}
				out.Success(fmt.Sprintf("Quiz %s: %s", quiz.ID, quiz.Status))
				return out.Print(quizHeaders, [][]string{quizRow(quiz)}, quiz)
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Acting user ID (empty = system)")
	cmd.Flags().StringVar(&role, "role", "", "Acting user role (default: admin)")
	return cmd
}

var quizHeaders = []string{"ID", "TITLE", "STATUS", "FROM", "TO", "RESULTS"}

func quizRow(q *domain.Quiz) []string {
	return []string{
		q.ID.String(), q.Title, string(q.Status),
		formatTime(q.AvailableFrom), formatTime(q.AvailableTo),
		strconv.FormatBool(q.ResultsReleased),
	}
}
