package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shaiso/quizflow/internal/repo"
	"github.com/spf13/cobra"
)

// NewNotificationsCmd создаёт группу команд для уведомлений пользователя.
func NewNotificationsCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List and mark user notifications",
	}
	cmd.AddCommand(
		newNotificationsListCmd(appFn, outputFn),
		newNotificationsMarkCmd("read", true, appFn, outputFn),
		newNotificationsMarkCmd("unread", false, appFn, outputFn),
	)
	return cmd
}

func newNotificationsListCmd(appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var user string
	var unread bool
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications of a user (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			userID, err := parseID("user", user)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				ns, err := app.Notifications.ListForUser(cmd.Context(), repo.NotificationFilter{
					UserID:     userID,
					UnreadOnly: unread,
					Limit:      limit,
					Offset:     offset,
				})
				if err != nil {
					return err
				}
				rows := make([][]string, len(ns))
				for i, n := range ns {
					rows[i] = []string{
						n.ID.String(), n.Type, n.Title,
						strconv.FormatBool(n.IsRead), n.CreatedAt.UTC().Format(time.RFC3339),
					}
				}
				return out.Print([]string{"ID", "TYPE", "TITLE", "READ", "CREATED"}, rows, ns)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max rows (default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newNotificationsMarkCmd(name string, read bool, appFn AppFunc, outputFn func() *Output) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   name + " NOTIFICATION_ID",
		Short: "Mark a notification as " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			id, err := parseID("notification", args[0])
			if err != nil {
				return err
			}
			userID, err := parseID("user", user)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), appFn, func(app *App) error {
				mark := app.Notifications.MarkUnread
				if read {
					mark = app.Notifications.MarkRead
				}
				if err := mark(cmd.Context(), id, userID); err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Notification %s marked %s", id, name))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner user ID (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
