package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
	"github.com/spf13/cobra"
)

var deleteForce bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, show or delete past conversations",
	Long: `List past conversations newest first with their message counts.

Examples:
  voxchat history
  voxchat history show <conversation-id>
  voxchat history delete <conversation-id> --force
  voxchat history watch`,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation's messages in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Long: `Delete a conversation and all of its messages.
Requires confirmation unless --force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryDelete,
}

var historyWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow conversation changes as they happen",
	Args:  cobra.NoArgs,
	RunE:  runHistoryWatch,
}

func init() {
	historyDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyWatchCmd)
}

func newHistory(owner string) (*service.HistoryBrowser, *service.ConversationManager) {
	manager := service.NewConversationManager(apiClient, owner, logger)
	return service.NewHistoryBrowser(apiClient, manager, owner, logger), manager
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	ctx := context.Background()
	history, _ := newHistory(owner)

	list, err := history.List(ctx, owner)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	fmt.Printf("Conversations (%d):\n\n", len(list))
	for _, c := range list {
		fmt.Printf("- %s  %s [%s, %s] %d messages\n",
			c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Title, c.Model, c.Language, c.MessageCount)
		if verbose {
			fmt.Printf("  id: %s\n", c.ID)
		}
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	ctx := context.Background()
	history, manager := newHistory(owner)

	if err := history.Open(ctx, args[0]); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	msgs := manager.Messages()
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Println(formatMessage(m))
	}
	return nil
}

func formatMessage(m models.Message) string {
	who := "assistant"
	if m.IsUser {
		who = "you"
	}
	line := fmt.Sprintf("%s  %-9s %s", m.CreatedAt.Local().Format("15:04:05"), who+":", m.Content)
	if m.LatencyMs != nil {
		line += fmt.Sprintf("  (%.0fms)", *m.LatencyMs)
	}
	if verbose && m.AudioURL != nil {
		line += "\n           audio: " + *m.AudioURL
	}
	return line
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	id := args[0]
	ctx := context.Background()
	history, _ := newHistory(owner)

	if !deleteForce {
		fmt.Printf("About to delete conversation %s and all of its messages.\n", id)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := history.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Printf("Deleted: %s\n", id)
	return nil
}

func runHistoryWatch(cmd *cobra.Command, args []string) error {
	if _, err := requireOwner(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching for changes (ctrl+c to stop)...")
	err := apiClient.Watch(ctx, func(ev events.Event) error {
		fmt.Println(formatEvent(ev))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		return err
	}
	return nil
}

func formatEvent(ev events.Event) string {
	line := fmt.Sprintf("%s  %s", ev.At.Local().Format("15:04:05"), ev.Type)
	if ev.ConversationID != "" {
		line += "  " + ev.ConversationID
	}
	return line
}
