package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatline/clients/go/chatline"
	"github.com/eldtechnologies/chatline/internal/feed"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/normalize"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the chat history and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(); err != nil {
			return err
		}
		return printHistory(cmd.Context(), newClient(), username, password, cmd.OutOrStdout())
	},
}

// printHistory logs in, loads the history the same way a chat session
// does (normalized, deduplicated, oldest first) and prints it.
func printHistory(ctx context.Context, client *chatline.Client, identity, secret string, out io.Writer) error {
	login, err := client.Login(ctx, identity, secret)
	if err != nil {
		return err
	}
	items, err := client.FetchHistory(ctx, login.Token)
	if err != nil {
		return err
	}

	values := make([]any, len(items))
	for i, item := range items {
		values[i] = item
	}
	store := feed.NewStore(metrics.FeedObserver{})
	store.BulkAdmit(normalize.New().NormalizeAll(values))

	for m := range store.All() {
		printMessage(out, m)
	}
	logger.Debug().Int("fetched", len(items)).Int("shown", store.Len()).Msg("history")
	return nil
}
