package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatline/internal/live"
	"github.com/eldtechnologies/chatline/internal/models"
	"github.com/eldtechnologies/chatline/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Log in, print history and live messages, send stdin lines",
	Long: `Log in and stay connected. Every line read from stdin is sent as a
message. End input (Ctrl-D) or interrupt (Ctrl-C) to log out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coord := session.New(newClient(),
			session.WithLogger(logger),
			session.WithEndpoint(cfg.Endpoint),
			session.WithBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
		)

		errOut := cmd.ErrOrStderr()
		return runChat(ctx, coord, username, password, cmd.InOrStdin(), cmd.OutOrStdout(), func(err error) {
			fmt.Fprintf(errOut, "! %v\n", err)
		})
	},
}

// chatSession is the part of *session.Coordinator the chat loop drives.
type chatSession interface {
	Login(ctx context.Context, identity, secret string) error
	Logout()
	Send(ctx context.Context, body string) error
	SubscribeMessages(fn func(models.Message)) (unsubscribe func())
	SubscribeState(fn func(live.State)) (unsubscribe func())
}

// runChat logs in, prints every stored message exactly once in store
// order, and sends input lines until in ends or ctx is done.
func runChat(ctx context.Context, coord chatSession, identity, secret string, in io.Reader, out io.Writer, report func(error)) error {
	msgs := make(chan models.Message, 256)
	quit := make(chan struct{})

	// Publishing blocks until the printer takes the message, so a long
	// history is never dropped. Handlers can still run after
	// unsubscribe, hence quit instead of closing msgs.
	unsubMsgs := coord.SubscribeMessages(func(m models.Message) {
		select {
		case msgs <- m:
		case <-quit:
		}
	})
	unsubState := coord.SubscribeState(func(s live.State) {
		logger.Info().Stringer("state", s).Msg("connection")
	})

	// Printing happens on one goroutine so lines never interleave.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case m := <-msgs:
				printMessage(out, m)
			case <-quit:
				for {
					select {
					case m := <-msgs:
						printMessage(out, m)
					default:
						return
					}
				}
			}
		}
	}()

	shutdown := func() {
		coord.Logout()
		unsubMsgs()
		unsubState()
		close(quit)
		<-done
	}

	if err := coord.Login(ctx, identity, secret); err != nil {
		shutdown()
		return err
	}

	err := readInput(ctx, in, coord.Send, report)
	shutdown()
	return err
}

// readInput sends every line from in until EOF or ctx is done. Send
// failures are reported and do not stop the loop.
func readInput(ctx context.Context, in io.Reader, send func(context.Context, string) error, report func(error)) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := send(ctx, line); err != nil {
				if errors.Is(err, session.ErrEmptyBody) {
					continue
				}
				report(err)
			}
		}
	}
}

func printMessage(w io.Writer, m models.Message) {
	fmt.Fprintf(w, "[%s] %s: %s\n", m.Time().Format("15:04:05"), m.Author, m.Body)
}
