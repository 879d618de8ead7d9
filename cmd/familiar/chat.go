// ABOUTME: Terminal chat client running the conversation in-process
// ABOUTME: Provides readline-style input and prints streamed replies incrementally

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/familiar/internal/config"
	"github.com/2389/familiar/internal/conversation"
	"github.com/2389/familiar/internal/exchange"
)

var (
	youLabel = color.New(color.FgGreen, color.Bold)
	botPaint = color.New(color.FgCyan)
)

// runChat talks to the configured model in the terminal. It shares the
// whole conversation stack with serve; only the renderer differs.
func runChat(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Chat shares the terminal with its own output; keep logs out of the
	// way unless the user asked for them.
	if cfg.Logging.Level != "debug" {
		cfg.Logging.Level = "warn"
	}
	logger := setupLogger(cfg.Logging)

	store, ctrl, err := buildConversation(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("familiar chat — provider %s, Ctrl+C to quit\n\n", cfg.Completion.Provider)

	// Print the greeting the way the widget shows it.
	if greeting, ok := store.State().Last(); ok {
		botPaint.Println(greeting.Text)
		fmt.Println()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		youLabel.Print("you> ")

		line, ok, err := readLine(ctx, scanner)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("\nGoodbye!")
			return nil
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if err := runExchange(ctx, store, ctrl, line); err != nil {
			return err
		}
	}
}

// readLine reads one line of input, honoring context cancellation. The
// second return is false on EOF or cancellation.
func readLine(ctx context.Context, scanner *bufio.Scanner) (string, bool, error) {
	inputCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		if scanner.Scan() {
			inputCh <- scanner.Text()
		} else {
			errCh <- scanner.Err()
		}
	}()

	select {
	case <-ctx.Done():
		return "", false, nil
	case err := <-errCh:
		if err != nil {
			return "", false, fmt.Errorf("reading input: %w", err)
		}
		return "", false, nil // EOF
	case line := <-inputCh:
		return line, true, nil
	}
}

// runExchange submits one line and prints the reply as it streams in. The
// reply entry is everything past the log length at submit time; printing
// diffs successive snapshots so each increment appears as it folds.
func runExchange(ctx context.Context, store *conversation.Store, ctrl *exchange.Controller, line string) error {
	events, subID := store.Subscribe(ctx)
	defer store.Unsubscribe(subID)

	replyIndex := len(store.State().Messages) + 1 // after the user turn

	done := make(chan bool, 1)
	go func() { done <- ctrl.Submit(ctx, line) }()

	printed := ""
	for {
		select {
		case <-ctx.Done():
			<-done
			fmt.Println()
			return nil
		case state := <-events:
			printed = printReply(state, replyIndex, printed)
		case accepted := <-done:
			// Terminal state reached: every event is already queued
			// (publish happens before Submit returns), so drain what
			// is left and finish the line.
			for {
				select {
				case state := <-events:
					printed = printReply(state, replyIndex, printed)
				default:
					if accepted {
						fmt.Println()
						fmt.Println()
					}
					return nil
				}
			}
		}
	}
}

// printReply prints whatever new reply text a snapshot carries, returning
// the total text printed so far. Error substitution replaces the reply
// wholesale, so a non-prefix update restarts the line.
func printReply(state conversation.State, replyIndex int, printed string) string {
	if len(state.Messages) <= replyIndex {
		return printed
	}
	reply := state.Messages[replyIndex]
	if reply.Sender != conversation.SenderBot || reply.IsTyping {
		return printed
	}

	if strings.HasPrefix(reply.Text, printed) {
		botPaint.Print(reply.Text[len(printed):])
	} else {
		fmt.Println()
		botPaint.Print(reply.Text)
	}
	return reply.Text
}
