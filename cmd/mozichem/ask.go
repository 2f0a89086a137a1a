package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/internal/chat"
)

var askCmd = &cli.Command{
	Name:      "ask",
	Usage:     "Ask a single question and print the answer",
	ArgsUsage: "<question>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print the full chat response as JSON"},
	},
	Action: askAction,
}

// askAction builds the agent, runs one turn on a fresh thread and
// prints the reply. Useful for smoke tests without starting the server.
func askAction(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return errors.New("usage: mozichem ask <question>")
	}

	svc, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}

	resp, err := svc.handler.Chat(ctx, chat.Request{Message: question})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(w, resp.Content)
	return nil
}
