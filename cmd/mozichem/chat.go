package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/internal/chat"
)

var (
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("7")).
			Padding(0, 1)
)

var chatCmd = &cli.Command{
	Name:  "chat",
	Usage: "Chat with the agent in the terminal (type quit or exit to leave)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "thread", Usage: "resume an existing thread ID"},
	},
	Action: chatAction,
}

func chatAction(ctx context.Context, cmd *cli.Command) error {
	svc, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize agent: %w", err)
	}
	state := svc.manager.State()

	root := cmd.Root()
	out := root.Writer
	fmt.Fprintln(out, ruleStyle.Render(fmt.Sprintf("%s · %s/%s", state.AgentName, state.ModelProvider, state.ModelName)))
	fmt.Fprintln(out, footerStyle.Render("Type quit or exit to leave, /new to start a fresh thread."))

	return chatLoop(ctx, root.Reader, out, svc.handler, cmd.String("thread"))
}

// chatLoop reads one message per line from in until EOF, quit or exit.
// Each turn continues the thread of the previous one.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, h *chat.Handler, threadID string) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, ruleStyle.Render("You: "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, errorStyle.Render("Exiting chat. Goodbye!"))
			return nil
		case "/new":
			threadID = ""
			fmt.Fprintln(out, footerStyle.Render("Started a new thread."))
			continue
		}

		resp, err := h.Stream(ctx, chat.Request{Message: line, ThreadID: threadID}, func(u chat.Update) {
			switch u.Type {
			case "tool_call_start":
				fmt.Fprintln(out, toolStyle.Render("→ "+u.ToolName))
			case "tool_call_done":
				if u.ToolError != "" {
					fmt.Fprintln(out, errorStyle.Render("✗ "+u.ToolName+": "+u.ToolError))
				}
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		threadID = resp.ThreadID
		fmt.Fprintln(out, renderAnswer(resp))
	}
}

// renderAnswer draws the reply in a panel with a usage footer.
func renderAnswer(resp *chat.Response) string {
	body := panelStyle.Render(strings.TrimSpace(resp.Content))
	footer := fmt.Sprintf("%s · %s",
		formatTokens(resp.TokenMetadata),
		time.Duration(resp.DurationMS*int64(time.Millisecond)).Round(10*time.Millisecond),
	)
	if resp.Exhausted {
		footer += " · iteration limit reached"
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footerStyle.Render(footer))
}

func formatTokens(t chat.TokenMetadata) string {
	if t.InputTokens < 0 || t.OutputTokens < 0 {
		return "tokens not reported"
	}
	return fmt.Sprintf("%s in / %s out tokens",
		humanize.Comma(int64(t.InputTokens)), humanize.Comma(int64(t.OutputTokens)))
}
