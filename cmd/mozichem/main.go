// MoziChem is a conversational chemistry agent backed by MCP tool servers.
//
// It exposes an HTTP API with a built-in web console, a terminal chat
// REPL and one-shot queries. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	mozichem serve                 Start the API server
//	mozichem chat                  Chat with the agent in the terminal
//	mozichem ask <question>        Ask a single question
//	mozichem validate [source]     Validate an MCP source file
//	mozichem init [dir]            Write an example config and MCP source
//	mozichem version               Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
)

// main only wires the process environment into run, which keeps
// os.Exit and the standard streams out of the application logic.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run builds the command tree and executes args (including the program
// name). All I/O goes through the given streams so tests can drive it.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	return newApp(stdin, stdout, stderr).Run(ctx, args)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "mozichem",
		Version:   buildinfo.Version,
		Usage:     buildinfo.Description,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (default: auto-discover)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log_level from the config file",
			},
		},
		Commands: []*cli.Command{
			serveCmd,
			chatCmd,
			askCmd,
			validateCmd,
			initCmd,
			versionCmd,
		},
	}
}

var versionCmd = &cli.Command{
	Name:  "version",
	Usage: "Print version and build information",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print build information as JSON"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		w := cmd.Root().Writer
		info := buildinfo.Info()
		if cmd.Bool("json") {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintln(w, buildinfo.String())
		for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", info[k])
		}
		return nil
	},
}
