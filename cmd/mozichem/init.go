package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/examples"
)

var initCmd = &cli.Command{
	Name:      "init",
	Usage:     "Write an example config.yaml and mcp.yaml into a directory",
	ArgsUsage: "[dir]",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		dir := "."
		if cmd.Args().Len() > 0 {
			dir = cmd.Args().First()
		}
		return runInit(cmd.Root().Writer, dir)
	},
}

// runInit initializes a MoziChem working directory with the bundled
// examples. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing MoziChem workspace in %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "db"), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, f := range []struct {
		name    string
		content []byte
		perm    os.FileMode
	}{
		// config.yaml may carry API keys.
		{"config.yaml", examples.ConfigYAML, 0o600},
		{"mcp.yaml", examples.MCPYAML, 0o644},
	} {
		path := filepath.Join(dir, f.name)
		wrote, err := writeIfMissing(path, f.content, f.perm)
		if err != nil {
			return err
		}
		mark := "✓"
		if !wrote {
			mark = "·"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, path)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and mcp.yaml, then run: mozichem validate && mozichem serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, reporting whether it wrote.
func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
