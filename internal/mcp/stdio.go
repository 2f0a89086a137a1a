package mcp

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// newStdioTransport prepares the subprocess command. The SDK starts it
// on Connect and owns stdin and stdout; stderr is routed to the logger.
func newStdioTransport(cfg *StdioConfig, logger *slog.Logger) *mcpsdk.CommandTransport {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Environ()...)
	cmd.Stderr = &stderrLogger{logger: logger}

	logger.Debug("prepared MCP subprocess", "command", cfg.Command, "args", cfg.Args)
	return &mcpsdk.CommandTransport{Command: cmd}
}

// stderrLogger turns subprocess stderr into debug log lines.
type stderrLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(w.buf.Next(i + 1))
		if len(line) > 0 {
			w.logger.Debug("MCP subprocess stderr", "line", string(line))
		}
	}
	return len(p), nil
}
