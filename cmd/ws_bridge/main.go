// Command ws_bridge exposes an ACP agent on stdio (quill acp by default)
// over a WebSocket. Each text message is one JSON-RPC line.
package main

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
)

// maxLine bounds a single JSON-RPC message read from the agent.
const maxLine = 16 << 20

var cli struct {
	Addr    string   `default:":8080" help:"Listen address"`
	Path    string   `default:"/ws" help:"WebSocket endpoint path"`
	Command []string `arg:"" optional:"" passthrough:"" help:"Agent command (default: quill acp)"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	kong.Parse(&cli, kong.Name("ws_bridge"), kong.Description("Serve an ACP agent over WebSocket."))
	command := cli.Command
	if len(command) == 0 {
		command = []string{"quill", "acp"}
	}

	http.HandleFunc(cli.Path, handleWS(command))
	slog.Info("WebSocket bridge listening", "addr", cli.Addr, "path", cli.Path, "command", command)
	if err := http.ListenAndServe(cli.Addr, nil); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func handleWS(cmdArgs []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cmd := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			slog.Error("stdin pipe", "error", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			slog.Error("stdout pipe", "error", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			slog.Error("stderr pipe", "error", err)
			return
		}
		if err := cmd.Start(); err != nil {
			slog.Error("starting agent", "command", cmdArgs, "error", err)
			return
		}
		log := slog.With("pid", cmd.Process.Pid)
		log.Info("agent started", "remote", r.RemoteAddr)

		var pumps sync.WaitGroup
		pumps.Add(2)

		// Agent stdout to the socket. This goroutine is the only writer.
		go func() {
			defer pumps.Done()
			defer conn.Close()
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
			for scanner.Scan() {
				if err := conn.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
					log.Debug("socket write", "error", err)
					return
				}
			}
			if err := scanner.Err(); err != nil {
				log.Warn("reading agent output", "error", err)
			}
		}()

		// Agent diagnostics go to our log rather than the protocol stream.
		go func() {
			defer pumps.Done()
			scanner := bufio.NewScanner(stderr)
			for scanner.Scan() {
				log.Debug("agent", "stderr", scanner.Text())
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Debug("socket read", "error", err)
				break
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Warn("writing to agent", "error", err)
				break
			}
		}

		_ = stdin.Close()
		cancel()
		pumps.Wait()
		err = cmd.Wait()
		log.Info("agent exited", "error", err)
	}
}
