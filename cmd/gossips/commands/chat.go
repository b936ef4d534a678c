package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gossips/internal/app"
	"gossips/internal/domain"
	"gossips/internal/logger"
	"gossips/internal/notify"
	"gossips/internal/services/peer"
)

// chat <peer>: join the room with <peer> and read commands from stdin.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <peer>",
		Short: "Chat with a peer; type /secure to propose secure mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.PeerID == "" {
				return fmt.Errorf("peer id required (--peer or peer_id)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := app.NewWire(ctx, cfg)
			if err != nil {
				return err
			}
			defer w.Close()

			self := domain.PeerID(cfg.PeerID)
			out := cmd.OutOrStdout()
			p, err := peer.Open(ctx, w.PeerOptions(self, domain.PeerID(args[0]), notify.NewConsole(out, self, false)))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Joined room %s. Type /help for commands.\n", p.Room())

			runErr := chatLoop(ctx, p, cmd.InOrStdin(), out)

			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := p.Close(closeCtx); err != nil {
				logger.Error("Leaving the room failed", err, "room", p.Room())
			}
			return runErr
		},
	}
}

func chatLoop(ctx context.Context, p *peer.Peer, in io.Reader, out io.Writer) error {
	lines := make(chan string)
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
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, p, strings.TrimSpace(line), out)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", describe(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, p *peer.Peer, line string, out io.Writer) (quit bool, err error) {
	if line == "" {
		return false, nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, "/secure /accept /decline /key <passphrase> /cancel /end /status /exit")
		return false, nil
	case "/secure":
		return false, p.StartSecure(ctx)
	case "/accept":
		return false, p.Accept(ctx)
	case "/decline":
		return false, p.Decline(ctx)
	case "/key":
		return false, p.EnterPassphrase(ctx, strings.TrimSpace(arg))
	case "/cancel":
		return false, p.Cancel(ctx)
	case "/end":
		return false, p.Terminate(ctx)
	case "/status":
		st, err := p.Status(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "room %s: %s (%s), secure=%t\n", st.Room, st.State, st.Role, st.Secure)
		return false, nil
	}

	st, err := p.Status(ctx)
	if err != nil {
		return false, err
	}
	if st.Secure {
		return false, p.Send(ctx, line)
	}
	return false, p.SendPlain(ctx, line)
}

// describe turns protocol errors into user-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyPending):
		return "a secure mode request is already in progress"
	case errors.Is(err, domain.ErrEmptyPassphrase):
		return "the key must not be empty"
	case errors.Is(err, domain.ErrInvalidState):
		return "that is not possible right now"
	case errors.Is(err, domain.ErrChannel):
		return "connection problem, please retry: " + err.Error()
	}
	return err.Error()
}
