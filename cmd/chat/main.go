package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"

	"github.com/wendychen0731/chat-app/internal/domain"
	"github.com/wendychen0731/chat-app/internal/logging"
	"github.com/wendychen0731/chat-app/internal/session"
)

func main() {
	wsURL := flag.String("ws", "ws://localhost:8081/ws", "websocket endpoint")
	historyURL := flag.String("history", "http://localhost:8081/history", "history endpoint")
	name := flag.String("name", "", "display name (defaults to the saved one)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := run(*wsURL, *historyURL, *name, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(wsURL, historyURL, name, logLevel string) error {
	logger := logging.New(logging.Config{Level: logLevel, Format: "pretty"})

	profile, err := session.NewFileProfile()
	if err != nil {
		return err
	}

	view := &consoleView{}
	s := session.New(
		session.Dialer(wsURL, logger),
		session.NewHTTPHistory(historyURL),
		profile,
		view,
		logger,
	)
	defer s.Close()

	stdin := bufio.NewScanner(os.Stdin)

	if name == "" {
		name = s.SavedIdentity()
	}
	for strings.TrimSpace(name) == "" {
		fmt.Print("choose a name: ")
		if !stdin.Scan() {
			return nil
		}
		name = stdin.Text()
	}
	view.me = strings.TrimSpace(name)

	ctx := context.Background()
	if err := s.Confirm(ctx, name); err != nil {
		return err
	}

	color.Gray.Println("commands: /msg <peer> <text>, /room <peer|public>, /unread, /away, /back, /quit")

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
		case line == "/quit":
			return nil
		case line == "/away":
			s.VisibilitySignal(ctx, false)
			color.Gray.Println("(away)")
		case line == "/back":
			s.VisibilitySignal(ctx, true)
			color.Gray.Printf("(back, session %s)\n", s.State())
		case line == "/unread":
			for room, n := range s.Unread() {
				if room == session.PublicRoom {
					room = "public"
				}
				fmt.Printf("  %s: %d\n", room, n)
			}
		case strings.HasPrefix(line, "/room "):
			room := strings.TrimSpace(strings.TrimPrefix(line, "/room "))
			if room == "public" {
				room = session.PublicRoom
			}
			s.SwitchRoom(ctx, room)
		case strings.HasPrefix(line, "/msg "):
			rest := strings.TrimPrefix(line, "/msg ")
			peer, text, ok := strings.Cut(rest, " ")
			if !ok {
				color.Red.Println("usage: /msg <peer> <text>")
				continue
			}
			if err := s.SendPrivate(ctx, peer, text); err != nil {
				color.Red.Printf("not sent: %v\n", err)
			}
		default:
			if err := s.SendPublic(ctx, line); err != nil {
				color.Red.Printf("not sent: %v\n", err)
			}
		}
	}

	return stdin.Err()
}

// consoleView renders session state to the terminal.
type consoleView struct {
	me string
}

func (v *consoleView) SetMessages(messages []domain.ServerEvent) {
	color.Gray.Println("--- history ---")
	for _, m := range messages {
		v.AppendMessage(m)
	}
}

func (v *consoleView) AppendMessage(m domain.ServerEvent) {
	switch m.Type {
	case domain.EventJoin:
		color.Yellow.Printf("* %s joined (%s)\n", m.Username, m.CreatedAt)
	case domain.EventLeave:
		color.Yellow.Printf("* %s left (%s)\n", m.Username, m.CreatedAt)
	case domain.EventPrivate:
		color.Cyan.Printf("[dm] %s -> %s: %s\n", m.From, m.To, m.Message)
	default:
		if m.Username == v.me {
			color.Green.Printf("%s: %s\n", m.Username, m.Message)
		} else {
			fmt.Printf("%s: %s\n", m.Username, m.Message)
		}
	}
}

func (v *consoleView) SetUsers(users []string) {
	color.Gray.Printf("online: %s\n", strings.Join(users, ", "))
}
