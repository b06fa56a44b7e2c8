// vibechat is a terminal client for a running VIBE gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/vibe-companion/backend/internal/model/chat"
	"github.com/vibe-companion/backend/pkg/client"
	"github.com/vibe-companion/backend/pkg/session"
)

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "gateway base URL")
	token := flag.String("token", os.Getenv("VIBE_ID_TOKEN"), "Firebase ID token for history sync")
	personality := flag.String("personality", chat.DefaultPersonality, "personality id")
	language := flag.String("language", chat.DefaultLanguage, "language id")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	opts := []client.Option{}
	if *token != "" {
		opts = append(opts, client.WithTokenSource(func(context.Context) (string, error) { return *token, nil }))
	}
	api := client.New(*baseURL, opts...)

	capture := &fileCapture{}
	sessOpts := session.Options{
		Gateway:      api,
		Capture:      capture,
		Connectivity: newDialCheck(*baseURL),
		Player:       printPlayer{},
		Events:       session.EventSinkFunc(printEvent),
		Logger:       logger,
		Personality:  *personality,
		Language:     *language,
	}
	if *token != "" {
		sessOpts.History = api
	}
	s := session.New(sessOpts)

	if err := s.LoadInitial(ctx); err != nil {
		logger.Warn("history unavailable", slog.Any("error", err))
	}
	for _, m := range s.Messages() {
		printMessage(m)
	}

	fmt.Println("Type a message, or " + strings.Join(commands, ", "))
	in := newPrompt()
	defer in.Close()
	for {
		line, err := in.Read("> ")
		if err != nil {
			// Ctrl-C (liner.ErrPromptAborted) and Ctrl-D both end the session.
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := dispatch(ctx, s, capture, line); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

var errQuit = errors.New("quit")

var commands = []string{"/record <file>", "/stop", "/play", "/discard", "/send", "/retry", "/older", "/clear", "/quit"}

// prompt reads lines with editing and history kept across runs.
type prompt struct {
	line        *liner.State
	historyFile string
}

func newPrompt() *prompt {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		if !strings.HasPrefix(in, "/") {
			return nil
		}
		var out []string
		for _, c := range commands {
			name, _, _ := strings.Cut(c, " ")
			if strings.HasPrefix(name, in) {
				out = append(out, name)
			}
		}
		return out
	})

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	p := &prompt{line: line, historyFile: filepath.Join(dir, "vibechat", "history")}
	if f, err := os.Open(p.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return p
}

func (p *prompt) Read(text string) (string, error) {
	input, err := p.line.Prompt(text)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

func (p *prompt) Close() {
	if err := os.MkdirAll(filepath.Dir(p.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(p.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = p.line.WriteHistory(f)
			f.Close()
		}
	}
	_ = p.line.Close()
}

func dispatch(ctx context.Context, s *session.Session, capture *fileCapture, line string) error {
	if !strings.HasPrefix(line, "/") {
		return s.SendText(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/record":
		if arg == "" {
			return fmt.Errorf("usage: /record <audio file>")
		}
		capture.setSource(strings.TrimSpace(arg))
		return s.StartRecording(ctx)
	case "/stop":
		return s.StopRecording()
	case "/play":
		return s.PlayRecording(ctx)
	case "/discard":
		return s.DiscardRecording()
	case "/send":
		return s.SendRecording(ctx)
	case "/retry":
		return s.Retry(ctx)
	case "/clear":
		return s.ClearHistory(ctx)
	case "/older":
		before := len(s.Messages())
		if err := s.LoadOlder(ctx); err != nil {
			return err
		}
		msgs := s.Messages()
		for _, m := range msgs[:len(msgs)-before] {
			printMessage(m)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

// fileCapture "records" by reading an audio file when stopped.
type fileCapture struct {
	mu      sync.Mutex
	path    string
	started time.Time
}

func (c *fileCapture) setSource(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

func (c *fileCapture) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := os.Stat(c.path); err != nil {
		return fmt.Errorf("%w: %v", client.ErrMicrophoneDenied, err)
	}
	c.started = time.Now()
	return nil
}

func (c *fileCapture) Stop() (session.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		return session.Recording{}, err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(c.path)))
	if contentType == "" {
		contentType = "audio/webm"
	}
	return session.Recording{Audio: data, ContentType: contentType, Duration: time.Since(c.started)}, nil
}

// dialCheck reports online when the gateway's TCP port accepts connections.
type dialCheck struct {
	addr string
}

func newDialCheck(baseURL string) dialCheck {
	u, err := url.Parse(baseURL)
	if err != nil {
		return dialCheck{}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	return dialCheck{addr: host}
}

func (d dialCheck) Online() bool {
	if d.addr == "" {
		return false
	}
	conn, err := net.DialTimeout("tcp", d.addr, 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

type printPlayer struct{}

func (printPlayer) PlayRecording(_ context.Context, rec session.Recording) error {
	fmt.Printf("  [recording %s, %d bytes, %s]\n", rec.ContentType, len(rec.Audio), rec.Duration.Round(time.Millisecond))
	return nil
}

func (printPlayer) PlayURL(_ context.Context, u string) error {
	fmt.Printf("  [audio] %s\n", u)
	return nil
}

func printEvent(e session.Event) {
	switch e.Kind {
	case session.EventMessage:
		printMessage(*e.Message)
	case session.EventError:
		fmt.Fprintf(os.Stderr, "! %s: %s\n", e.Info.Title, e.Info.UserMessage)
	case session.EventStateChanged:
		if e.State == session.StateSending {
			fmt.Println("  ...")
		}
	}
}

func printMessage(m chat.Message) {
	who := "you"
	if m.Type == chat.TypeBot {
		who = "VIBE"
	}
	if m.IsError {
		who += " (error, /retry to resend)"
	}
	fmt.Printf("%s: %s\n", who, m.Content)
}
