package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/agentbridge/internal/bridge"
	"github.com/crystaldolphin/agentbridge/internal/dependency"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

var (
	serveAddr    string
	serveTheme   string
	serveConsole bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge and wait for the web client",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides channel.listenAddr)")
	serveCmd.Flags().StringVar(&serveTheme, "theme", "", "Theme pushed to the client after each handshake, e.g. dark")
	serveCmd.Flags().BoolVar(&serveConsole, "console", true, "Answer show_alert prompts from stdin")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	addr := cfg.Channel.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	fmt.Printf("%s Starting agentbridge on ws://%s%s\n", logo, addr, cfg.Channel.Path)

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	engine := c.Engine()

	g.Go(func() error { return c.Server().ListenAndServe(gctx, addr) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		c.ConnectMCP(gctx, true)
		return nil
	})
	if serveTheme != "" {
		g.Go(func() error { return pushTheme(gctx, engine, serveTheme, cfg.Bridge.ThemeGrace()) })
	}
	if r := c.Reminders(); r != nil {
		g.Go(func() error {
			if err := r.Start(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if serveConsole && c.Alerts() != nil {
		g.Go(func() error { return alertConsole(gctx, os.Stdin, os.Stdout, c.Alerts()) })
	}

	fmt.Printf("%s Bridge running. Press Ctrl+C to stop.\n", logo)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

// pushTheme sends the theme whenever the client (re)connects and reports
// whether it confirmed within the grace period.
func pushTheme(ctx context.Context, engine *bridge.Engine, theme string, grace time.Duration) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		st, err := engine.State(ctx)
		if err != nil {
			return nil
		}
		if st.Handshakes == seen {
			continue
		}
		seen = st.Handshakes
		if err := engine.SetTheme(ctx, value.ObjectOf(value.Object{"name": value.String(theme)})); err != nil {
			return nil
		}
		ready, err := engine.WaitThemeReady(ctx, grace)
		if err != nil {
			return nil
		}
		if ready {
			slog.Info("Theme applied", "theme", theme)
		} else {
			slog.Info("Theme not confirmed in time, showing content anyway", "theme", theme, "grace", grace)
		}
	}
}

// alertConsole answers pending alerts from line input:
//
//	alerts              list pending alerts
//	<n> <option>        answer alert n (from the list) with an option or its number
//	dismiss <n>         dismiss alert n
func alertConsole(ctx context.Context, in io.Reader, out io.Writer, alerts *tools.AlertTool) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if msg := handleConsoleLine(alerts, line); msg != "" {
				fmt.Fprintln(out, msg)
			}
		}
	}
}

func handleConsoleLine(alerts *tools.AlertTool, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	pending := alerts.Pending()
	pick := func(s string) (tools.Alert, bool) {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > len(pending) {
			return tools.Alert{}, false
		}
		return pending[n-1], true
	}

	switch {
	case fields[0] == "alerts":
		if len(pending) == 0 {
			return "No pending alerts."
		}
		var sb strings.Builder
		for i, a := range pending {
			fmt.Fprintf(&sb, "%d. [%s] %s (%s)\n", i+1, a.Severity, a.Message, strings.Join(a.Options, " / "))
		}
		return strings.TrimRight(sb.String(), "\n")

	case fields[0] == "dismiss" && len(fields) == 2:
		a, ok := pick(fields[1])
		if !ok {
			return "No such alert."
		}
		if err := alerts.Dismiss(a.ID); err != nil {
			return err.Error()
		}
		return "Dismissed."

	case len(fields) >= 2:
		a, ok := pick(fields[0])
		if !ok {
			return "No such alert."
		}
		choice := strings.Join(fields[1:], " ")
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(a.Options) {
			choice = a.Options[n-1]
		}
		if err := alerts.Resolve(a.ID, choice); err != nil {
			return err.Error()
		}
		return "Answered: " + choice
	}
	return `Commands: "alerts", "<n> <option>", "dismiss <n>"`
}
