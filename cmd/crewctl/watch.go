package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bbqstall/crew-monitor/internal/dashboard"
	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/realtime"

	"github.com/urfave/cli/v3"
)

const clearScreen = "\033[H\033[2J"

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Live crew monitoring dashboard",
		Description: "Keys (followed by enter): 1-4 switch tab, b <branch> filter by branch, " +
			"b clear the filter, r retry, q quit.",
		Flags: dashboardFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			client, cfg, err := newClient(c)
			if err != nil {
				return err
			}
			if err := requireToken(cfg); err != nil {
				return err
			}
			opts, err := dashboardOptions(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			feed, err := realtime.NewWebSocketFeed(cfg.Server, cfg.Token)
			if err != nil {
				return err
			}
			mon := monitor.New(client, client, feed, monitor.Options{})
			defer mon.Close()

			if err := mon.Connect(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "realtime unavailable: %v\n", err)
			}
			dash := dashboard.New(mon, opts)
			if branch := strings.TrimSpace(c.String("branch")); branch != "" {
				mon.SetSelectedBranch(branch)
			}
			// Errors end up in the view's banner.
			_ = dash.Open(ctx)

			return runWatch(ctx, dash, mon.Updates(), os.Stdin, os.Stdout)
		},
	}
}

func dashboardOptions(c *cli.Command) (dashboard.Options, error) {
	strategy, err := dashboard.ParseLoadStrategy(c.String("strategy"))
	if err != nil {
		return dashboard.Options{}, err
	}
	tab, err := dashboard.ParseTab(c.String("tab"))
	if err != nil {
		return dashboard.Options{}, err
	}
	r, err := parseDateRange(c.String("start-date"), c.String("end-date"))
	if err != nil {
		return dashboard.Options{}, err
	}
	return dashboard.Options{Strategy: strategy, Tab: tab, Range: r}, nil
}

// runWatch redraws on every monitor update and once a second so the
// relative times keep moving.
func runWatch(ctx context.Context, dash *dashboard.Dashboard, updates <-chan struct{}, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	draw := func() {
		fmt.Fprint(out, clearScreen)
		renderView(out, dash.View())
	}
	draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
		case <-ticker.C:
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if quit := handleKey(ctx, dash, line); quit {
				return nil
			}
		}
		draw()
	}
}

func handleKey(ctx context.Context, dash *dashboard.Dashboard, line string) bool {
	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "q", "quit":
		return true
	case "r":
		_ = dash.Retry(ctx)
	case "b":
		_ = dash.SetBranch(ctx, strings.TrimSpace(arg))
	case "1", "2", "3", "4":
		_ = dash.SelectTab(ctx, dashboard.Tabs[command[0]-'1'])
	default:
		if tab, err := dashboard.ParseTab(command); err == nil {
			_ = dash.SelectTab(ctx, tab)
		}
	}
	return false
}
