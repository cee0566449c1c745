package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"bbqstall/crew-monitor/internal/apiclient"
	"bbqstall/crew-monitor/internal/dashboard"
	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/store"

	"github.com/urfave/cli/v3"
)

var errNotLoggedIn = errors.New("not logged in: run crewctl login")

func newClient(c *cli.Command) (*apiclient.Client, cliConfig, error) {
	cfg, err := resolveConfig(c.String("server"), c.String("token"))
	if err != nil {
		return nil, cliConfig{}, err
	}
	return apiclient.New(cfg.Server, cfg.Token), cfg, nil
}

func requireToken(cfg cliConfig) error {
	if cfg.Token == "" {
		return errNotLoggedIn
	}
	return nil
}

func dashboardFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "tab", Value: string(dashboard.TabOnline), Usage: "online, sessions, activity or summary"},
		&cli.StringFlag{Name: "branch", Usage: "branch id or name to filter by"},
		&cli.StringFlag{Name: "strategy", Value: string(dashboard.Lazy), Usage: "lazy or eager loading"},
		&cli.StringFlag{Name: "start-date", Usage: "work hours start date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "end-date", Usage: "work hours end date (YYYY-MM-DD)"},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and save the access token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "password (or CREWCTL_PASSWORD)", Sources: cli.EnvVars("CREWCTL_PASSWORD")},
			&cli.BoolFlag{Name: "start-session", Usage: "start a crew session after signing in"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, cfg, err := newClient(c)
			if err != nil {
				return err
			}
			if c.String("password") == "" {
				return errors.New("password is required")
			}
			result, err := client.Login(ctx, c.String("email"), c.String("password"))
			if err != nil {
				if errors.Is(err, store.ErrInvalidCredentials) {
					return errors.New("invalid email or password")
				}
				return err
			}
			cfg.Token = result.AccessToken
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Printf("logged in as %s (%s), token expires %s\n", result.User.Email, result.User.Role, result.ExpiresAt.Local().Format(time.DateTime))

			if c.Bool("start-session") {
				sessionID, err := client.StartCrewSession(ctx, store.StartSessionInput{UserID: result.User.ID, UserAgent: "crewctl/" + version})
				if err != nil {
					return fmt.Errorf("start session: %w", err)
				}
				fmt.Printf("crew session %s started\n", sessionID)
			}
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "End the crew session and forget the saved token",
		Action: func(ctx context.Context, c *cli.Command) error {
			client, cfg, err := newClient(c)
			if err != nil {
				return err
			}
			if err := requireToken(cfg); err != nil {
				return err
			}
			if err := client.Logout(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "logout: %v\n", err)
			}
			cfg.Token = ""
			if err := saveConfig(cfg); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, _, err := newClient(c)
			if err != nil {
				return err
			}
			user, ok, err := client.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errNotLoggedIn
			}
			if c.Bool("json") {
				return printJSON(os.Stdout, user)
			}
			printKV(os.Stdout, [][2]string{
				{"id", user.ID},
				{"email", user.Email},
				{"name", user.Name},
				{"role", user.Role},
				{"branch", orDash(user.BranchID)},
			})
			return nil
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Render one dashboard tab from the server",
		Flags: append(dashboardFlags(), &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}),
		Action: func(ctx context.Context, c *cli.Command) error {
			client, cfg, err := newClient(c)
			if err != nil {
				return err
			}
			if err := requireToken(cfg); err != nil {
				return err
			}
			params := url.Values{}
			for _, name := range []string{"tab", "branch", "strategy", "start-date", "end-date"} {
				if value := strings.TrimSpace(c.String(name)); value != "" {
					params.Set(strings.ReplaceAll(name, "-", "_"), value)
				}
			}
			var view dashboard.View
			if err := client.Monitoring(ctx, params, &view); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(os.Stdout, view)
			}
			renderView(os.Stdout, view)
			return nil
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Start or end your crew session",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a crew session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ip", Usage: "IP address to record (defaults to the caller address)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					client, cfg, err := newClient(c)
					if err != nil {
						return err
					}
					if err := requireToken(cfg); err != nil {
						return err
					}
					sessionID, err := client.StartCrewSession(ctx, store.StartSessionInput{
						IPAddress: c.String("ip"),
						UserAgent: "crewctl/" + version,
					})
					if err != nil {
						return err
					}
					fmt.Printf("crew session %s started\n", sessionID)
					return nil
				},
			},
			{
				Name:  "end",
				Usage: "End the active crew session",
				Action: func(ctx context.Context, c *cli.Command) error {
					client, cfg, err := newClient(c)
					if err != nil {
						return err
					}
					if err := requireToken(cfg); err != nil {
						return err
					}
					if err := client.EndCrewSession(ctx, ""); err != nil {
						if errors.Is(err, store.ErrSessionNotFound) {
							return errors.New("no active crew session")
						}
						return err
					}
					fmt.Println("crew session ended")
					return nil
				},
			},
		},
	}
}

func activityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Record a crew activity (heartbeat, page_view, action)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: string(models.ActivityHeartbeat), Usage: "login, logout, heartbeat, page_view or action"},
			&cli.StringFlag{Name: "page", Usage: "current page"},
			&cli.StringFlag{Name: "data", Usage: "activity data as a JSON object"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			client, cfg, err := newClient(c)
			if err != nil {
				return err
			}
			if err := requireToken(cfg); err != nil {
				return err
			}
			activityType := models.ActivityType(c.String("type"))
			if !activityType.Valid() {
				return fmt.Errorf("unknown activity type %q", activityType)
			}
			var data json.RawMessage
			if raw := strings.TrimSpace(c.String("data")); raw != "" {
				if !json.Valid([]byte(raw)) {
					return errors.New("--data must be valid JSON")
				}
				data = json.RawMessage(raw)
			}
			err = client.UpdateCrewActivity(ctx, store.ActivityInput{
				ActivityType: activityType,
				ActivityData: data,
				CurrentPage:  c.String("page"),
			})
			if err != nil {
				return err
			}
			fmt.Println("activity recorded")
			return nil
		},
	}
}

func parseDateRange(start, end string) (monitor.DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return monitor.DateRange{}, nil
	}
	from, err := time.ParseInLocation(time.DateOnly, start, time.Local)
	if err != nil {
		return monitor.DateRange{}, fmt.Errorf("--start-date: %w", err)
	}
	to, err := time.ParseInLocation(time.DateOnly, end, time.Local)
	if err != nil {
		return monitor.DateRange{}, fmt.Errorf("--end-date: %w", err)
	}
	r := monitor.DateRange{Start: from, End: to}
	if !r.Valid() {
		return monitor.DateRange{}, store.ErrInvalidRange
	}
	return r, nil
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
