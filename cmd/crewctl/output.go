package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bbqstall/crew-monitor/internal/dashboard"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	tabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

var tabTitles = map[dashboard.Tab]string{
	dashboard.TabOnline:   "Online Status",
	dashboard.TabSessions: "Sessions",
	dashboard.TabActivity: "Activity Logs",
	dashboard.TabSummary:  "Work Hours",
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func renderView(w io.Writer, view dashboard.View) {
	fmt.Fprintln(w, titleStyle.Render("Crew Monitoring"))
	fmt.Fprintln(w, renderStatusLine(view))
	fmt.Fprintln(w, renderTabs(view))
	fmt.Fprintln(w)

	if view.Error != "" {
		banner := view.Error
		if view.CanRetry {
			banner += " (enter r to retry)"
		}
		fmt.Fprintln(w, errorStyle.Render(banner))
		fmt.Fprintln(w)
	}
	if view.EmptyMessage != "" {
		fmt.Fprintln(w, mutedStyle.Render(view.EmptyMessage))
		return
	}

	switch view.Tab {
	case dashboard.TabOnline:
		rows := make([][]string, 0, len(view.Online))
		for _, row := range view.Online {
			rows = append(rows, []string{row.Name, row.Branch, row.Status, row.LastSeen, row.SessionDuration, row.CurrentPage})
		}
		printTable(w, []string{"NAME", "BRANCH", "STATUS", "LAST SEEN", "SESSION", "PAGE"}, rows)
	case dashboard.TabSessions:
		rows := make([][]string, 0, len(view.Sessions))
		for _, row := range view.Sessions {
			rows = append(rows, []string{row.Name, row.Branch, row.Status, row.Started, row.Duration, row.LastActivity, row.Device})
		}
		printTable(w, []string{"NAME", "BRANCH", "STATUS", "STARTED", "DURATION", "LAST ACTIVITY", "DEVICE"}, rows)
	case dashboard.TabActivity:
		rows := make([][]string, 0, len(view.Activity))
		for _, row := range view.Activity {
			rows = append(rows, []string{row.When, row.Name, row.Branch, row.Type, row.Details})
		}
		printTable(w, []string{"WHEN", "NAME", "BRANCH", "TYPE", "DETAILS"}, rows)
	case dashboard.TabSummary:
		rows := make([][]string, 0, len(view.Summary))
		for _, row := range view.Summary {
			rows = append(rows, []string{row.Name, row.Branch, row.TotalHours, fmt.Sprint(row.TotalSessions), row.AvgSession})
		}
		printTable(w, []string{"NAME", "BRANCH", "TOTAL", "SESSIONS", "AVG SESSION"}, rows)
	}
}

func renderStatusLine(view dashboard.View) string {
	status := view.ConnectionStatus
	if status == "SUBSCRIBED" {
		status = okStyle.Render(status)
	} else if status != "" {
		status = errorStyle.Render(status)
	}
	branch := "all branches"
	if view.SelectedBranch != "" {
		branch = view.SelectedBranch
		for _, b := range view.Branches {
			if b.ID == view.SelectedBranch {
				branch = b.Name
			}
		}
	}
	parts := []string{
		fmt.Sprintf("online %d", view.OnlineCount),
		fmt.Sprintf("active sessions %d", view.ActiveSessions),
		"branch " + branch,
	}
	if view.Tab == dashboard.TabSummary {
		parts = append(parts, view.StartDate+" → "+view.EndDate)
	}
	if view.LastUpdated != "" {
		parts = append(parts, "updated "+view.LastUpdated)
	}
	if view.Loading {
		parts = append(parts, "loading…")
	}
	line := mutedStyle.Render(strings.Join(parts, "  ·  "))
	if status == "" {
		return line
	}
	return status + "  " + line
}

func renderTabs(view dashboard.View) string {
	tabs := make([]string, 0, len(view.Tabs))
	for _, tab := range view.Tabs {
		if tab == view.Tab {
			tabs = append(tabs, activeStyle.Render(tabTitles[tab]))
			continue
		}
		tabs = append(tabs, tabStyle.Render(tabTitles[tab]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// printTable aligns cells with tabwriter and then styles the header line, so
// escape codes do not count toward column widths.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no results"))
		return
	}
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	fmt.Fprintln(w, headerStyle.Render(strings.TrimRight(lines[0], " ")))
	for _, line := range lines[1:] {
		fmt.Fprintln(w, line)
	}
}

func printKV(w io.Writer, rows [][2]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", mutedStyle.Render(row[0]), row[1])
	}
	_ = tw.Flush()
}
