package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"bbqstall/crew-monitor/internal/models"
)

const (
	zeroDuration        = "0m"
	invalidActivityData = "Invalid activity data"
	noActivityData      = "No details"
	maxDumpLength       = 160
)

var (
	clockPattern    = regexp.MustCompile(`^(?:(-?\d+)\s+days?\s+)?(-?\d+):(\d{1,2}):(\d{1,2})(?:\.\d+)?$`)
	intervalPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)
)

// FormatDuration renders an interval as "{H}h {M}m", "{M}m {S}s" or "{S}s".
// It accepts "HH:MM:SS" with an optional "N days" prefix and natural-language
// intervals such as "2 hours 30 minutes". Blank or zero input renders "0m";
// text it cannot read is returned unchanged.
func FormatDuration(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return zeroDuration
	}
	if match := clockPattern.FindStringSubmatch(trimmed); match != nil {
		days, _ := strconv.Atoi(match[1])
		hours, _ := strconv.Atoi(match[2])
		minutes, _ := strconv.Atoi(match[3])
		seconds, _ := strconv.Atoi(match[4])
		return formatParts(days*24+hours, minutes, seconds)
	}
	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		if number == 0 {
			return zeroDuration
		}
		return FormatDurationValue(time.Duration(number * float64(time.Second)))
	}
	total, ok := parseInterval(trimmed)
	if !ok {
		return trimmed
	}
	if total == 0 {
		return zeroDuration
	}
	return FormatDurationValue(total)
}

// FormatDurationValue applies the FormatDuration rules to d.
func FormatDurationValue(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return formatParts(total/3600, (total%3600)/60, total%60)
}

func formatParts(hours, minutes, seconds int) string {
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func parseInterval(value string) (time.Duration, bool) {
	matches := intervalPattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, match := range matches {
		amount, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, false
		}
		unit, ok := intervalUnit(strings.ToLower(match[2]))
		if !ok {
			return 0, false
		}
		total += time.Duration(amount * float64(unit))
	}
	// A trailing clock part, e.g. "1 day 02:00:00", is handled by clockPattern;
	// here only unit words are allowed.
	rest := intervalPattern.ReplaceAllString(value, "")
	if strings.Trim(rest, " ,") != "" {
		return 0, false
	}
	return total, true
}

func intervalUnit(word string) (time.Duration, bool) {
	switch word {
	case "d", "day", "days":
		return 24 * time.Hour, true
	case "h", "hr", "hrs", "hour", "hours":
		return time.Hour, true
	case "m", "min", "mins", "minute", "minutes":
		return time.Minute, true
	case "s", "sec", "secs", "second", "seconds":
		return time.Second, true
	default:
		return 0, false
	}
}

// FormatTimeAgo renders how long before now t happened. Elapsed time is
// rounded to whole minutes (halves round down) before choosing the unit, so
// labels never decrease as time passes.
func FormatTimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	elapsed := now.Sub(t)
	if elapsed <= 0 {
		return "Just now"
	}
	minutes := int64((elapsed + 30*time.Second - 1) / time.Minute)
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return fmt.Sprintf("%dm ago", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh ago", minutes/60)
	default:
		return fmt.Sprintf("%dd ago", minutes/(24*60))
	}
}

// FormatActivityData summarizes an activity payload for display. It never
// fails: unreadable payloads render a placeholder.
func FormatActivityData(activityType models.ActivityType, raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return noActivityData
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return invalidActivityData
	}
	// Some clients store the payload as a JSON-encoded string.
	if text, ok := decoded.(string); ok {
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return invalidActivityData
		}
	}
	data, ok := decoded.(map[string]any)
	if !ok {
		if decoded == nil {
			return noActivityData
		}
		return truncate(stringValue(decoded))
	}
	if len(data) == 0 {
		return noActivityData
	}

	switch activityType {
	case models.ActivityLogin:
		var parts []string
		if ip := field(data, "ip_address", "ip"); ip != "" {
			parts = append(parts, "IP: "+ip)
		}
		if device := field(data, "user_agent", "device"); device != "" {
			parts = append(parts, "Device: "+shortDevice(device))
		}
		if len(parts) == 0 {
			return "Logged in"
		}
		return strings.Join(parts, " · ")
	case models.ActivityLogout:
		if duration := field(data, "session_duration", "duration"); duration != "" {
			return "Session: " + FormatDuration(duration)
		}
		return "Logged out"
	case models.ActivityPageView:
		if page := field(data, "page", "current_page", "path"); page != "" {
			return "Viewed " + page
		}
		return "Page view"
	case models.ActivityHeartbeat:
		if page := field(data, "current_page", "page"); page != "" {
			return "Active on " + page
		}
		return "Heartbeat"
	case models.ActivityAction:
		action := field(data, "action", "action_name", "name")
		details := field(data, "details", "description")
		switch {
		case action != "" && details != "":
			return truncate(action + ": " + details)
		case action != "":
			return action
		}
	}
	return dump(data)
}

func field(data map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := data[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(stringValue(value)); text != "" {
			return text
		}
	}
	return ""
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func dump(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+stringValue(data[key]))
	}
	return truncate(strings.Join(parts, ", "))
}

func shortDevice(userAgent string) string {
	lower := strings.ToLower(userAgent)
	switch {
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "iOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return truncate(userAgent)
	}
}

func truncate(value string) string {
	runes := []rune(value)
	if len(runes) <= maxDumpLength {
		return value
	}
	return string(runes[:maxDumpLength-1]) + "…"
}
