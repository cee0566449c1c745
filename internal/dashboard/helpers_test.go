package dashboard

import (
	"errors"
	"strconv"
	"strings"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

// parseAgo splits labels like "5m ago" into 5 and "m".
func parseAgo(label string) (int, string, error) {
	body, ok := strings.CutSuffix(label, " ago")
	if !ok || len(body) < 2 {
		return 0, "", errors.New("not an ago label")
	}
	n, err := strconv.Atoi(body[:len(body)-1])
	if err != nil {
		return 0, "", err
	}
	return n, body[len(body)-1:], nil
}
