package dashboard

import (
	"reflect"
	"testing"

	"bbqstall/crew-monitor/internal/models"
)

func sessionKey(row models.CrewSession) (string, string) {
	return row.BranchID, row.BranchName
}

func TestFilterByBranch(t *testing.T) {
	rows := []models.CrewSession{
		{ID: "s1", BranchID: "b1", BranchName: "Main Street"},
		{ID: "s2", BranchID: "b2", BranchName: "Harbor"},
		{ID: "s3", BranchID: "b1", BranchName: "Main Street"},
		{ID: "s4"},
	}

	tests := []struct {
		name   string
		branch string
		want   []string
	}{
		{name: "all branches", branch: "", want: []string{"s1", "s2", "s3", "s4"}},
		{name: "by id", branch: "b1", want: []string{"s1", "s3"}},
		{name: "by name", branch: "Harbor", want: []string{"s2"}},
		{name: "no match", branch: "b9", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterByBranch(rows, tt.branch, sessionKey)
			ids := []string{}
			for _, row := range got {
				ids = append(ids, row.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestFilterByBranchIsIdempotent(t *testing.T) {
	rows := []models.CrewSession{
		{ID: "s1", BranchID: "b1"},
		{ID: "s2", BranchID: "b2"},
		{ID: "s3", BranchID: "b1"},
	}
	for _, branch := range []string{"", "b1", "b2", "missing"} {
		once := FilterByBranch(rows, branch, sessionKey)
		twice := FilterByBranch(once, branch, sessionKey)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("filter not idempotent for %q: %v vs %v", branch, once, twice)
		}
	}
	if got := FilterByBranch(rows, "", sessionKey); !reflect.DeepEqual(got, rows) {
		t.Fatalf("expected empty branch to return input unchanged")
	}
}
