package ingest

import "testing"

func TestSmartTitle(t *testing.T) {
	tests := []struct {
		name       string
		app, title string
		url        string
		want       string
	}{
		{"browser suffix", "Google Chrome", "Docs - Google Chrome", "https://docs.example.com", "Docs"},
		{"browser app suffix", "Firefox", "Inbox - Firefox", "https://mail.example.com", "Inbox"},
		{"firefox long suffix", "Firefox", "Inbox - Mozilla Firefox", "https://mail.example.com", "Inbox"},
		{"browser new tab file", "Safari", "New Tab", "https://example.com/files/report%20v2.pdf", "report v2.pdf"},
		{"browser title is url", "Arc", "https://example.com/team/board", "https://example.com/team/board", "example.com/team"},
		{"browser bare host", "Microsoft Edge", "", "https://example.com", "example.com"},
		{"browser without url", "Google Chrome", "Search", "", "Search"},
		{"unlisted extension keeps title", "Code", "main.go - rewind - Code", "", "main.go - rewind - Code"},
		{"editor ext file first", "Code", "store.py - rewind - Visual Studio Code", "", "store.py"},
		{"viewer whole title", "Preview", "Annual Report.PDF", "", "Annual Report.PDF"},
		{"finder", "Finder", "Downloads", "", "Downloads"},
		{"finder self", "Finder", "Finder", "", "Finder"},
		{"distinct title", "Terminal", "ssh prod", "", "ssh prod"},
		{"title equals app", "Slack", "slack", "", "Slack"},
		{"no title", "Calculator", "", "", "Calculator"},
		{"nothing", "", "", "", "Untitled Capture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SmartTitle(tt.app, tt.title, tt.url); got != tt.want {
				t.Errorf("SmartTitle(%q, %q, %q) = %q, want %q", tt.app, tt.title, tt.url, got, tt.want)
			}
		})
	}
}
