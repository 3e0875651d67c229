package types

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeAccount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare handle", "jane_doe", "jane_doe", false},
		{"at prefix", "@jane_doe", "jane_doe", false},
		{"whitespace", "  jane_doe  ", "jane_doe", false},
		{"https url", "https://x.com/jane_doe", "jane_doe", false},
		{"http url", "http://x.com/jane_doe", "jane_doe", false},
		{"url with trailing slash", "https://x.com/jane_doe/", "jane_doe", false},
		{"url with subpath", "https://x.com/jane_doe/with_replies", "jane_doe", false},
		{"empty", "", "", true},
		{"only at", "@", "", true},
		{"bare domain url", "https://x.com/", "", true},
		{"ftp scheme", "ftp://x.com/jane_doe", "", true},
		{"invalid characters", "jane doe", "", true},
		{"hyphen", "jane-doe", "", true},
		{"too long handle", strings.Repeat("a", MaxAccountLength+1), "", true},
		{"too long input", strings.Repeat("a", MaxURLLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAccount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeAccount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeAccount(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestScrapeRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ScrapeRequest
		wantErr bool
	}{
		{"username only", ScrapeRequest{Username: "jane"}, false},
		{"url only", ScrapeRequest{URL: "https://x.com/jane"}, false},
		{"with post count", ScrapeRequest{Username: "jane", PostsPerAccount: 50}, false},
		{"neither", ScrapeRequest{}, true},
		{"both", ScrapeRequest{URL: "https://x.com/jane", Username: "jane"}, true},
		{"posts too high", ScrapeRequest{Username: "jane", PostsPerAccount: MaxPostsPerAccount + 1}, true},
		{"posts negative", ScrapeRequest{Username: "jane", PostsPerAccount: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestMultiScrapeRequestValidate(t *testing.T) {
	many := make([]string, MaxAccountsPerRequest+1)
	for i := range many {
		many[i] = "acct"
	}

	tests := []struct {
		name     string
		req      MultiScrapeRequest
		wantErr  bool
		sentinel error
	}{
		{"valid", MultiScrapeRequest{Accounts: []string{"a", "b"}}, false, nil},
		{"at limit", MultiScrapeRequest{Accounts: many[:MaxAccountsPerRequest]}, false, nil},
		{"empty", MultiScrapeRequest{}, true, ErrNoAccounts},
		{"over limit", MultiScrapeRequest{Accounts: many}, true, ErrInvalidRequest},
		{"blank entry", MultiScrapeRequest{Accounts: []string{"a", "  "}}, true, ErrInvalidRequest},
		{"posts too high", MultiScrapeRequest{Accounts: []string{"a"}, PostsPerAccount: 999}, true, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v, got %v", tt.sentinel, err)
			}
		})
	}
}

func TestBatchScrapeRequestValidate(t *testing.T) {
	many := make([]string, MaxAccountsPerBatch+1)
	for i := range many {
		many[i] = "acct"
	}

	tests := []struct {
		name    string
		req     BatchScrapeRequest
		wantErr bool
	}{
		{"valid", BatchScrapeRequest{Accounts: []string{"a"}, BatchSize: 5}, false},
		{"fifty accounts", BatchScrapeRequest{Accounts: many[:MaxAccountsPerBatch]}, false},
		{"over limit", BatchScrapeRequest{Accounts: many}, true},
		{"batch size too large", BatchScrapeRequest{Accounts: []string{"a"}, BatchSize: MaxBatchSize + 1}, true},
		{"batch size negative", BatchScrapeRequest{Accounts: []string{"a"}, BatchSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
