package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lmb/settlements/internal/domain"
)

func TestUpdatedTokenPersisted(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		w.Header().Set("X-Updated-Token", "rotated")
		fmt.Fprint(w, `{"entries":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &Session{AccessToken: "initial"})
	if _, err := c.FindEntriesByDocNumber(context.Background(), "LMB-US-AAAA"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := c.FindEntriesByDocNumber(context.Background(), "LMB-US-AAAA"); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if got[0] != "Bearer initial" || got[1] != "Bearer rotated" {
		t.Fatalf("auth headers = %v, want initial then rotated", got)
	}
	if c.Session().AccessToken != "rotated" {
		t.Fatalf("session token = %q", c.Session().AccessToken)
	}
}

func TestRefreshOnceOn401(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/refresh":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "refresh" {
				t.Errorf("refresh body = %v", body)
			}
			fmt.Fprint(w, `{"access_token":"fresh","refresh_token":"refresh2"}`)
		default:
			calls++
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			fmt.Fprint(w, `{"accounts":[{"id":"a1","name":"Bank","type":"bank"}]}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &Session{AccessToken: "stale", RefreshToken: "refresh"})
	accounts, err := c.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "a1" {
		t.Fatalf("accounts = %+v", accounts)
	}
	if calls != 2 {
		t.Fatalf("api calls = %d, want 2 (401 then retry)", calls)
	}
	if s := c.Session(); s.AccessToken != "fresh" || s.RefreshToken != "refresh2" {
		t.Fatalf("session = %+v", s)
	}
}

func TestSecond401IsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/refresh" {
			fmt.Fprint(w, `{"access_token":"still-bad"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &Session{AccessToken: "stale", RefreshToken: "refresh"})
	_, err := c.ListAccounts(context.Background())
	if !domain.IsKind(err, domain.KindAuthFailed) {
		t.Fatalf("kind = %q, want external_auth", domain.KindOf(err))
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &Session{AccessToken: "stale"})
	_, err := c.GetEntry(context.Background(), "e1")
	if !domain.IsKind(err, domain.KindAuthFailed) {
		t.Fatalf("kind = %q, want external_auth", domain.KindOf(err))
	}
}

func TestCreateEntryRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/journal-entries" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var e Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		e.ID = "entry-9"
		json.NewEncoder(w).Encode(e)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &Session{AccessToken: "tok"})
	created, err := c.CreateEntry(context.Background(), &Entry{
		DocNumber: "LMB-US-AAAA",
		TxnDate:   "2025-01-31",
		Lines: []EntryLine{
			{AccountID: "a1", PostingType: "Debit", Amount: decimal.New(1550, -2), Description: "Transfer to Bank"},
			{AccountID: "a2", PostingType: "Credit", Amount: decimal.New(1550, -2), Description: "Amazon Sales - Principal - BrandX"},
		},
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if created.ID != "entry-9" || created.DocNumber != "LMB-US-AAAA" {
		t.Fatalf("created = %+v", created)
	}
	cents, err := LineCents(created.Lines[0])
	if err != nil || cents != 1550 {
		t.Fatalf("line cents = %d, %v", cents, err)
	}
}
