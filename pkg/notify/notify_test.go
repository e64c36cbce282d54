package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendCard(t *testing.T) {
	var got cardMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json; charset=UTF-8" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient()
	c.HTTPClient = srv.Client()
	err := c.SendCard(context.Background(), srv.URL, "Weekly Report", []string{"<b>Active:</b> 3", "footer"})
	if err != nil {
		t.Fatalf("SendCard: %v", err)
	}

	if len(got.Cards) != 1 {
		t.Fatalf("cards = %d, want 1", len(got.Cards))
	}
	if got.Cards[0].Header.Title != "Weekly Report" {
		t.Errorf("title = %q", got.Cards[0].Header.Title)
	}
	if len(got.Cards[0].Sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(got.Cards[0].Sections))
	}
	if text := got.Cards[0].Sections[0].Widgets[0].TextParagraph.Text; text != "<b>Active:</b> 3" {
		t.Errorf("section text = %q", text)
	}
}

func TestSendTextErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook token", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient()
	c.HTTPClient = srv.Client()
	err := c.SendText(context.Background(), srv.URL, "hello")
	if err == nil {
		t.Fatal("SendText succeeded against a 403 webhook")
	}
}
