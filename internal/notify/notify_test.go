package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

func TestWebhookDeliver(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, "Course Watcher")
	n := model.NewNotification(model.KindSeat, "12345", "Seat available: X.", []string{"<@1>", "<@2>"})
	if err := hook.Deliver(context.Background(), n); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.Content != "Seat available: X. <@1> <@2>" {
		t.Errorf("content = %q", got.Content)
	}
	if got.Username != "Course Watcher" {
		t.Errorf("username = %q", got.Username)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, "").Deliver(context.Background(), model.Notification{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want 429 error", err)
	}
}

func TestContentsTruncatesLongText(t *testing.T) {
	n := model.Notification{Text: strings.Repeat("a", 3000)}
	got := Contents(n)
	if len(got) != 1 || len(got[0]) != maxContentLength {
		t.Fatalf("got %d parts, first len %d", len(got), len(got[0]))
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	// "é" is two bytes, so byte 7 is the middle of the fourth one.
	s := strings.Repeat("é", 20)
	got := truncate(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if got != "ééé..." {
		t.Fatalf("truncate = %q", got)
	}
}

func TestContentsSplitsMentions(t *testing.T) {
	var mentions []string
	for i := range 120 {
		mentions = append(mentions, fmt.Sprintf("<@%018d>", i))
	}
	n := model.NewNotification(model.KindSeat, "12345", "Seat available: X.", mentions)

	parts := Contents(n)
	if len(parts) < 2 {
		t.Fatalf("got %d parts, want a split", len(parts))
	}
	if !strings.HasPrefix(parts[0], "Seat available: X. ") {
		t.Errorf("first part = %q", parts[0][:40])
	}
	joined := strings.Join(parts, " ")
	for i, p := range parts {
		if len(p) > maxContentLength {
			t.Errorf("part %d len = %d", i, len(p))
		}
	}
	for _, m := range mentions {
		if !strings.Contains(joined, m) {
			t.Fatalf("mention %s dropped", m)
		}
	}
}

func TestWebhookDeliverSplitsMentions(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, p.Content)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var mentions []string
	for i := range 120 {
		mentions = append(mentions, fmt.Sprintf("<@%018d>", i))
	}
	n := model.NewNotification(model.KindWaitlist, "12345", "Waitlist available: X.", mentions)
	if err := NewWebhook(srv.URL, "").Deliver(context.Background(), n); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := Contents(n)
	if len(got) != len(want) {
		t.Fatalf("posted %d messages, want %d", len(got), len(want))
	}
	count := 0
	for _, c := range got {
		count += strings.Count(c, "<@")
	}
	if count != len(mentions) {
		t.Fatalf("delivered %d mentions, want %d", count, len(mentions))
	}
}

func TestHubIsolatesFailures(t *testing.T) {
	var delivered atomic.Int32
	ok := SinkFunc(func(context.Context, model.Notification) error {
		delivered.Add(1)
		return nil
	})
	boom := errors.New("boom")
	bad := SinkFunc(func(context.Context, model.Notification) error { return boom })

	hub := NewHub(nil).Add("ok1", ok).Add("bad", bad).Add("ok2", ok)
	err := hub.Deliver(context.Background(), model.Notification{Text: "x"})

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "bad:") {
		t.Errorf("error %q does not name the sink", err)
	}
	if delivered.Load() != 2 {
		t.Fatalf("delivered = %d, want 2", delivered.Load())
	}
}

type recorder struct{ got []model.Notification }

func (r *recorder) Record(_ context.Context, n model.Notification) error {
	r.got = append(r.got, n)
	return nil
}

func TestJournalSink(t *testing.T) {
	rec := &recorder{}
	n := model.NewNotification(model.KindWaitlist, "12345", "Waitlist available", nil)
	if err := (JournalSink{Recorder: rec}).Deliver(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(rec.got) != 1 || rec.got[0].ID != n.ID {
		t.Fatalf("recorded %+v", rec.got)
	}
}

func TestLogSink(t *testing.T) {
	if err := (LogSink{}).Deliver(context.Background(), model.Notification{Text: "x"}); err != nil {
		t.Fatal(err)
	}
}
