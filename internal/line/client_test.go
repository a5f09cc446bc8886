package line

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pochenphys/Group-Project/internal/transport"
)

func fastPolicy(attempts int) transport.Policy {
	p := transport.ReplyPolicy()
	p.MaxAttempts = attempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}

func testClient(base string) *Client {
	return &Client{
		token:    "test-token",
		reply:    transport.New(fastPolicy(2), time.Second),
		push:     transport.New(fastPolicy(2), time.Second),
		apiBase:  base,
		dataBase: base,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func TestReplyCapsAtFive(t *testing.T) {
	var got struct {
		ReplyToken string          `json:"replyToken"`
		Messages   []json.RawMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	msgs := make([]Message, 8)
	for i := range msgs {
		msgs[i] = TextMessage("m")
	}
	if err := c.Reply(context.Background(), "rt", msgs); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(got.Messages) != maxReplyMessages {
		t.Errorf("sent %d messages, want %d", len(got.Messages), maxReplyMessages)
	}
	if got.ReplyToken != "rt" {
		t.Errorf("replyToken = %q", got.ReplyToken)
	}
}

func TestReplyEmptyIsNoop(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if err := c.Reply(context.Background(), "rt", nil); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("empty reply hit the API")
	}
}

func TestReplyOrPushFallsBack(t *testing.T) {
	var pushed int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/bot/message/reply":
			// Spent reply token.
			w.WriteHeader(http.StatusBadRequest)
		case "/v2/bot/message/push":
			atomic.AddInt32(&pushed, 1)
			var got struct {
				To string `json:"to"`
			}
			json.NewDecoder(r.Body).Decode(&got)
			if got.To != "U1" {
				t.Errorf("push to = %q", got.To)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.ReplyOrPush(context.Background(), "stale", "U1", []Message{TextMessage("hi")})
	if err != nil {
		t.Fatalf("ReplyOrPush: %v", err)
	}
	if atomic.LoadInt32(&pushed) != 1 {
		t.Error("push fallback did not fire")
	}
}

func TestPushSplitsOverCap(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var got struct {
			Messages []json.RawMessage `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&got)
		if len(got.Messages) > maxReplyMessages {
			t.Errorf("batch of %d exceeds cap", len(got.Messages))
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	msgs := make([]Message, 7)
	for i := range msgs {
		msgs[i] = TextMessage("m")
	}
	if err := c.Push(context.Background(), "U1", msgs); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDisplayNameDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	if name := c.DisplayName(context.Background(), "U1"); name != "" {
		t.Errorf("name = %q, want empty on failure", name)
	}
}

func TestDownloadContent(t *testing.T) {
	payload := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/m1/content" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write(payload)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.DownloadContent(context.Background(), "m1")
	if err != nil {
		t.Fatalf("DownloadContent: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("content = %q", got)
	}
}
