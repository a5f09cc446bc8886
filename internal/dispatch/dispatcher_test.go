package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/store"
	"github.com/pochenphys/Group-Project/internal/transport"
)

func fastTransport() *transport.Client {
	return transport.New(transport.Policy{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
	}, 2*time.Second)
}

func backendServer(t *testing.T, reply Reply, delay time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/process_message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserID == "" {
			t.Error("request missing user_id")
		}
		time.Sleep(delay)
		json.NewEncoder(w).Encode(reply)
	}))
}

func textReply(texts ...string) Reply {
	var msgs []line.Message
	for _, s := range texts {
		msgs = append(msgs, line.TextMessage(s))
	}
	return Reply{Messages: msgs}
}

func newDispatcher(timeout time.Duration) *Dispatcher {
	return NewDispatcher(timeout, store.NewTTL[string](time.Hour))
}

func event() line.Event {
	return line.Event{UserID: "U1", Kind: line.EventText, Text: "食譜"}
}

func TestDispatchMergesCompletionOrder(t *testing.T) {
	slow := backendServer(t, textReply("slow"), 150*time.Millisecond)
	defer slow.Close()
	fast := backendServer(t, textReply("fast"), 0)
	defer fast.Close()

	hc := fastTransport()
	targets := []*Backend{
		NewBackend("slow", RoleAI, slow.URL, "", hc),
		NewBackend("fast", RoleRecipe, fast.URL, "", hc),
	}

	res := newDispatcher(time.Second).Dispatch(context.Background(), targets, event(), nil)
	if len(res.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(res.Messages))
	}
	if res.Messages[0].Text != "fast" || res.Messages[1].Text != "slow" {
		t.Errorf("merge order = [%s, %s], want completion order", res.Messages[0].Text, res.Messages[1].Text)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	healthy := backendServer(t, textReply("ok"), 0)
	defer healthy.Close()

	hc := fastTransport()
	targets := []*Backend{
		NewBackend("broken", RoleAI, broken.URL, "", hc),
		NewBackend("healthy", RoleRecipe, healthy.URL, "", hc),
	}

	res := newDispatcher(time.Second).Dispatch(context.Background(), targets, event(), nil)
	if len(res.Messages) != 1 || res.Messages[0].Text != "ok" {
		t.Errorf("messages = %+v", res.Messages)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestDispatchTimesOutSlowBackend(t *testing.T) {
	stuck := backendServer(t, textReply("late"), 300*time.Millisecond)
	defer stuck.Close()

	hc := fastTransport()
	targets := []*Backend{NewBackend("stuck", RoleAI, stuck.URL, "", hc)}

	res := NewDispatcher(50*time.Millisecond, store.NewTTL[string](time.Hour)).
		Dispatch(context.Background(), targets, event(), nil)
	if len(res.Messages) != 0 {
		t.Errorf("messages = %+v, want none", res.Messages)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestDispatchCarriesConversationID(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req processRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen = append(seen, req.ConversationID)
		json.NewEncoder(w).Encode(Reply{
			Messages:       []line.Message{line.TextMessage("ok")},
			ConversationID: "conv-1",
		})
	}))
	defer srv.Close()

	hc := fastTransport()
	d := newDispatcher(time.Second)
	targets := []*Backend{NewBackend("ai", RoleAI, srv.URL, "", hc)}

	d.Dispatch(context.Background(), targets, event(), nil)
	d.Dispatch(context.Background(), targets, event(), nil)

	if len(seen) != 2 || seen[0] != "" || seen[1] != "conv-1" {
		t.Errorf("conversation ids = %v", seen)
	}
}

func TestDispatchKeepsFullReplies(t *testing.T) {
	reply := Reply{
		Messages:        []line.Message{line.TextMessage("menu")},
		RecipeSlots:     map[string]string{"dish_1": "番茄炒蛋"},
		AnalysisText:    "碳足跡分析",
		GeneratedRecipe: &GeneratedRecipe{ID: "r1", Text: "做法"},
	}
	srv := backendServer(t, reply, 0)
	defer srv.Close()

	hc := fastTransport()
	res := newDispatcher(time.Second).
		Dispatch(context.Background(), []*Backend{NewBackend("ai", RoleAI, srv.URL, "", hc)}, event(), nil)
	if len(res.Replies) != 1 {
		t.Fatalf("replies = %d", len(res.Replies))
	}
	got := res.Replies[0]
	if got.RecipeSlots["dish_1"] != "番茄炒蛋" || got.AnalysisText != "碳足跡分析" {
		t.Errorf("side channel lost: %+v", got)
	}
	if got.GeneratedRecipe == nil || got.GeneratedRecipe.ID != "r1" {
		t.Errorf("generated recipe lost: %+v", got.GeneratedRecipe)
	}
}

func TestDispatchNoTargets(t *testing.T) {
	res := newDispatcher(time.Second).Dispatch(context.Background(), nil, event(), nil)
	if len(res.Messages) != 0 || res.Failed != 0 {
		t.Errorf("res = %+v", res)
	}
}
