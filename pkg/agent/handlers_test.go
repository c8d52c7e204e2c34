package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mscrnt/homecards/pkg/broadcast"
	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
	"github.com/mscrnt/homecards/pkg/db"
)

// stubController answers with a fixed result
type stubController struct {
	id   card.ID
	show bool
	err  error
}

func (s *stubController) ID() card.ID { return s.id }

func (s *stubController) IsDisplayable(context.Context, *condition.Session) (bool, error) {
	return s.show, s.err
}

func (s *stubController) BuildCard() card.Card {
	return card.NewBuilder(s.id).Title("Card " + s.id.String()).Build()
}

func (s *stubController) Source() broadcast.Source { return nil }

type testEnv struct {
	server   *Server
	handler  http.Handler
	snapshot *Snapshot
	store    *db.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	manager, err := condition.New([]condition.Controller{
		&stubController{id: 1001, show: true},
		&stubController{id: 1002},
		&stubController{id: 1003, err: errors.New("no battery driver")},
	})
	if err != nil {
		t.Fatal(err)
	}

	store, err := db.Open(filepath.Join(t.TempDir(), "cards.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	snapshot := NewSnapshot()
	server, err := NewServer(DefaultConfig(), Backend{
		Snapshot:   snapshot,
		Registry:   manager,
		Dismissals: store,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	return &testEnv{
		server:   server,
		handler:  server.Handler(),
		snapshot: snapshot,
		store:    store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("wrong content type: got %q want application/json", ct)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func TestCardsHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/cards")
	if rr.Code != http.StatusOK {
		t.Fatalf("wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var empty CardsResponse
	decode(t, rr, &empty)
	if empty.Cards == nil || len(empty.Cards) != 0 {
		t.Errorf("expected an empty card list before any refresh, got %v", empty.Cards)
	}
	if empty.Refreshes != 0 {
		t.Errorf("expected no refreshes yet, got %d", empty.Refreshes)
	}

	env.snapshot.Update([]card.Card{
		card.NewBuilder(1001).Title("Offline").Build(),
		card.NewBuilder(1003).Kind(card.KindSuggestion).Title("Low storage").Build(),
	})
	if err := env.store.Dismiss(1003); err != nil {
		t.Fatal(err)
	}

	var resp CardsResponse
	decode(t, env.do(t, http.MethodGet, "/cards"), &resp)
	if len(resp.Cards) != 1 || resp.Cards[0].ID() != 1001 {
		t.Errorf("expected only card 1001, got %+v", resp.Cards)
	}
	if len(resp.Hidden) != 1 || resp.Hidden[0] != 1003 {
		t.Errorf("expected 1003 to be reported hidden, got %v", resp.Hidden)
	}
	if resp.UpdatedAt.IsZero() {
		t.Error("updated_at is zero after an update")
	}
	if resp.Refreshes != 1 {
		t.Errorf("expected one refresh, got %d", resp.Refreshes)
	}

	var all CardsResponse
	decode(t, env.do(t, http.MethodGet, "/cards?all=true"), &all)
	if len(all.Cards) != 2 {
		t.Fatalf("expected both cards with all=true, got %d", len(all.Cards))
	}
	if all.Cards[1].Kind() != card.KindSuggestion {
		t.Errorf("kind lost on the wire: %v", all.Cards[1].Kind())
	}
}

func TestCardHandler(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path        string
		wantStatus  int
		displayable bool
		wantError   string
	}{
		{"/cards/1001", http.StatusOK, true, ""},
		{"/cards/1002", http.StatusOK, false, ""},
		{"/cards/1003", http.StatusOK, false, "no battery driver"},
		{"/cards/42", http.StatusNotFound, false, "unknown card 42"},
		{"/cards/abc", http.StatusBadRequest, false, "invalid card id"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path)
			if rr.Code != tt.wantStatus {
				t.Fatalf("wrong status code: got %v want %v", rr.Code, tt.wantStatus)
			}

			if tt.wantStatus != http.StatusOK {
				var errResp ErrorResponse
				decode(t, rr, &errResp)
				if !strings.Contains(errResp.Error, tt.wantError) {
					t.Errorf("error %q does not mention %q", errResp.Error, tt.wantError)
				}
				return
			}

			var st CardStatus
			decode(t, rr, &st)
			if st.Displayable != tt.displayable {
				t.Errorf("displayable: got %v want %v", st.Displayable, tt.displayable)
			}
			if tt.displayable && (st.Card == nil || st.Card.Title() == "") {
				t.Errorf("expected a card, got %+v", st.Card)
			}
			if !tt.displayable && st.Card != nil {
				t.Errorf("expected no card, got %+v", st.Card)
			}
			if !strings.Contains(st.Error, tt.wantError) {
				t.Errorf("error %q does not mention %q", st.Error, tt.wantError)
			}
		})
	}
}

func TestDismissAndRestoreHandlers(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/cards/1001/dismiss")
	if rr.Code != http.StatusOK {
		t.Fatalf("dismiss: got %v want %v", rr.Code, http.StatusOK)
	}
	var dr DismissalResponse
	decode(t, rr, &dr)
	if !dr.Dismissed || dr.ID != 1001 {
		t.Errorf("unexpected dismiss response %+v", dr)
	}

	var st CardStatus
	decode(t, env.do(t, http.MethodGet, "/cards/1001"), &st)
	if !st.Dismissed {
		t.Error("card 1001 should report dismissed")
	}

	if rr := env.do(t, http.MethodDelete, "/cards/1001/dismiss"); rr.Code != http.StatusOK {
		t.Errorf("restore: got %v want %v", rr.Code, http.StatusOK)
	}
	if rr := env.do(t, http.MethodDelete, "/cards/1001/dismiss"); rr.Code != http.StatusNotFound {
		t.Errorf("second restore: got %v want %v", rr.Code, http.StatusNotFound)
	}
	if rr := env.do(t, http.MethodPost, "/cards/7/dismiss"); rr.Code != http.StatusNotFound {
		t.Errorf("dismiss unknown: got %v want %v", rr.Code, http.StatusNotFound)
	}
}

func TestHandlerMethods(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		{http.MethodPut, "/cards", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/cards/1001", http.StatusMethodNotAllowed},
		{http.MethodGet, "/cards/1001/dismiss", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if rr := env.do(t, tt.method, tt.path); rr.Code != tt.wantStatus {
				t.Errorf("got %v want %v", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health")
	if rr.Body.String() != "OK\n" {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("wrong content type %q", ct)
	}
}

func TestClientAgainstHandler(t *testing.T) {
	env := newTestEnv(t)
	env.snapshot.Update([]card.Card{card.NewBuilder(1001).Title("Offline").Build()})

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	addr := ts.Listener.Addr().String()
	host, port := splitHostPort(t, addr)

	client, err := NewClient(ClientConfig{Host: host, Port: port, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := client.CheckHealth(ctx); err != nil {
		t.Errorf("health check failed: %v", err)
	}

	resp, err := client.Cards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Cards) != 1 || resp.Cards[0].Title() != "Offline" {
		t.Errorf("unexpected cards %+v", resp.Cards)
	}

	if err := client.Dismiss(ctx, 1001); err != nil {
		t.Fatal(err)
	}
	resp, err = client.Cards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Cards) != 0 {
		t.Errorf("dismissed card still listed: %+v", resp.Cards)
	}
	if err := client.Restore(ctx, 1001); err != nil {
		t.Fatal(err)
	}

	st, err := client.Card(ctx, 1001)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Displayable || st.Dismissed {
		t.Errorf("unexpected status %+v", st)
	}

	if _, err := client.Card(ctx, 5); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected a 404 error, got %v", err)
	}

	var apiErr *APIError
	err = client.Restore(ctx, 1001)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected a 404 APIError restoring a visible card, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "not dismissed") {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestNewServerValidation(t *testing.T) {
	env := newTestEnv(t)
	backend := env.server.backend

	if _, err := NewServer(Config{Port: 0}, backend, nil); err == nil {
		t.Error("expected an error for port 0")
	}
	if _, err := NewServer(Config{Port: 2223, CertFile: "server.crt"}, backend, nil); err == nil {
		t.Error("expected an error for a certificate without key")
	}
	if _, err := NewServer(DefaultConfig(), Backend{Snapshot: NewSnapshot()}, nil); err == nil {
		t.Error("expected an error for an incomplete backend")
	}
}

func TestSnapshotCopies(t *testing.T) {
	s := NewSnapshot()
	in := []card.Card{card.NewBuilder(1).Title("a").Build()}
	s.Update(in)
	in[0] = card.NewBuilder(2).Title("b").Build()

	out, at := s.Cards()
	if out[0].ID() != 1 {
		t.Errorf("snapshot aliased the caller's slice")
	}
	if at.IsZero() || s.Updates() != 1 {
		t.Errorf("unexpected update bookkeeping: at=%v updates=%d", at, s.Updates())
	}
}
