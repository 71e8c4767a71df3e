package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func sampleStatement() *statement.Statement {
	s := statement.New("Statement 1")
	s.Side = statement.Buy
	s.Conditions[0].Primary = &statement.BuiltinIndicator{
		RefBase: statement.RefBase{Timeframe: "3h"},
		Name:    "RSI",
		Params:  statement.Params{"period": 14.0},
	}
	s.Conditions[0].Operator = statement.CrossAbove
	s.Conditions[0].Secondary = &statement.Literal{Value: 60}
	return s
}

func fastClient(url string) *Client {
	return NewClient(url, &Config{Backoff: time.Millisecond, Timeout: 5 * time.Second})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateStatement(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/strategies/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 42, "timeframes_required": ["3h"]}`))
	}))
	defer ts.Close()

	s := sampleStatement()
	before := s.Clone()

	res, err := fastClient(ts.URL).CreateStatement(context.Background(), "acct-7", s)
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	if res.ID != "42" || !reflect.DeepEqual(res.TimeframesRequired, []string{"3h"}) {
		t.Errorf("result = %+v", res)
	}

	for _, key := range []string{"account", "side", "label", "strategy", "Equity", "instrument"} {
		if _, ok := got[key]; !ok {
			t.Errorf("payload missing %q: %v", key, got)
		}
	}
	if got["account"] != "acct-7" || got["instrument"] != statement.DefaultInstrument || got["side"] != "B" {
		t.Errorf("payload = %v", got)
	}
	if eq, ok := got["Equity"].([]any); !ok || len(eq) != 0 {
		t.Errorf("Equity = %#v, want empty list", got["Equity"])
	}
	if !reflect.DeepEqual(s, before) {
		t.Error("submission modified the statement")
	}
}

func TestEditStatement(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/strategies/17/edit/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var doc map[string]any
		json.NewDecoder(r.Body).Decode(&doc)
		if _, ok := doc["account"]; ok {
			t.Error("edit payload should not carry the account")
		}
		w.Write([]byte(`{"timeframes_required": ["3h", "1 day"]}`))
	}))
	defer ts.Close()

	res, err := fastClient(ts.URL).EditStatement(context.Background(), "17", sampleStatement())
	if err != nil {
		t.Fatalf("EditStatement: %v", err)
	}
	if res.ID != "17" || len(res.TimeframesRequired) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id": "abc"}`))
	}))
	defer ts.Close()

	res, err := fastClient(ts.URL).CreateStatement(context.Background(), "a", sampleStatement())
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	if res.ID != "abc" || calls.Load() != 3 {
		t.Errorf("id = %q after %d calls", res.ID, calls.Load())
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, &Config{Backoff: time.Millisecond, MaxRetries: 2})
	if _, err := c.CreateStatement(context.Background(), "a", sampleStatement()); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "strategy is empty"}`))
	}))
	defer ts.Close()

	_, err := fastClient(ts.URL).CreateStatement(context.Background(), "a", sampleStatement())
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetStatementHydrates(t *testing.T) {
	s := sampleStatement()
	doc, _ := json.Marshal(s)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/strategies/5/":
			w.Write(doc)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail": "Not found."}`))
		}
	}))
	defer ts.Close()

	c := fastClient(ts.URL)
	got, err := c.GetStatement(context.Background(), "5")
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("hydrated = %+v, want %+v", got, s)
	}

	if _, err := c.GetStatement(context.Background(), "6"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing statement err = %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	var deleted string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/strategies/":
			w.Write([]byte(`[
				{"id": 1, "account": 7, "name": "a", "label": "Statement 1", "side": "B"},
				{"id": 2, "account": 8, "name": "b", "label": "Statement 1", "side": "S"},
				{"id": 3, "account": "7", "name": "c", "label": "Statement 2", "side": "S", "instrument": "EUR/USD"}
			]`))
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := fastClient(ts.URL)
	list, err := c.ListStatements(context.Background(), "7")
	if err != nil {
		t.Fatalf("ListStatements: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].Instrument != "EUR/USD" || list[1].Side != statement.Sell {
		t.Errorf("list = %+v", list)
	}

	if err := c.DeleteStatement(context.Background(), "3"); err != nil {
		t.Fatalf("DeleteStatement: %v", err)
	}
	if deleted != "/api/strategies/3/delete/" {
		t.Errorf("deleted path = %q", deleted)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(ts.URL, &Config{Backoff: time.Hour})
	if _, err := c.CreateStatement(ctx, "a", sampleStatement()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
