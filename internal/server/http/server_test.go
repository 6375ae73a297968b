package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/auth"
	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	"github.com/claudeayi/kalyptia-ledger/internal/runtime"
)

func newTestServer(t *testing.T, secret string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "never"
	cfg.Auth.Secret = secret
	rt, err := runtime.Open(context.Background(), runtime.Options{
		Config: cfg,
		Logger: logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	s := New(rt)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, identity string, admin bool, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("X-Ledger-Identity", identity)
	}
	if admin {
		req.Header.Set("X-Ledger-Admin", "true")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func appendViaHTTP(t *testing.T, ts *httptest.Server, typ, payload string) chain.Entry {
	t.Helper()
	resp := doJSON(t, ts, http.MethodPost, "/v1/ledger/append", "svc", false,
		fmt.Sprintf(`{"type":%q,"payload":%s}`, typ, payload))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append status %d", resp.StatusCode)
	}
	var e chain.Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return e
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
}

func TestAppendAndEntries(t *testing.T) {
	_, ts := newTestServer(t, "")
	e := appendViaHTTP(t, ts, "DATASET_CREATED", `{"datasetId":"d1","userId":"u1"}`)
	if e.Sequence != 0 || e.PrevHash != chain.GenesisHash {
		t.Fatalf("entry = %+v", e)
	}

	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/entries?from=0&limit=10", "ops", true, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("entries status %d", resp.StatusCode)
	}
	var out struct {
		Entries []chain.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entries) != 1 || out.Entries[0].Hash != e.Hash {
		t.Fatalf("entries = %+v", out.Entries)
	}
}

func TestAppendRejectsUnknownType(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp := doJSON(t, ts, http.MethodPost, "/v1/ledger/append", "svc", false,
		`{"type":"NOT_A_TYPE","payload":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

func TestAppendRequiresIdentity(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp := doJSON(t, ts, http.MethodPost, "/v1/ledger/append", "", false,
		`{"type":"DATASET_CREATED","payload":{}}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestEntriesAdminOnly(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/entries", "u1", false, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}

func TestEntryBySeqNotFound(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/entries?seq=5", "ops", true, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "")
	appendViaHTTP(t, ts, "DATASET_CREATED", `{"datasetId":"d1"}`)
	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/verify", "ops", true, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d", resp.StatusCode)
	}
	var res struct {
		OK      bool   `json:"ok"`
		Entries uint64 `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK || res.Entries != 1 {
		t.Fatalf("verify = %+v", res)
	}
}

func TestVerifyEndpointWindow(t *testing.T) {
	_, ts := newTestServer(t, "")
	for i := 0; i < 4; i++ {
		appendViaHTTP(t, ts, "DATASET_CREATED", `{"datasetId":"d1"}`)
	}
	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/verify?from=1&to=2", "ops", true, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status %d", resp.StatusCode)
	}
	var res struct {
		OK      bool   `json:"ok"`
		Entries uint64 `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK || res.Entries != 2 {
		t.Fatalf("verify window = %+v", res)
	}

	resp = doJSON(t, ts, http.MethodGet, "/v1/ledger/verify?from=3&to=1", "ops", true, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("inverted window status %d, want 400", resp.StatusCode)
	}
}

func TestAckEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "")
	appendViaHTTP(t, ts, "DATASET_CREATED", `{"datasetId":"d1"}`)
	resp := doJSON(t, ts, http.MethodPost, "/v1/ledger/ack", "u1", false, `{"sequence":0}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ack status %d", resp.StatusCode)
	}
}

func TestTypesEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "")
	resp, err := http.Get(ts.URL + "/v1/ledger/types")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Types []string `json:"types"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Types) == 0 {
		t.Fatalf("no declared types")
	}
}

func TestSubscribeSSEDeliversBackfill(t *testing.T) {
	_, ts := newTestServer(t, "")
	appendViaHTTP(t, ts, "DATASET_CREATED", `{"datasetId":"d1","userId":"u1"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/ledger/subscribe?identity=u1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no SSE data frame received")
	}
	var e chain.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if e.Sequence != 0 {
		t.Fatalf("backfilled seq %d, want 0", e.Sequence)
	}
}

func TestJWTModeRejectsAnonymous(t *testing.T) {
	_, ts := newTestServer(t, "topsecret")
	resp := doJSON(t, ts, http.MethodGet, "/v1/ledger/tail", "u1", false, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401 (identity headers must not bypass JWT)", resp.StatusCode)
	}
}

func TestJWTModeAcceptsBearer(t *testing.T) {
	_, ts := newTestServer(t, "topsecret")
	tok, err := auth.NewVerifier("topsecret", "ledgerd").Sign(auth.Identity{ID: "svc"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/ledger/append",
		bytes.NewBufferString(`{"type":"DATASET_CREATED","payload":{"datasetId":"d"}}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}
}
