package ledgersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
	"github.com/claudeayi/kalyptia-ledger/internal/runtime"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "never"
	rt, err := runtime.Open(context.Background(), runtime.Options{
		Config: cfg,
		Logger: logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt)
}

func appendOne(t *testing.T, s *Service, typ events.Type, payload string) *chain.Entry {
	t.Helper()
	e, err := s.Append(context.Background(), AppendRequest{Type: typ, Payload: json.RawMessage(payload)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return e
}

type collectSender struct {
	ch chan *chain.Entry
}

func newCollectSender() *collectSender { return &collectSender{ch: make(chan *chain.Entry, 64)} }

func (s *collectSender) Send(ctx context.Context, e *chain.Entry) error {
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *collectSender) recv(t *testing.T) *chain.Entry {
	t.Helper()
	select {
	case e := <-s.ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for entry")
		return nil
	}
}

func TestAppendAndRead(t *testing.T) {
	s := newTestService(t)
	e := appendOne(t, s, events.DatasetCreated, `{"datasetId":"d1","userId":"u1"}`)
	got, err := s.Get(e.Sequence)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Hash != e.Hash {
		t.Fatalf("read back a different entry")
	}
	tail, err := s.Tail()
	if err != nil || tail.Sequence != e.Sequence {
		t.Fatalf("tail: %v", err)
	}
}

func TestAppendPayloadLimit(t *testing.T) {
	s := newTestService(t)
	big := `{"blob":"` + strings.Repeat("x", 2<<20) + `"}`
	_, err := s.Append(context.Background(), AppendRequest{Type: events.DatasetCreated, Payload: json.RawMessage(big)})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("want ErrPayloadTooLarge, got %v", err)
	}
}

func TestRangeClampsLimit(t *testing.T) {
	s := newTestService(t)
	for i := 0; i < 5; i++ {
		appendOne(t, s, events.DatasetCreated, `{"datasetId":"d"}`)
	}
	entries, err := s.Range(RangeRequest{From: 1, Limit: 2})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence != 1 {
		t.Fatalf("range window wrong: %d entries", len(entries))
	}
}

func TestVerifyReportsCorruption(t *testing.T) {
	s := newTestService(t)
	appendOne(t, s, events.DatasetCreated, `{"datasetId":"d"}`)
	res, err := s.Verify(context.Background(), VerifyRequest{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.OK || res.Entries != 1 {
		t.Fatalf("clean chain reported %+v", res)
	}
}

func TestVerifyWindow(t *testing.T) {
	s := newTestService(t)
	for i := 0; i < 5; i++ {
		appendOne(t, s, events.DatasetCreated, fmt.Sprintf(`{"datasetId":"d%d"}`, i))
	}
	from, to := uint64(1), uint64(3)
	res, err := s.Verify(context.Background(), VerifyRequest{From: &from, To: &to})
	if err != nil {
		t.Fatalf("verify window: %v", err)
	}
	if !res.OK || res.Entries != 3 {
		t.Fatalf("window reported %+v", res)
	}
}

func TestSubscribeWithCELFilter(t *testing.T) {
	s := newTestService(t)
	appendOne(t, s, events.DatasetCreated, `{"datasetId":"d1","userId":"u1"}`)
	appendOne(t, s, events.PaymentSuccess, `{"buyerId":"u1","amount":50}`)

	sender := newCollectSender()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.Subscribe(ctx, SubscribeRequest{
			Identity: "u1",
			Filter:   `type == "PAYMENT_SUCCESS" && json.amount >= 10`,
			AutoAck:  true,
		}, sender)
	}()

	e := sender.recv(t)
	if e.Type != events.PaymentSuccess {
		t.Fatalf("filter passed %s", e.Type)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestSubscribeRejectsBadFilter(t *testing.T) {
	s := newTestService(t)
	err := s.Subscribe(context.Background(), SubscribeRequest{
		Identity: "u1",
		Filter:   `this is not cel ((`,
	}, newCollectSender())
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("want ErrInvalidFilter, got %v", err)
	}
}

func TestAckAndWatermark(t *testing.T) {
	s := newTestService(t)
	appendOne(t, s, events.DatasetCreated, `{"datasetId":"d"}`)
	if err := s.Ack("u1", 0); err != nil {
		t.Fatalf("ack: %v", err)
	}
	seq, ok, err := s.Watermark("u1")
	if err != nil || !ok || seq != 0 {
		t.Fatalf("watermark = %d/%v/%v", seq, ok, err)
	}
}

func TestTypesListsTaxonomy(t *testing.T) {
	s := newTestService(t)
	types := s.Types()
	found := false
	for _, typ := range types {
		if typ == events.DatasetPurchased {
			found = true
		}
	}
	if !found {
		t.Fatalf("taxonomy missing DATASET_PURCHASED: %v", types)
	}
}
