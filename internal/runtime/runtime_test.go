package runtime

import (
	"context"
	"encoding/json"
	"testing"

	logpkg "github.com/claudeayi/kalyptia-ledger/pkg/log"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
	cfgpkg "github.com/claudeayi/kalyptia-ledger/internal/config"
	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

func openTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Ledger.Fsync = "never"
	rt, err := Open(context.Background(), Options{
		Config: cfg,
		Logger: logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenWiresComponents(t *testing.T) {
	rt := openTestRuntime(t)
	if rt.Chain() == nil || rt.Registry() == nil || rt.Broadcaster() == nil || rt.Gateway() == nil || rt.Metrics() == nil {
		t.Fatalf("runtime missing a component")
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestRuntimeEndToEndAppend(t *testing.T) {
	rt := openTestRuntime(t)
	e, err := rt.Chain().Append(context.Background(), events.DatasetCreated,
		json.RawMessage(`{"datasetId":"d1","userId":"u1"}`), chain.AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.Sequence != 0 {
		t.Fatalf("first entry seq = %d", e.Sequence)
	}
	if err := rt.Chain().VerifyChain(context.Background()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
