package ledgersvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/claudeayi/kalyptia-ledger/internal/chain"
)

// celFilter wraps a compiled CEL program used by subscriptions to narrow the
// event stream. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("sequence", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("type", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an entry. When disabled,
// returns true; evaluation errors drop the entry.
func (f celFilter) Eval(e *chain.Entry) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(e.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"sequence": int64(e.Sequence),
		"ts_ms":    e.TimestampMs,
		"type":     string(e.Type),
		"size":     int64(len(e.Payload)),
		"text":     string(e.Payload),
		"json":     jsonObj,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
