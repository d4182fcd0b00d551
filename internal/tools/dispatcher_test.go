package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/mcpchat/internal/mcp"
	"github.com/MrWong99/mcpchat/internal/mcp/mcptest"
	"github.com/MrWong99/mcpchat/internal/mcp/mock"
	"github.com/MrWong99/mcpchat/internal/observe"
)

// newTestDispatcher discovers the session's tools and returns a dispatcher
// wired to a private meter provider.
func newTestDispatcher(t *testing.T, p Provider) (*Dispatcher, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	snap, err := Discover(context.Background(), p)
	require.NoError(t, err)
	return NewDispatcher(p, snap, WithMetrics(m)), reader
}

func mockSession() *mock.Session {
	return &mock.Session{
		ListToolsResult: []mcp.Tool{
			{Name: "search", InputSchema: map[string]any{"type": "object"}},
			{Name: "fetch", InputSchema: map[string]any{"type": "object"}},
		},
	}
}

func TestInvoke_Success(t *testing.T) {
	session := mockSession()
	session.CallToolResults = map[string]*mcp.ToolResult{"search": {Content: "sunny"}}
	d, _ := newTestDispatcher(t, session)

	res := d.Invoke(context.Background(), "search", map[string]any{"q": "weather"})

	assert.True(t, res.Ok())
	assert.Equal(t, "sunny", res.Content)
	assert.Equal(t, "sunny", res.Text())
	assert.Equal(t, 1, session.CallCount("CallTool"))

	calls := session.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, []any{"search", map[string]any{"q": "weather"}}, last.Args)
}

func TestInvoke_UnknownToolSkipsProvider(t *testing.T) {
	session := mockSession()
	d, reader := newTestDispatcher(t, session)

	res := d.Invoke(context.Background(), "nonexistent", map[string]any{})

	require.False(t, res.Ok())
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
	assert.Contains(t, res.Text(), "Error: ")
	assert.Contains(t, res.Text(), "nonexistent")
	assert.Zero(t, session.CallCount("CallTool"))
	assert.Zero(t, res.Duration)

	assert.Equal(t, int64(1), toolCallCount(t, reader, "unknown"))
}

func TestInvoke_UnknownToolSuggestsClosestName(t *testing.T) {
	session := mockSession()
	d, _ := newTestDispatcher(t, session)

	res := d.Invoke(context.Background(), "serch", nil)

	require.False(t, res.Ok())
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
	assert.Equal(t, `Error: unknown tool: "serch" (did you mean "search"?)`, res.Text())
	assert.Zero(t, session.CallCount("CallTool"))

	res = d.Invoke(context.Background(), "nonexistent", nil)
	assert.NotContains(t, res.Text(), "did you mean")
}

func TestInvoke_TransportError(t *testing.T) {
	session := mockSession()
	session.CallToolErrs = map[string]error{"fetch": errors.New("broken pipe")}
	d, reader := newTestDispatcher(t, session)

	res := d.Invoke(context.Background(), "fetch", nil)

	require.False(t, res.Ok())
	assert.EqualError(t, res.Err, "broken pipe")
	assert.Equal(t, "Error: broken pipe", res.Text())
	assert.Equal(t, 1, session.CallCount("CallTool"))
	assert.Equal(t, int64(1), toolCallCount(t, reader, "error"))
}

func TestInvoke_ToolReportedError(t *testing.T) {
	session := mockSession()
	session.CallToolResults = map[string]*mcp.ToolResult{"fetch": {Content: "404 not found", IsError: true}}
	d, _ := newTestDispatcher(t, session)

	res := d.Invoke(context.Background(), "fetch", nil)

	require.False(t, res.Ok())
	var terr *ToolError
	require.ErrorAs(t, res.Err, &terr)
	assert.Equal(t, "fetch", terr.Tool)
	assert.Equal(t, "Error: 404 not found", res.Text())
}

func TestInvoke_NoRetry(t *testing.T) {
	session := mockSession()
	session.CallToolErr = errors.New("timeout")
	d, _ := newTestDispatcher(t, session)

	for range 3 {
		d.Invoke(context.Background(), "search", nil)
	}
	assert.Equal(t, 3, session.CallCount("CallTool"), "each invoke must be exactly one provider call")
}

func TestInvokeRaw(t *testing.T) {
	session := mockSession()
	session.CallToolResult = &mcp.ToolResult{Content: "ok"}
	d, _ := newTestDispatcher(t, session)

	t.Run("valid", func(t *testing.T) {
		session.Reset()
		res := d.InvokeRaw(context.Background(), "search", `{"q":"x"}`)
		assert.True(t, res.Ok())
		assert.Equal(t, 1, session.CallCount("CallTool"))
	})

	t.Run("empty means no arguments", func(t *testing.T) {
		session.Reset()
		res := d.InvokeRaw(context.Background(), "search", "")
		assert.True(t, res.Ok())
		assert.Equal(t, []any{"search", map[string]any{}}, session.Calls()[0].Args)
	})

	t.Run("malformed", func(t *testing.T) {
		session.Reset()
		res := d.InvokeRaw(context.Background(), "search", `{"q":`)
		assert.ErrorIs(t, res.Err, ErrMalformedArguments)
		assert.Zero(t, session.CallCount("CallTool"))
	})

	t.Run("unknown tool wins over malformed arguments", func(t *testing.T) {
		session.Reset()
		res := d.InvokeRaw(context.Background(), "nope", `not json`)
		assert.ErrorIs(t, res.Err, ErrUnknownTool)
		assert.Zero(t, session.CallCount("CallTool"))
	})
}

// TestDispatcher_AgainstMCPServer runs discovery and dispatch through a real
// MCP client/server pair.
func TestDispatcher_AgainstMCPServer(t *testing.T) {
	srv := mcptest.NewServer()
	calls := mcptest.AddTextTool(srv, "add", "Add two numbers",
		map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		func(args map[string]any) (string, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			return fmt.Sprint(a + b), nil
		})
	mcptest.AddTextTool(srv, "explode", "Always fails", nil, func(map[string]any) (string, error) {
		return "", errors.New("kaboom")
	})
	host := mcptest.Connect(t, srv)

	d, _ := newTestDispatcher(t, host)
	assert.ElementsMatch(t, []string{"add", "explode"}, d.Snapshot().Names())

	res := d.InvokeRaw(context.Background(), "add", `{"a": 2, "b": 3}`)
	require.True(t, res.Ok(), "unexpected error: %v", res.Err)
	assert.Equal(t, "5", res.Content)
	assert.Equal(t, int32(1), calls.Load())

	res = d.InvokeRaw(context.Background(), "explode", "")
	assert.Equal(t, "Error: kaboom", res.Text())
}

// toolCallCount returns the mcpchat.tool.calls value for the given status.
func toolCallCount(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcpchat.tool.calls" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == status {
					return dp.Value
				}
			}
		}
	}
	return 0
}
