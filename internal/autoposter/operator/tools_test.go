package operator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/scheduler"
	"github.com/RobinCoderZhao/portal-autopost/pkg/mcpserver"
)

type fakeAutomation struct {
	running  bool
	cooldown int
	startErr error
}

func (f *fakeAutomation) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeAutomation) Stop() { f.running = false }
func (f *fakeAutomation) Status() scheduler.Status {
	return scheduler.Status{IsRunning: f.running, IsInCooldown: f.cooldown > 0, RemainingCooldownSeconds: f.cooldown}
}
func (f *fakeAutomation) RunCycleNow(ctx context.Context, onLog cycle.Observer) ([]cycle.LogEntry, error) {
	return []cycle.LogEntry{{Level: cycle.LevelSuccess, Message: "Publicado"}}, nil
}
func (f *fakeAutomation) SetQuotaCooldown(seconds int) { f.cooldown = seconds }
func (f *fakeAutomation) ClearQuotaCooldown()          { f.cooldown = 0 }
func (f *fakeAutomation) LastLogs() []cycle.LogEntry   { return nil }

type fakePosts struct{ limit int }

func (f *fakePosts) ListPosts(ctx context.Context, limit int) ([]content.Post, error) {
	f.limit = limit
	return []content.Post{{ID: 3, Title: "Eleições", CategoryName: "Política", IsBreaking: true}}, nil
}

func newServer(a *fakeAutomation, p *fakePosts) *mcpserver.Server {
	s := mcpserver.New("portalbot", "test")
	s.Register(Tools(a, p)...)
	return s
}

func callTool(t *testing.T, s *mcpserver.Server, name string, args map[string]any) *mcpserver.ToolResult {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	resp := s.Handle(context.Background(), &mcpserver.Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	return resp.Result.(*mcpserver.ToolResult)
}

func TestStartStopAndStatus(t *testing.T) {
	a := &fakeAutomation{}
	s := newServer(a, &fakePosts{})

	res := callTool(t, s, "automation_start", nil)
	require.False(t, res.IsError)
	require.True(t, a.running)
	require.Contains(t, res.Content[0].Text, `"isRunning": true`)

	callTool(t, s, "automation_stop", nil)
	require.False(t, a.running)
}

func TestStartDuringCooldownIsToolError(t *testing.T) {
	a := &fakeAutomation{startErr: &scheduler.CooldownError{RemainingSeconds: 42}}
	res := callTool(t, newServer(a, &fakePosts{}), "automation_start", nil)
	require.True(t, res.IsError)
	require.Equal(t, "cota esgotada, aguarde 42s", res.Content[0].Text)
}

func TestSetQuotaCooldown(t *testing.T) {
	a := &fakeAutomation{}
	s := newServer(a, &fakePosts{})

	callTool(t, s, "set_quota_cooldown", map[string]any{"seconds": 120})
	require.Equal(t, 120, a.cooldown)
	callTool(t, s, "set_quota_cooldown", map[string]any{"seconds": 0})
	require.Zero(t, a.cooldown)

	require.True(t, callTool(t, s, "set_quota_cooldown", nil).IsError)
	require.True(t, callTool(t, s, "set_quota_cooldown", map[string]any{"seconds": -5}).IsError)
}

func TestRunCycleAndListPosts(t *testing.T) {
	p := &fakePosts{}
	s := newServer(&fakeAutomation{}, p)

	res := callTool(t, s, "run_cycle", nil)
	require.Contains(t, res.Content[0].Text, "Publicado")

	res = callTool(t, s, "list_posts", map[string]any{"limit": 5})
	require.Equal(t, 5, p.limit)
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	require.Equal(t, "Política", out[0]["category"])
	require.Equal(t, true, out[0]["breaking"])
}
