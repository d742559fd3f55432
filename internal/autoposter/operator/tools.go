// Package operator exposes the automation to MCP clients.
package operator

import (
	"context"
	"errors"
	"fmt"

	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/content"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/cycle"
	"github.com/RobinCoderZhao/portal-autopost/internal/autoposter/scheduler"
	"github.com/RobinCoderZhao/portal-autopost/pkg/mcpserver"
)

// Automation is the scheduler surface the tools drive.
type Automation interface {
	Start() error
	Stop()
	Status() scheduler.Status
	RunCycleNow(ctx context.Context, onLog cycle.Observer) ([]cycle.LogEntry, error)
	SetQuotaCooldown(seconds int)
	ClearQuotaCooldown()
	LastLogs() []cycle.LogEntry
}

// Posts lists what was published.
type Posts interface {
	ListPosts(ctx context.Context, limit int) ([]content.Post, error)
}

// Tools returns every operator tool.
func Tools(a Automation, posts Posts) []mcpserver.Tool {
	return []mcpserver.Tool{
		&mcpserver.FuncTool{
			ToolName:        "automation_status",
			ToolDescription: "Estado da automação: ativa, intervalo, cooldown de cota e último ciclo.",
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				return mcpserver.JSONResult(a.Status()), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "automation_start",
			ToolDescription: "Inicia a automação. Executa um ciclo imediatamente.",
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				if err := a.Start(); err != nil {
					return nil, describe(err)
				}
				return mcpserver.JSONResult(a.Status()), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "automation_stop",
			ToolDescription: "Para a automação. Um ciclo em andamento termina normalmente.",
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				a.Stop()
				return mcpserver.TextResult("Automação parada."), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "run_cycle",
			ToolDescription: "Executa um ciclo agora e retorna o log.",
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				logs, err := a.RunCycleNow(ctx, nil)
				if err != nil {
					return nil, describe(err)
				}
				return mcpserver.JSONResult(logs), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "last_logs",
			ToolDescription: "Log do ciclo mais recente.",
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				return mcpserver.JSONResult(a.LastLogs()), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "set_quota_cooldown",
			ToolDescription: "Bloqueia ciclos por N segundos. 0 remove o cooldown.",
			Schema: mcpserver.ObjectSchema(map[string]any{
				"seconds": map[string]any{"type": "integer", "minimum": 0},
			}, "seconds"),
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				seconds, err := mcpserver.IntArg(args, "seconds", -1)
				if err != nil {
					return nil, err
				}
				if seconds < 0 {
					return nil, errors.New("seconds must be zero or positive")
				}
				if seconds == 0 {
					a.ClearQuotaCooldown()
				} else {
					a.SetQuotaCooldown(seconds)
				}
				return mcpserver.JSONResult(a.Status()), nil
			},
		},
		&mcpserver.FuncTool{
			ToolName:        "list_posts",
			ToolDescription: "Últimas matérias publicadas.",
			Schema: mcpserver.ObjectSchema(map[string]any{
				"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
			}),
			Fn: func(ctx context.Context, args map[string]any) (*mcpserver.ToolResult, error) {
				limit, err := mcpserver.IntArg(args, "limit", 10)
				if err != nil {
					return nil, err
				}
				list, err := posts.ListPosts(ctx, limit)
				if err != nil {
					return nil, err
				}
				type summary struct {
					ID       int64  `json:"id"`
					Title    string `json:"title"`
					Category string `json:"category"`
					Breaking bool   `json:"breaking"`
				}
				out := make([]summary, 0, len(list))
				for _, p := range list {
					out = append(out, summary{p.ID, p.Title, p.CategoryName, p.IsBreaking})
				}
				return mcpserver.JSONResult(out), nil
			},
		},
	}
}

func describe(err error) error {
	var ce *scheduler.CooldownError
	switch {
	case errors.As(err, &ce):
		return fmt.Errorf("cota esgotada, aguarde %ds", ce.RemainingSeconds)
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return errors.New("a automação já está ativa")
	case errors.Is(err, scheduler.ErrCycleInFlight):
		return errors.New("um ciclo já está em andamento")
	default:
		return err
	}
}
