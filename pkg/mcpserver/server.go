// Package mcpserver is a small MCP (Model Context Protocol) server over
// newline-delimited JSON-RPC 2.0 on stdio.
//
//	s := mcpserver.New("portalbot", version)
//	s.Register(tools...)
//	s.Serve(ctx, os.Stdin, os.Stdout)
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
)

// Server dispatches JSON-RPC requests to registered tools.
type Server struct {
	name    string
	version string
	tools   map[string]Tool
	logger  *slog.Logger
}

// New creates a server without tools.
func New(name, version string) *Server {
	return &Server{
		name:    name,
		version: version,
		tools:   make(map[string]Tool),
		logger:  slog.Default(),
	}
}

// Register adds tools, replacing any with the same name.
func (s *Server) Register(tools ...Tool) {
	for _, t := range tools {
		s.tools[t.Name()] = t
	}
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("mcp server started", "name", s.name, "version", s.version, "tools", len(s.tools))
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				// The stream cannot be resynchronised after a syntax error.
				_ = enc.Encode(&Response{JSONRPC: "2.0", ID: json.RawMessage("null"),
					Error: &RPCError{Code: CodeParseError, Message: "parse error"}})
			}
			return fmt.Errorf("decode request: %w", err)
		}
		resp := s.Handle(ctx, &req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}

// Handle processes one request. Notifications return nil.
func (s *Server) Handle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in mcp handler", "method", req.Method, "panic", r)
			resp = s.errorResponse(req, CodeInternalError, "internal error")
		}
	}()

	if req.IsNotification() {
		s.logger.Debug("mcp notification", "method", req.Method)
		return nil
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case "initialize":
		res := &InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
		}
		return s.result(req, res)
	case "ping":
		return s.result(req, struct{}{})
	case "tools/list":
		return s.result(req, s.list())
	case "tools/call":
		var p callParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
			return s.errorResponse(req, CodeInvalidParams, "tools/call needs a tool name")
		}
		tool, ok := s.tools[p.Name]
		if !ok {
			return s.errorResponse(req, CodeInvalidParams, "unknown tool: "+p.Name)
		}
		s.logger.Info("mcp tool call", "tool", p.Name)
		res, err := tool.Execute(ctx, p.Arguments)
		if err != nil {
			res = ErrorResult(err)
		}
		return s.result(req, res)
	default:
		return s.errorResponse(req, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) list() *ToolsListResult {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := &ToolsListResult{Tools: make([]ToolDef, 0, len(names))}
	for _, name := range names {
		t := s.tools[name]
		out.Tools = append(out.Tools, ToolDef{Name: name, Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return out
}

func (s *Server) result(req *Request, v any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: v}
}

func (s *Server) errorResponse(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}
