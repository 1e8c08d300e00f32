// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dtokit tools for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dtokit/internal/recordservice"
	"github.com/starford/dtokit/internal/schemas"
	"github.com/starford/dtokit/internal/storage"
	"github.com/starford/dtokit/pkg/dto"
)

const rulesURI = "dtokit://coercion-rules"

// Server wraps the MCP server with dtokit tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *recordservice.Service
	reg    *schemas.Registry
	store  storage.Provider
	logger *slog.Logger
}

// New creates a new MCP server with all dtokit tools registered.
func New(svc *recordservice.Service, reg *schemas.Registry, store storage.Provider, logger *slog.Logger) *Server {
	s := &Server{svc: svc, reg: reg, store: store, logger: logger}

	s.mcp = server.NewMCPServer(
		"dtokit",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_schemas",
		mcp.WithDescription("List the names of all registered record schemas."),
	), s.listSchemas)

	s.mcp.AddTool(mcp.NewTool("describe_schema",
		mcp.WithDescription("Describe one schema: its fields in declaration order and their types."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Schema name")),
	), s.describeSchema)

	s.mcp.AddTool(mcp.NewTool("populate_record",
		mcp.WithDescription("Build a typed record from loose input. Every declared field is present "+
			"in the result; absent input gives null; undeclared keys are dropped. "+
			"Read get_coercion_contract for the conversion rules."),
		mcp.WithString("schema", mcp.Required(), mcp.Description("Schema name")),
		mcp.WithObject("data", mcp.Description("Input key/value pairs")),
	), s.populateRecord)

	s.mcp.AddTool(mcp.NewTool("record_from_model",
		mcp.WithDescription("Build a typed record from a stored model."),
		mcp.WithString("schema", mcp.Required(), mcp.Description("Schema name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Model ID")),
	), s.recordFromModel)

	s.mcp.AddTool(mcp.NewTool("coerce_value",
		mcp.WithDescription("Convert one value to a field type and show the result."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Target type: int, float, string, bool, object, array, date or untyped")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value as JSON (e.g. \"12abc\", 3.5, [1,2]); text that is not JSON is taken as a string")),
	), s.coerceValue)

	s.mcp.AddTool(mcp.NewTool("put_schema_document",
		mcp.WithDescription("Create or replace a YAML schema document in the schema directory. "+
			"The document is validated before it is written."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Document name ending in .yaml or .yml")),
		mcp.WithString("content", mcp.Required(), mcp.Description("YAML document with a top-level schemas list")),
	), s.putSchemaDocument)

	s.mcp.AddTool(mcp.NewTool("get_coercion_contract",
		mcp.WithDescription("Returns the coercion rules applied to every field type. "+
			"Call this before interpreting populated records."),
	), s.getCoercionContract)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Coercion Rules",
			mcp.WithResourceDescription("How loose input values are converted to declared field types."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCoercionRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listSchemas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.reg.Names()
	if len(names) == 0 {
		return mcp.NewToolResultText("no schemas registered"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) describeSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Describe(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func (s *Server) populateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("schema")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, _ := req.GetArguments()["data"].(map[string]any)
	rec, err := s.svc.Populate(ctx, name, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) recordFromModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("schema")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.svc.FromModel(ctx, name, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) coerceValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeName, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := dto.ParseType(typeName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := dto.Coerce(t, decodeLoose(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"type": t, "value": out}), nil
}

func (s *Server) putSchemaDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names, err := putDocument(s.store, filename, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := schemas.Load(s.reg, s.store, s.logger); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved %s: %s", filename, strings.Join(names, ", "))), nil
}

func (s *Server) getCoercionContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CoercionContract), nil
}

func (s *Server) readCoercionRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     CoercionContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// decodeLoose reads raw as JSON, keeping number text. Anything that is not
// a single JSON value is returned as the string itself.
func decodeLoose(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}
