// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes versebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/versebook/internal/apperr"
	"github.com/starford/versebook/internal/verseservice"
)

const formatURI = "versebook://document-format"

// Server wraps the MCP server with versebook tools.
type Server struct {
	mcp *server.MCPServer
	svc *verseservice.Service
}

// New creates a new MCP server with all versebook tools registered.
func New(svc *verseservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"versebook",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List every category with its id, level, path and verse count."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("add_category",
		mcp.WithDescription("Create a category. Categories nest at most three levels deep."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("parent_id", mcp.Description("Parent category id; omit for a top-level category")),
	), s.addCategory)

	s.mcp.AddTool(mcp.NewTool("read_verse",
		mcp.WithDescription("Read one verse with its category path and a link to the passage."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Verse id")),
	), s.readVerse)

	s.mcp.AddTool(mcp.NewTool("add_verse",
		mcp.WithDescription("Add a verse to a category. Read the contract first via "+
			"the get_document_contract tool or the "+formatURI+" resource. "+
			"Changes stay local until save_document is called."),
		mcp.WithString("category_id", mcp.Required(), mcp.Description("Category id from list_categories")),
		mcp.WithString("reference", mcp.Required(), mcp.Description("Scripture reference, e.g. John 3:16")),
		mcp.WithString("text", mcp.Description("Verse text")),
		mcp.WithString("notes", mcp.Description("Free-form notes")),
		mcp.WithArray("images", mcp.WithStringItems(), mcp.Description("Image URLs returned by upload_asset")),
	), s.addVerse)

	s.mcp.AddTool(mcp.NewTool("search_verses",
		mcp.WithDescription("Full-text search through verse references, text, notes and category names."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchVerses)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether the document has unsaved changes or a pending conflict."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Write local changes to the remote store."),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the versebook document format contract. "+
			"Call this before adding verses to ensure correct structure."),
	), s.getDocumentContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Store an image from an http(s) URL or a base64 data URI. "+
			"Returns the URL to put in a verse's images."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:image/...;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Optional file name including extension")),
	), s.uploadAsset)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document Format Contract",
			mcp.WithResourceDescription("Structure and rules of the versebook document."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCategories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Categories())
}

func (s *Server) addCategory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.AddCategory(req.GetString("parent_id", ""), name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) readVerse(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Verse(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(v)
}

func (s *Server) addVerse(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	categoryID, err := req.RequireString("category_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reference, err := req.RequireString("reference")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.AddVerse(categoryID, verseservice.VerseInput{
		Reference: reference,
		Text:      req.GetString("text", ""),
		Notes:     req.GetString("notes", ""),
		Images:    req.GetStringSlice("images", nil),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v)
}

func (s *Server) searchVerses(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) syncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Status())
}

func (s *Server) saveDocument(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Save(ctx)
	switch {
	case errors.Is(err, apperr.ErrConflictPending):
		return mcp.NewToolResultError("the remote document changed; a person must resolve the conflict before saving"), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) getDocumentContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.UploadAttachmentSource(ctx, source, req.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(a)
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
