package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/pipeline"
)

// NewMCPServer creates an MCP server exposing the pipeline as tools and the
// store contents as resources.
func NewMCPServer(svc *pipeline.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"evlink",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("evlink: NCCD adjustment and evidence tracking with link review and compliance reporting."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("extract_document",
			mcp.WithDescription("Extract an adjustment (Learning Plan) or evidence item (Evidence) from document text and store it."),
			mcp.WithString("document_type", mcp.Description(`"Learning Plan" or "Evidence"`), mcp.Required()),
			mcp.WithString("text", mcp.Description("Document text")),
			mcp.WithArray("file_names", mcp.Description("Names of files submitted with the document")),
		),
		mcpExtractDocument(svc),
	)

	s.AddTool(
		mcp.NewTool("generate_links",
			mcp.WithDescription("Propose evidence links across every stored adjustment and evidence item."),
		),
		mcpGenerateLinks(svc),
	)

	s.AddTool(
		mcp.NewTool("review_link",
			mcp.WithDescription("Accept or reject the proposed link between an adjustment and an evidence item."),
			mcp.WithString("adjustment_id", mcp.Description("Adjustment id"), mcp.Required()),
			mcp.WithString("evidence_id", mcp.Description("Evidence id"), mcp.Required()),
			mcp.WithString("status", mcp.Description(`"accepted" or "rejected"`), mcp.Required()),
			mcp.WithString("notes", mcp.Description("Reviewer notes")),
		),
		mcpReviewLink(svc),
	)

	s.AddTool(
		mcp.NewTool("compliance_summary",
			mcp.WithDescription("Generate the NCCD compliance report from accepted links."),
		),
		mcpComplianceSummary(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"nccd://data",
			"Records",
			mcp.WithResourceDescription("All adjustments, evidence items and links as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceData(svc),
	)

	s.AddResource(
		mcp.NewResource(
			"nccd://stats",
			"Review Statistics",
			mcp.WithResourceDescription("Record counts, review progress and average link confidence"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(svc),
	)

	return s
}

func mcpExtractDocument(svc *pipeline.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docType, err := req.RequireString("document_type")
		if err != nil {
			return mcpError("document_type is required"), nil
		}

		var files []nccd.FileInfo
		for _, name := range req.GetStringSlice("file_names", nil) {
			files = append(files, nccd.FileInfo{Name: name})
		}

		out, err := svc.Extract(ctx, extract.Request{
			Text:         req.GetString("text", ""),
			DocumentType: nccd.DocumentType(docType),
			Files:        files,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("extraction failed: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpGenerateLinks(svc *pipeline.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		links, err := svc.LinkStored(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("linking failed: %v", err)), nil
		}
		return mcpJSON(LinkResponse{
			Success: true,
			Links:   links,
			Message: fmt.Sprintf("Generated %d evidence links", len(links)),
		})
	}
}

func mcpReviewLink(svc *pipeline.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		adjID, err := req.RequireString("adjustment_id")
		if err != nil {
			return mcpError("adjustment_id is required"), nil
		}
		evID, err := req.RequireString("evidence_id")
		if err != nil {
			return mcpError("evidence_id is required"), nil
		}
		status, err := req.RequireString("status")
		if err != nil {
			return mcpError("status is required"), nil
		}

		res, err := svc.Review(ctx, pipeline.ReviewRequest{
			AdjustmentID: adjID,
			EvidenceID:   evID,
			Status:       status,
			Notes:        req.GetString("notes", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("review failed: %v", err)), nil
		}
		if !res.Updated {
			return mcpText(fmt.Sprintf("No link found for %s / %s", adjID, evID)), nil
		}
		return mcpText(fmt.Sprintf("Evidence link %s successfully", res.Status)), nil
	}
}

func mcpComplianceSummary(svc *pipeline.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := svc.Summary(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}
		return mcpJSON(report)
	}
}

func mcpResourceData(svc *pipeline.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap, err := svc.Data(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		return jsonResource(req.Params.URI, snap)
	}
}

func mcpResourceStats(svc *pipeline.Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := svc.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
		return jsonResource(req.Params.URI, st)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
