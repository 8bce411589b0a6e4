// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package server exposes the service over MCP stdio and, optionally, a
// small HTTP listener for health and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/olegiv/indiq/internal/query"
	"github.com/olegiv/indiq/internal/service"
)

// NewMCPServer builds the MCP server with the four event tools registered.
func NewMCPServer(svc *service.Service, serverVersion string, logger *slog.Logger) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"indiq",
		serverVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	s.AddTool(searchEventsTool(), searchEventsHandler(svc))
	s.AddTool(getEventDetailsTool(), getEventDetailsHandler(svc))
	s.AddTool(upcomingPublicTool(), upcomingPublicHandler(svc))
	s.AddTool(serverStatusTool(), serverStatusHandler(svc))

	logger.Info("tools registered", "count", 4)
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func ServeStdio(s *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(s)
}

func searchEventsTool() mcp.Tool {
	return mcp.NewTool("search_events",
		mcp.WithDescription("Search upcoming public events by keyword. Matches titles and descriptions case-insensitively within the given date window."),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Text to search for (case-insensitive)"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (1-%d)", query.MaxLimit)),
			mcp.DefaultNumber(query.DefaultLimit),
		),
		mcp.WithNumber("category_id",
			mcp.Description("Category identifier (0 for all categories)"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("days_ahead",
			mcp.Description(fmt.Sprintf("Days to look ahead (default %d; ignored when an explicit window is given)", query.DefaultSearchDays)),
		),
		mcp.WithString("from_date",
			mcp.Description("Window start, YYYY-MM-DD (default: today)"),
		),
		mcp.WithString("to_date",
			mcp.Description("Window end, YYYY-MM-DD (overrides days_ahead)"),
		),
	)
}

func searchEventsHandler(svc *service.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword, err := request.RequireString("keyword")
		if err != nil {
			return errorResult(service.KindValidation, "keyword is required"), nil
		}

		days, err := optionalInt(request, "days_ahead")
		if err != nil {
			return errorResult(service.KindValidation, err.Error()), nil
		}

		records, err := svc.SearchEvents(ctx, service.SearchRequest{
			Keyword:    keyword,
			Limit:      request.GetInt("limit", query.DefaultLimit),
			CategoryID: int64(request.GetInt("category_id", 0)),
			DaysAhead:  days,
			FromDate:   request.GetString("from_date", ""),
			ToDate:     request.GetString("to_date", ""),
		})
		if err != nil {
			return classifiedError(err), nil
		}
		return jsonResult(records)
	}
}

func getEventDetailsTool() mcp.Tool {
	return mcp.NewTool("get_event_details",
		mcp.WithDescription("Get detailed information for a single public event."),
		mcp.WithNumber("event_id",
			mcp.Required(),
			mcp.Description("Numeric event identifier (positive)"),
		),
	)
}

func getEventDetailsHandler(svc *service.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		eventID, err := request.RequireInt("event_id")
		if err != nil {
			return errorResult(service.KindValidation, "event_id is required and must be an integer"), nil
		}

		record, err := svc.GetEventDetails(ctx, int64(eventID))
		if err != nil {
			return classifiedError(err), nil
		}
		return jsonResult(record)
	}
}

func upcomingPublicTool() mcp.Tool {
	return mcp.NewTool("upcoming_public",
		mcp.WithDescription("List upcoming public events sorted by start time."),
		mcp.WithNumber("days",
			mcp.Description(fmt.Sprintf("Days to look ahead (default %d)", query.DefaultUpcomingDays)),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (1-%d)", query.MaxLimit)),
			mcp.DefaultNumber(query.DefaultLimit),
		),
		mcp.WithNumber("category_id",
			mcp.Description("Category identifier (0 for all categories)"),
			mcp.DefaultNumber(0),
		),
		mcp.WithString("from_date",
			mcp.Description("Window start, YYYY-MM-DD (default: today)"),
		),
		mcp.WithString("to_date",
			mcp.Description("Window end, YYYY-MM-DD (overrides days)"),
		),
	)
}

func upcomingPublicHandler(svc *service.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days, err := optionalInt(request, "days")
		if err != nil {
			return errorResult(service.KindValidation, err.Error()), nil
		}

		records, err := svc.UpcomingPublic(ctx, service.UpcomingRequest{
			Days:       days,
			Limit:      request.GetInt("limit", query.DefaultLimit),
			CategoryID: int64(request.GetInt("category_id", 0)),
			FromDate:   request.GetString("from_date", ""),
			ToDate:     request.GetString("to_date", ""),
		})
		if err != nil {
			return classifiedError(err), nil
		}
		return jsonResult(records)
	}
}

func serverStatusTool() mcp.Tool {
	return mcp.NewTool("server_status",
		mcp.WithDescription("Report service status: version, upstream base URL and cache statistics. Never contacts the upstream."),
	)
}

func serverStatusHandler(svc *service.Service) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.Status(ctx))
	}
}

// optionalInt reads an integer argument that must be distinguishable from
// "not supplied" (a pointer carries that distinction into the planner).
func optionalInt(request mcp.CallToolRequest, name string) (*int, error) {
	args := request.GetArguments()
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("invalid %s: must be an integer", name)
	}
	n := int(f)
	return &n, nil
}

// jsonResult marshals a success payload into a text result.
func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult(service.KindInternal, "failed to encode result"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// classifiedError converts an internal error into a tool error result
// with a stable kind tag.
func classifiedError(err error) *mcp.CallToolResult {
	kind, message := service.Classify(err)
	return errorResult(kind, message)
}

func errorResult(kind, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", kind, message))
}
