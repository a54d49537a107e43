package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/search"
	"github.com/mvp-joe/mcp-brag/internal/store"
)

// searchPayload is the tool result for search and deep_search. It matches
// the HTTP search endpoints field for field.
type searchPayload struct {
	Status            string      `json:"status"`
	Query             string      `json:"query"`
	ResultsCount      int         `json:"results_count"`
	SearchTimeSeconds string      `json:"search_time_seconds"`
	Results           []searchHit `json:"results"`
}

type searchHit struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Distance float64 `json:"distance"`
}

// relevantPayload is the tool result for most_relevant_files.
type relevantPayload struct {
	Status              string                 `json:"status"`
	MostRelevantSources []store.RelevantSource `json:"most_relevant_sources"`
	SearchTimeSeconds   string                 `json:"search_time_seconds"`
}

func searchResult(query string, results []search.Result, elapsed time.Duration) searchPayload {
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{Text: r.Text, Source: r.Source, Distance: r.Distance})
	}
	return searchPayload{
		Status:            "success",
		Query:             query,
		ResultsCount:      len(hits),
		SearchTimeSeconds: fmt.Sprintf("%.3f", elapsed.Seconds()),
		Results:           hits,
	}
}

// AddSearchTools registers the search, most_relevant_files and deep_search
// tools with an MCP server.
func AddSearchTools(s *server.MCPServer, svc *search.Service, active *search.ActiveSources, cfg *config.Config) {
	searchTool := mcp.NewTool(
		"search",
		mcp.WithDescription("Search for relevant content across all processed files based on a query. The tool can be used iteratively to get more results by paginating the function call using the offset parameter. Use results[n].text to answer the user's question."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query")),
		mcp.WithNumber("offset",
			mcp.Description("Number of results to skip, when iterating over results (default: 0)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(searchTool, createSearchHandler(svc, active, cfg))

	relevantTool := mcp.NewTool(
		"most_relevant_files",
		mcp.WithDescription("Get the most relevant files for a query. This tool should be used to find relevant files and then use the deep_search tool to get more enhanced results. Pass the returned collection names to the deep_search sources argument."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(relevantTool, createMostRelevantFilesHandler(svc, active, cfg))

	deepTool := mcp.NewTool(
		"deep_search",
		mcp.WithDescription("Search for relevant content across the given sources based on a query and get significantly more relevant results. Before using this tool, you should use the most_relevant_files tool to find the most relevant sources."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query")),
		mcp.WithArray("sources",
			mcp.Required(),
			mcp.Description("The list of sources to search in, as returned by most_relevant_files")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	s.AddTool(deepTool, createDeepSearchHandler(svc, cfg))
}

func createSearchHandler(svc *search.Service, active *search.ActiveSources, cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		query, ok := argsMap["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Query cannot be empty"), nil
		}

		offset := 0
		if raw, ok := argsMap["offset"].(float64); ok {
			offset = int(raw)
		}

		start := time.Now()
		results, err := svc.Search(ctx, query, active.Filter(), cfg.Int(config.KeySearchResultLimit), offset)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		return marshalResult(searchResult(query, results, time.Since(start)))
	}
}

func createMostRelevantFilesHandler(svc *search.Service, active *search.ActiveSources, cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		query, ok := argsMap["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Query cannot be empty"), nil
		}

		start := time.Now()
		ranked, err := svc.MostRelevantSources(ctx, query, active.Filter(), cfg.Int(config.KeySearchResultLimit))
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		return marshalResult(relevantPayload{
			Status:              "success",
			MostRelevantSources: ranked,
			SearchTimeSeconds:   fmt.Sprintf("%.3f", time.Since(start).Seconds()),
		})
	}
}

func createDeepSearchHandler(svc *search.Service, cfg *config.Config) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, ok := request.Params.Arguments.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("invalid arguments format"), nil
		}

		query, ok := argsMap["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Query cannot be empty"), nil
		}

		rawSources, ok := argsMap["sources"].([]interface{})
		if !ok {
			return mcp.NewToolResultError("sources parameter is required"), nil
		}
		sources := make([]string, 0, len(rawSources))
		for _, src := range rawSources {
			if s, ok := src.(string); ok {
				sources = append(sources, s)
			}
		}

		if max := cfg.Int(config.KeyMaxSourcesInDeepSearch); len(sources) > max {
			return mcp.NewToolResultError(fmt.Sprintf("Too many sources: %d (max = %d)", len(sources), max)), nil
		}

		start := time.Now()
		results, err := svc.Search(ctx, query, sources, cfg.Int(config.KeyDeepSearchResultLimit), 0)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}

		return marshalResult(searchResult(query, results, time.Since(start)))
	}
}

func marshalResult(payload any) (*mcp.CallToolResult, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
