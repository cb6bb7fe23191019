package candidates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTavilyURL   = "https://api.tavily.com/search"
	tavilyMaxResults   = 3
	tavilyErrBodyLimit = 4096
)

// Tavily is a minimal client for the Tavily web search API.
type Tavily struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

// NewTavily returns a client. A nil httpClient gets a 10 second timeout.
func NewTavily(apiKey string, httpClient *http.Client) *Tavily {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Tavily{apiKey: apiKey, url: DefaultTavilyURL, httpClient: httpClient}
}

// SearchResult is one hit.
type SearchResult struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs a query and returns up to three results.
func (t *Tavily) Search(ctx context.Context, query string) ([]SearchResult, error) {
	payload, err := json.Marshal(tavilyRequest{APIKey: t.apiKey, Query: query, MaxResults: tavilyMaxResults})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, tavilyErrBodyLimit))
		return nil, fmt.Errorf("tavily: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tavily: decode: %w", err)
	}
	if len(out.Results) > tavilyMaxResults {
		out.Results = out.Results[:tavilyMaxResults]
	}
	return out.Results, nil
}

// Tool exposes Search to the agent. The observation is the JSON result list.
func (t *Tavily) Tool() Tool {
	return Tool{
		Name:        "TavilySearch",
		Description: "A search engine optimized for comprehensive, accurate, and trusted results. Input should be a search query.",
		Run: func(ctx context.Context, query string) (string, error) {
			results, err := t.Search(ctx, query)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(results)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}
