package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBody caps how much of a fetched page is returned to the model.
const maxFetchBody = 100 * 1024 // 100 KB

// fetchTimeout bounds a single web_fetch request.
const fetchTimeout = 30 * time.Second

// WebDescriptors returns the web access tools. web_fetch performs a real
// HTTP GET. web_search is a placeholder awaiting a search API backend and
// tells the model so.
func WebDescriptors(client *http.Client) []Descriptor {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	w := &webTools{client: client}
	return []Descriptor{
		{
			Name:        "web_search",
			Description: "Search the web for information (NOT YET IMPLEMENTED).",
			Params: []ParamSpec{
				{Name: "query", Type: TypeString, Description: "Search query to find relevant web pages", Required: true},
			},
			Handler: w.handleSearch,
		},
		{
			Name:        "web_fetch",
			Description: "Fetch text content from a URL.",
			Params: []ParamSpec{
				{Name: "url", Type: TypeString, Description: "Full URL to fetch content from (e.g., https://example.com)", Required: true},
			},
			Handler: w.handleFetch,
		},
	}
}

type webTools struct {
	client *http.Client
}

func (w *webTools) handleSearch(_ context.Context, args Args) (string, error) {
	query := args.String("query")
	return fmt.Sprintf("[Web search not yet implemented for query: %s]\nThis tool requires implementation with a search API.", query), nil
}

func (w *webTools) handleFetch(ctx context.Context, args Args) (string, error) {
	rawURL := args.String("url")
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return fmt.Sprintf("Error: URL must start with http:// or https://, got '%s'", rawURL), nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	req.Header.Set("User-Agent", "agentforge/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching URL: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: HTTP %d fetching '%s'", resp.StatusCode, rawURL), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), nil
	}

	truncated := false
	if len(body) > maxFetchBody {
		body = body[:maxFetchBody]
		truncated = true
	}

	content := string(body)
	if truncated {
		content += "\n\n[Content truncated at 100KB]"
	}
	return content, nil
}
