package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/m4xw311/quill/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	tavilySearchEndpoint = "https://api.tavily.com/search"
	webMaxBodyBytes      = 4 << 20
	defaultFetchLength   = 10000
	defaultSearchResults = 5
	snippetLength        = 500
)

// WebSearchTool queries the Tavily search API.
type WebSearchTool struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewWebSearchTool reads the API key from TAVILY_API_KEY.
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		endpoint: tavilySearchEndpoint,
		apiKey:   os.Getenv("TAVILY_API_KEY"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *WebSearchTool) Name() string           { return "web_search" }
func (t *WebSearchTool) SideEffect() SideEffect { return Network }
func (t *WebSearchTool) Description() string {
	return "Searches the web for up-to-date information on programming, tech, and general topics."
}
func (t *WebSearchTool) Schema() Schema {
	depth := str("Search depth: 'basic' or 'advanced' (default: basic)")
	depth.Enum = []string{"basic", "advanced"}
	return Schema{
		Properties: map[string]Property{
			"query":          str("Search query"),
			"max_results":    num(fmt.Sprintf("Maximum number of results (default: %d)", defaultSearchResults)),
			"search_depth":   depth,
			"include_answer": flag("Include a generated summary (default: true)"),
		},
		Required: []string{"query"},
	}
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, _ := stringArg(args, "query")
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("missing or invalid 'query' argument")
	}
	if t.apiKey == "" {
		return "", errors.New("TAVILY_API_KEY environment variable is not set")
	}
	depth, _ := stringArg(args, "search_depth")
	if depth == "" {
		depth = "basic"
	}
	includeAnswer := boolArg(args, "include_answer", true)

	payload, err := json.Marshal(tavilyRequest{
		Query:         query,
		MaxResults:    intArg(args, "max_results", defaultSearchResults),
		SearchDepth:   depth,
		IncludeAnswer: includeAnswer,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(t.apiKey))

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "web search request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, webMaxBodyBytes))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read web search response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", errors.New("web search failed (status %d): %s", resp.StatusCode, msg)
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", errors.Wrapf(err, "invalid web search response")
	}

	var lines []string
	if includeAnswer && decoded.Answer != "" {
		lines = append(lines, "## Summary", decoded.Answer, "")
	}
	if len(decoded.Results) == 0 {
		lines = append(lines, "No results found.")
		return strings.Join(lines, "\n"), nil
	}
	lines = append(lines, "## Search Results")
	for i, r := range decoded.Results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		lines = append(lines, fmt.Sprintf("### %d. %s", i+1, title), "URL: "+r.URL)
		if r.Content != "" {
			content := r.Content
			if len(content) > snippetLength {
				content = content[:snippetLength] + "..."
			}
			lines = append(lines, content)
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n"), nil
}

// WebFetchTool downloads a page and reduces HTML to readable text.
type WebFetchTool struct {
	client *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *WebFetchTool) Name() string           { return "web_fetch" }
func (t *WebFetchTool) SideEffect() SideEffect { return Network }
func (t *WebFetchTool) Description() string {
	return "Fetches a web page and returns its text content. HTML is reduced to the main article text."
}
func (t *WebFetchTool) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"url":        str("URL of the web page to fetch"),
			"max_length": num(fmt.Sprintf("Maximum text length (default: %d)", defaultFetchLength)),
		},
		Required: []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	url, _ := stringArg(args, "url")
	if url == "" {
		return "", errors.New("missing or invalid 'url' argument")
	}
	maxLength := intArg(args, "max_length", defaultFetchLength)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url")
	}
	req.Header.Set("User-Agent", "quill/1.0")
	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch URL")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("failed to fetch URL: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, webMaxBodyBytes))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read response")
	}

	contentType := resp.Header.Get("Content-Type")
	var out string
	switch {
	case strings.Contains(contentType, "text/html"):
		title, text, err := htmlToText(body)
		if err != nil {
			return "", errors.Wrapf(err, "failed to parse HTML")
		}
		out = fmt.Sprintf("# %s\n\nURL: %s\n\n%s", title, url, text)
	case strings.Contains(contentType, "text/"), strings.Contains(contentType, "application/json"):
		out = fmt.Sprintf("URL: %s\n\n%s", url, body)
	default:
		return "", errors.New("unsupported content type: %s", contentType)
	}

	if len(out) > maxLength {
		out = out[:maxLength] + fmt.Sprintf("\n\n... (truncated at %d characters)", maxLength)
	}
	return out, nil
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Noscript: true,
}

// htmlToText returns the page title and the text of its main content: the
// first <article>, else <main>, else <body>.
func htmlToText(page []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", err
	}
	title := "No title"
	if n := findElement(doc, atom.Title); n != nil && n.FirstChild != nil {
		title = strings.TrimSpace(n.FirstChild.Data)
	}
	root := findElement(doc, atom.Article)
	if root == nil {
		root = findElement(doc, atom.Main)
	}
	if root == nil {
		root = findElement(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}

	var lines []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	text := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return title, text, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
