package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/crystaldolphin/agentbridge/internal/shared/stringutils"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

const (
	fetchUserAgent  = "Mozilla/5.0 (compatible; agentbridge/1.0)"
	maxRedirects    = 5
	defaultMaxChars = 50000
	maxBodyBytes    = 5 << 20
)

// FetchTool fetches a URL and extracts readable content.
type FetchTool struct {
	maxChars   int
	httpClient *http.Client
}

// NewFetchTool creates the fetch_page tool. maxChars defaults to 50000.
func NewFetchTool(maxChars int) *FetchTool {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &FetchTool{maxChars: maxChars, httpClient: client}
}

var fetchParams = NewSchema().
	String("url", "URL to fetch", true).
	Enum("extractMode", "Output format, markdown by default", false, "markdown", "text").
	Integer("maxChars", "Truncate the extracted text to this many characters", false).
	Params()

func (t *FetchTool) Name() string { return "fetch_page" }
func (t *FetchTool) Description() string {
	return "Fetch a web page and extract its readable content as markdown or text. JSON responses are returned as data."
}
func (t *FetchTool) Params() []Param        { return fetchParams }
func (t *FetchTool) Timeout() time.Duration { return 30 * time.Second }

func (t *FetchTool) Execute(ctx context.Context, args value.Object) (any, error) {
	target, err := RequireString(args, "url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, InvalidArgs("url %q is not fetchable: use an absolute http or https URL", target)
	}
	mode, err := OptionalString(args, "extractMode")
	if err != nil {
		return nil, err
	}
	plain := mode == "text"
	maxChars, err := OptionalInt(args, "maxChars", t.maxChars)
	if err != nil {
		return nil, err
	}
	maxChars = max(maxChars, 100)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, Failed(err, "build request for %s", target)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, Failed(err, "fetch %s", target)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Failed(err, "read body of %s", target)
	}

	page := value.Object{
		"url":      value.String(target),
		"finalUrl": value.String(resp.Request.URL.String()),
		"status":   value.Int(int64(resp.StatusCode)),
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = http.DetectContentType(body)
	}
	var text string
	switch {
	case strings.Contains(ctype, "json"):
		if data, err := value.Parse(body); err == nil {
			page["extractor"] = value.String("json")
			page["data"] = data
			return page, nil
		}
		text = string(body)
		page["extractor"] = value.String("raw")

	case strings.Contains(ctype, "html"):
		article, err := readability.FromReader(bytes.NewReader(body), resp.Request.URL)
		if err != nil {
			// Not an article; render the whole document.
			if doc, perr := html.Parse(bytes.NewReader(body)); perr == nil {
				text = renderHTML(doc, plain)
			}
			page["extractor"] = value.String("html")
			break
		}
		page["extractor"] = value.String("readability")
		if article.Title != "" {
			page["title"] = value.String(article.Title)
		}
		if article.Byline != "" {
			page["byline"] = value.String(article.Byline)
		}
		if plain {
			text = strings.TrimSpace(article.TextContent)
		} else if doc, perr := html.Parse(strings.NewReader(article.Content)); perr == nil {
			text = renderHTML(doc, false)
		}

	default:
		text = string(body)
		page["extractor"] = value.String("raw")
	}

	n := utf8.RuneCountInString(text)
	page["truncated"] = value.Bool(n > maxChars)
	text = stringutils.Truncate(text, maxChars)
	page["length"] = value.Int(int64(utf8.RuneCountInString(text)))
	page["text"] = value.String(text)
	return page, nil
}

// mdWriter renders a parsed document as light markdown (or plain text):
// headings, links, list items, emphasis, code and paragraph breaks.
type mdWriter struct {
	sb    strings.Builder
	plain bool
	pre   int
}

func renderHTML(n *html.Node, plain bool) string {
	w := &mdWriter{plain: plain}
	w.walk(n)
	return tidyLines(w.sb.String())
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

func (w *mdWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if lvl, ok := headingLevel[n.DataAtom]; ok {
			w.wrapBlock(n, strings.Repeat("#", lvl)+" ")
			return
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template:
			return
		case atom.Br:
			w.sb.WriteString("\n")
			return
		case atom.Li:
			if !strings.HasSuffix(w.sb.String(), "\n") {
				w.sb.WriteString("\n")
			}
			w.mark("- ")
			w.children(n)
			w.sb.WriteString("\n")
			return
		case atom.A:
			href := attr(n, "href")
			if w.plain || href == "" || strings.HasPrefix(href, "#") {
				w.children(n)
				return
			}
			w.sb.WriteString("[")
			w.children(n)
			w.sb.WriteString("](" + href + ")")
			return
		case atom.Strong, atom.B:
			w.inline(n, "**")
			return
		case atom.Em, atom.I:
			w.inline(n, "_")
			return
		case atom.Code:
			if w.pre == 0 {
				w.inline(n, "`")
				return
			}
		case atom.Pre:
			w.pre++
			w.wrapBlock(n, "")
			w.pre--
			return
		case atom.P, atom.Div, atom.Section, atom.Article, atom.Blockquote,
			atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Hr, atom.Figure:
			w.wrapBlock(n, "")
			return
		}
	}
	w.children(n)
}

func (w *mdWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *mdWriter) wrapBlock(n *html.Node, prefix string) {
	w.sb.WriteString("\n\n")
	w.mark(prefix)
	w.children(n)
	w.sb.WriteString("\n\n")
}

func (w *mdWriter) inline(n *html.Node, delim string) {
	w.mark(delim)
	w.children(n)
	w.mark(delim)
}

// mark writes markup that plain text output leaves out.
func (w *mdWriter) mark(s string) {
	if !w.plain {
		w.sb.WriteString(s)
	}
}

func (w *mdWriter) text(s string) {
	if w.pre > 0 {
		w.sb.WriteString(s)
		return
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		if s != "" && !strings.HasSuffix(w.sb.String(), " ") {
			w.sb.WriteString(" ")
		}
		return
	}
	out := strings.Join(words, " ")
	if startsWithSpace(s) {
		out = " " + out
	}
	if endsWithSpace(s) {
		out += " "
	}
	w.sb.WriteString(out)
}

func startsWithSpace(s string) bool { return strings.TrimLeft(s, " \t\r\n") != s }
func endsWithSpace(s string) bool   { return strings.TrimRight(s, " \t\r\n") != s }

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tidyLines trims each line and keeps at most one blank line in a row.
func tidyLines(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
