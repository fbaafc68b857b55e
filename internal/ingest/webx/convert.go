package webx

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var (
	scriptRe    = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe     = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	blankRunsRe = regexp.MustCompile(`\n{4,}`)
)

// Readability output shorter than this is treated as a miss and the DOM
// pruning fallback runs instead.
const minReadableChars = 100

// chrome elements stripped when readability cannot isolate an article.
var (
	prunedTags = []string{
		"nav", "header", "footer", "aside", "script", "style", "noscript",
		"iframe", "object", "embed", "form", "input", "button",
	}
	prunedClasses = []string{
		"nav", "navbar", "navigation", "sidebar", "menu", "toc",
		"table-of-contents", "footer", "header", "ad", "advertisement",
		"social", "share", "comments", "related", "breadcrumb",
	}
)

// convertHTML reduces raw HTML to markdown on the page. Readability
// isolates the article body first; DOM pruning is the fallback.
func (e *extractor) convertHTML(page *Page, body []byte) error {
	isolated, readTitle := isolateContent(page.URL, body)

	markdown, err := e.converter.ConvertString(isolated)
	if err != nil {
		return extractErr(ErrorConvert, "html to markdown", err)
	}
	page.Markdown = cleanMarkdown(markdown)

	page.Title = readTitle
	if page.Title == "" {
		page.Title = htmlTitle(body)
	}
	if page.Title == "" {
		page.Title = markdownTitle(page.Markdown)
	}
	return nil
}

// isolateContent returns the HTML fragment worth converting plus the title
// readability recovered, if any.
func isolateContent(pageURL string, body []byte) (string, string) {
	if base, err := url.Parse(pageURL); err == nil {
		article, err := readability.FromReader(bytes.NewReader(body), base)
		if err == nil && len(strings.TrimSpace(article.TextContent)) >= minReadableChars {
			return article.Content, strings.TrimSpace(article.Title)
		}
	}
	return pruneChrome(body), ""
}

// pruneChrome extracts the main content area, or failing that strips
// navigation chrome from the body.
func pruneChrome(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		content := scriptRe.ReplaceAllString(string(body), "")
		return styleRe.ReplaceAllString(content, "")
	}

	for _, selector := range []string{"main", "article", "[role=main]"} {
		if node := findNode(doc, selector); node != nil {
			return renderHTML(node)
		}
	}

	pruneTags(doc, prunedTags)
	pruneClasses(doc, prunedClasses)
	if node := findNode(doc, "body"); node != nil {
		return renderHTML(node)
	}
	return string(body)
}

// findNode returns the first element matching a tag name or a
// [attr=value] selector.
func findNode(root *html.Node, selector string) *html.Node {
	var result *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if result != nil {
			return
		}
		if n.Type == html.ElementNode && nodeMatches(n, selector) {
			result = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return result
}

func nodeMatches(n *html.Node, selector string) bool {
	if strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]") {
		parts := strings.SplitN(strings.Trim(selector, "[]"), "=", 2)
		if len(parts) != 2 {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == parts[0] && a.Val == parts[1] {
				return true
			}
		}
		return false
	}
	return n.Data == selector
}

func pruneTags(root *html.Node, tags []string) {
	drop := make(map[string]bool, len(tags))
	for _, tag := range tags {
		drop[tag] = true
	}
	removeMatching(root, func(n *html.Node) bool {
		return drop[n.Data]
	})
}

func pruneClasses(root *html.Node, classes []string) {
	drop := make(map[string]bool, len(classes))
	for _, class := range classes {
		drop[strings.ToLower(class)] = true
	}
	removeMatching(root, func(n *html.Node) bool {
		for _, a := range n.Attr {
			if a.Key != "class" {
				continue
			}
			for _, c := range strings.Fields(strings.ToLower(a.Val)) {
				if drop[c] {
					return true
				}
			}
		}
		return false
	})
}

// removeMatching detaches every element the predicate matches. Matched
// subtrees are not descended into.
func removeMatching(root *html.Node, match func(*html.Node) bool) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			doomed = append(doomed, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func renderHTML(n *html.Node) string {
	var sb strings.Builder
	html.Render(&sb, n)
	return sb.String()
}

// cleanMarkdown collapses blank-line runs and trims trailing space.
func cleanMarkdown(content string) string {
	content = blankRunsRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// htmlTitle pulls the <title> element text.
func htmlTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	node := findNode(doc, "title")
	if node == nil || node.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(node.FirstChild.Data)
}

// markdownTitle returns the first H1 heading.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
