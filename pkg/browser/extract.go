package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// PostContent is the text context extracted from a feed post page, the raw
// material for reply and quote generation prompts.
type PostContent struct {
	Author  string   `json:"author"`
	Handle  string   `json:"handle"`
	Text    string   `json:"text"`
	Replies []string `json:"replies,omitempty"`
}

const (
	// maxReplySnippets bounds how many reply excerpts ride along in prompts.
	maxReplySnippets = 5
	// maxReplySnippetLen truncates each reply excerpt.
	maxReplySnippetLen = 200
)

// ExtractPost parses a post page's HTML and pulls out the primary post's
// author, handle, and text, plus a few reply snippets for conversational
// context. The first article element is the primary post; the rest are
// replies.
func ExtractPost(rawHTML string) (*PostContent, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	articles := collectArticles(doc)
	if len(articles) == 0 {
		return nil, fmt.Errorf("no post found on page")
	}

	post := &PostContent{}
	post.Text = strings.TrimSpace(textByTestID(articles[0], "tweetText"))
	post.Author, post.Handle = authorInfo(articles[0])

	if post.Text == "" {
		return nil, fmt.Errorf("post has no extractable text")
	}

	for _, article := range articles[1:] {
		if len(post.Replies) >= maxReplySnippets {
			break
		}
		reply := strings.TrimSpace(textByTestID(article, "tweetText"))
		if reply == "" {
			continue
		}
		if len(reply) > maxReplySnippetLen {
			reply = reply[:maxReplySnippetLen] + "..."
		}
		post.Replies = append(post.Replies, reply)
	}

	return post, nil
}

// collectArticles walks the tree and returns article elements in document
// order.
func collectArticles(n *html.Node) []*html.Node {
	var articles []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "article") {
			articles = append(articles, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return articles
}

// textByTestID concatenates the text content of descendants carrying the
// given data-testid attribute.
func textByTestID(n *html.Node, testID string) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "data-testid") == testID {
			collectText(n, &sb)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// authorInfo pulls the display name and @handle out of an article's
// user-name block. The handle is the first token starting with "@"; the
// display name is the first non-handle text before it.
func authorInfo(article *html.Node) (author, handle string) {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "data-testid") == "User-Name" {
			collectText(n, &sb)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(article)

	for _, token := range strings.Fields(sb.String()) {
		if strings.HasPrefix(token, "@") {
			if handle == "" {
				handle = token
			}
		} else if handle == "" && token != "·" {
			if author != "" {
				author += " "
			}
			author += token
		}
	}
	return author, handle
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(text)
		}
	}
	// img nodes carry emoji as alt text
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "img") {
		if alt := attr(n, "alt"); alt != "" {
			sb.WriteString(alt)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// interactiveElementsJS collects visible buttons and links with their labels
// and center coordinates. Runs inside the page.
const interactiveElementsJS = `(() => {
	const out = [];
	const nodes = document.querySelectorAll('button, a[href], [role="button"], [role="link"]');
	for (const el of nodes) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		if (rect.bottom < 0 || rect.top > window.innerHeight) continue;
		const label = (el.getAttribute('aria-label') || el.innerText || '').trim().slice(0, 80);
		if (!label) continue;
		out.push({
			label: label,
			role: el.getAttribute('role') || el.tagName.toLowerCase(),
			x: rect.left + rect.width / 2,
			y: rect.top + rect.height / 2,
		});
	}
	return out;
})()`

// ListInteractiveElements enumerates the visible, labeled interactive
// elements on the page for vision prompts, capped at max.
func ListInteractiveElements(page Page, max int) ([]types.PageElement, error) {
	raw, err := page.Evaluate(interactiveElementsJS)
	if err != nil {
		return nil, fmt.Errorf("element enumeration failed: %w", err)
	}

	// Round-trip through JSON: Evaluate returns generic maps.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode element list: %w", err)
	}

	var elements []types.PageElement
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode element list: %w", err)
	}

	if max > 0 && len(elements) > max {
		elements = elements[:max]
	}
	return elements, nil
}
