// Package page reads and writes the renderer's startup document: an HTML page
// carrying the URL-encoded startup payload as the text of the element with
// id "data".
package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// DataElementID is the id of the element holding the payload.
const DataElementID = "data"

// ExtractPayload returns the text content of the data element, or "" when the
// document has none or cannot be parsed.
func ExtractPayload(r io.Reader) string {
	doc, err := html.Parse(r)
	if err != nil {
		return ""
	}
	n := findByID(doc, DataElementID)
	if n == nil {
		return ""
	}
	var sb strings.Builder
	collectText(n, &sb)
	return strings.TrimSpace(sb.String())
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

// Fetch loads the document at pageURL and extracts its payload.
func Fetch(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return ExtractPayload(resp.Body), nil
}

const documentFormat = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
<div id="app"></div>
<script type="application/json" id="data">%s</script>
</body>
</html>
`

// Render writes a document embedding payload, which must already be URL
// encoded so that it cannot end the script element.
func Render(w io.Writer, title, payload string) error {
	_, err := fmt.Fprintf(w, documentFormat, html.EscapeString(title), payload)
	return err
}
