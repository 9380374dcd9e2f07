package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

const maxTitleBytes = 256 << 10

// FetchTitle reads the <title> of an HTML page. Only the head of the body is
// read.
func FetchTitle(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create title request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch title: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch title: status %s", resp.Status)
	}
	return parseTitle(io.LimitReader(resp.Body, maxTitleBytes))
}

func parseTitle(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)
	inTitle := false
	var b strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return "", fmt.Errorf("parse html: %w", err)
			}
			return "", fmt.Errorf("no title element")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "title":
				inTitle = true
			case "body":
				return "", fmt.Errorf("no title element")
			}
		case html.TextToken:
			if inTitle {
				b.Write(tokenizer.Text())
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if inTitle && string(name) == "title" {
				title := strings.Join(strings.Fields(b.String()), " ")
				if title == "" {
					return "", fmt.Errorf("empty title element")
				}
				return title, nil
			}
		}
	}
}

// DeriveTitle builds a readable label from a URL: the last path segment with
// separators turned into spaces, followed by the host.
func DeriveTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")

	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "." || segment == "/" || segment == "" {
		return host
	}
	if ext := path.Ext(segment); ext != "" {
		segment = strings.TrimSuffix(segment, ext)
	}
	segment = strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(segment)
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	segment = strings.Join(strings.Fields(segment), " ")
	if segment == "" {
		return host
	}
	return segment + " - " + host
}
