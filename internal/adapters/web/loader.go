package web

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"comparoo/internal/adapters/config"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const (
	maxBodyBytes    = 512 << 10
	maxContentChars = 4000
	fetchTimeout    = 20 * time.Second
)

var whitespace = regexp.MustCompile(`\s+`)

// Page is the web_fetch tool payload
type Page struct {
	Status     string `json:"status"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Loader fetches product pages for Open-Graph images and readable text
type Loader struct {
	httpClient    *http.Client
	userAgent     string
	scrapeTimeout time.Duration
	log           *logger.Logger
}

// NewLoader creates a new page loader
func NewLoader(cfg config.ImageConfig) *Loader {
	timeout := cfg.ScrapeTimeout
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	return &Loader{
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		userAgent:     cfg.UserAgent,
		scrapeTimeout: timeout,
		log:           logger.Get().With("component", "page_loader"),
	}
}

// IsHTTPURL reports whether raw starts with an http(s) scheme
func IsHTTPURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

// OpenGraphImage returns the og:image of link, or "" on any failure
func (l *Loader) OpenGraphImage(ctx context.Context, link string) string {
	if !IsHTTPURL(link) {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, l.scrapeTimeout)
	defer cancel()

	doc, status, err := l.load(ctx, link, "text/html,application/xhtml+xml")
	if err != nil || status >= http.StatusBadRequest {
		l.log.Debugw("open_graph_image_fetch_failed", "link", link, "status", status, "error", err)
		return ""
	}

	var image string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		key, ok := s.Attr("property")
		if !ok {
			key, _ = s.Attr("name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "og:image" && key != "og:image:secure_url" {
			return true
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return true
		}
		image = content
		return false
	})

	if strings.HasPrefix(image, "//") {
		image = "https:" + image
	}
	if !IsHTTPURL(image) {
		return ""
	}
	return image
}

// FetchPage loads url and returns its title and whitespace-collapsed text.
// HTTP errors produce an error-status page rather than a Go error.
func (l *Loader) FetchPage(ctx context.Context, url string) (*Page, error) {
	if !IsHTTPURL(url) {
		return nil, errors.NewValidationError("url", "must be an http(s) URL", url)
	}

	doc, status, err := l.load(ctx, url, "text/html,application/xhtml+xml;q=0.9,application/xml;q=0.8,*/*;q=0.7")
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		l.log.Warnw("web_fetch_http_error", "url", url, "status_code", status)
		return &Page{Status: "error", URL: url, StatusCode: status}, nil
	}

	title := collapse(doc.Find("title").First().Text())
	doc.Find("script, style, head, noscript").Remove()
	content := collapse(doc.Text())
	if runes := []rune(content); len(runes) > maxContentChars {
		content = string(runes[:maxContentChars])
	}

	return &Page{
		Status:     "ok",
		URL:        url,
		StatusCode: status,
		Title:      title,
		Content:    content,
	}, nil
}

func (l *Loader) load(ctx context.Context, url, accept string) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "build request")
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode, nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrapf(err, "parse %s", url)
	}
	return doc, resp.StatusCode, nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
