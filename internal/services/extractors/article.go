package extractors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

const (
	articleUserAgent = "Mozilla/5.0 (compatible; Decant/1.0; +https://github.com/RBarbieri13/decant)"
	maxArticleBytes  = 5 << 20
)

// ArticleExtractor scrapes arbitrary pages: metadata from meta tags, body
// converted to markdown. It is the fallback for every unrecognized host.
type ArticleExtractor struct {
	logger    arbor.ILogger
	client    *http.Client
	breakers  *resilience.BreakerRegistry
	converter *htmltomarkdown.Converter
}

// NewArticleExtractor creates the scraping extractor.
func NewArticleExtractor(logger arbor.ILogger, config *common.ExtractorConfig, breakers *resilience.BreakerRegistry) *ArticleExtractor {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	converter := htmltomarkdown.NewConverter("", true, nil)
	return &ArticleExtractor{
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		breakers:  breakers,
		converter: converter,
	}
}

func (a *ArticleExtractor) ContentType() string { return models.ContentTypeArticle }
func (a *ArticleExtractor) RequiresAPIKey() bool { return false }

// CanHandle always claims the URL; the article extractor is the catch-all.
func (a *ArticleExtractor) CanHandle(rawURL string) bool { return true }

// Extract fetches the page under retry and a breaker, then scrapes metadata
// and body content.
func (a *ArticleExtractor) Extract(ctx context.Context, rawURL string) (*models.ExtractionResult, error) {
	started := time.Now()

	body, err := a.fetch(ctx, rawURL)
	if err != nil {
		return FallbackResult(models.ContentTypeArticle, extractionErrorFrom(err)), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return FallbackResult(models.ContentTypeArticle, &models.ExtractionError{
			Code:        string(common.ErrParsingError),
			Message:     "failed to parse page HTML",
			Recoverable: false,
			Cause:       err,
		}), nil
	}

	data := a.scrape(doc, rawURL)

	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeArticle,
		Data:        data,
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodScraping,
			Confidence:       0.7,
			Timestamp:        time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		},
	}, nil
}

func (a *ArticleExtractor) fetch(ctx context.Context, rawURL string) (string, error) {
	result, err := a.breakers.Execute("extract:article", func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.StandardRetry(), func(ctx context.Context) (string, error) {
			return a.fetchOnce(ctx, rawURL)
		})
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (a *ArticleExtractor) fetchOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", articleUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", httpErrorFrom(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

func (a *ArticleExtractor) scrape(doc *goquery.Document, rawURL string) map[string]interface{} {
	data := map[string]interface{}{}

	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			title = parsed.Hostname()
		}
	}
	data["title"] = title

	if description := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	); description != "" {
		data["description"] = description
	}
	if image := metaContent(doc, `meta[property="og:image"]`); image != "" {
		data["image"] = image
	}
	if siteName := metaContent(doc, `meta[property="og:site_name"]`); siteName != "" {
		data["siteName"] = siteName
	}
	if author := firstNonEmpty(
		metaContent(doc, `meta[name="author"]`),
		metaContent(doc, `meta[property="article:author"]`),
	); author != "" {
		data["author"] = author
	}

	// Prefer semantic containers for the body; strip chrome first.
	doc.Find("script, style, nav, header, footer, aside, iframe").Remove()
	for _, selector := range []string{"article", "main", `div[role="main"]`, "body"} {
		selection := doc.Find(selector).First()
		if selection.Length() == 0 {
			continue
		}
		html, err := selection.Html()
		if err != nil {
			continue
		}
		markdown, err := a.converter.ConvertString(html)
		if err != nil {
			a.logger.Debug().Err(err).Str("url", rawURL).Msg("Markdown conversion failed")
			continue
		}
		markdown = strings.TrimSpace(markdown)
		if len(markdown) > 50 {
			data["content"] = markdown
			break
		}
	}
	return data
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
