package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmwagner/plausch/internal/config"
)

// PageTitleService fetches a web page and extracts its <title>, used
// when the first message of a session is a bare link.
type PageTitleService struct {
	httpClient *http.Client
}

func NewPageTitleService() *PageTitleService {
	return &PageTitleService{
		httpClient: &http.Client{Timeout: config.PageFetchTimeout},
	}
}

func (s *PageTitleService) PageTitle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "", fmt.Errorf("page has no title")
	}
	return title, nil
}
