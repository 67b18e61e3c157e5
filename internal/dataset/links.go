package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/patconext-data/internal/common/logger"
)

type LinkKind string

const (
	LinkStandard LinkKind = "standard"
	LinkSpecial  LinkKind = "special"
)

// ScheduleLink is one timetable PDF published on the schedules page.
type ScheduleLink struct {
	URL      string   `json:"url"`
	Filename string   `json:"filename"`
	Name     string   `json:"name"`
	Kind     LinkKind `json:"type"`
}

// LinkScraper reads the PATCO schedules page for timetable PDFs.
type LinkScraper struct {
	client *http.Client
	logger logger.Logger
}

func NewLinkScraper(client *http.Client, logger logger.Logger) *LinkScraper {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &LinkScraper{client: client, logger: logger}
}

func (s *LinkScraper) Scrape(ctx context.Context, pageURL string) ([]ScheduleLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching schedules page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	links, err := ParseLinks(resp.Body, base)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Scraped schedules page", "url", pageURL, "links", len(links))
	return links, nil
}

// ParseLinks extracts PDF links from the sections headed "Timetable" and
// "Special Schedule". Relative links resolve against base.
func ParseLinks(r io.Reader, base *url.URL) ([]ScheduleLink, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing schedules page: %w", err)
	}

	var links []ScheduleLink
	seen := make(map[string]bool)

	doc.Find("h2").Each(func(_ int, heading *goquery.Selection) {
		text := strings.TrimSpace(heading.Text())

		var kind LinkKind
		switch {
		case strings.Contains(text, "Timetable"):
			kind = LinkStandard
		case strings.Contains(text, "Special Schedule"):
			kind = LinkSpecial
		default:
			return
		}

		container := heading.Closest("td")
		if container.Length() == 0 {
			container = heading.Parent()
		}

		container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := a.AttrOr("href", "")
			if !strings.Contains(strings.ToLower(href), ".pdf") {
				return
			}

			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			full := ref.String()
			if base != nil {
				full = base.ResolveReference(ref).String()
			}
			if seen[full] {
				return
			}
			seen[full] = true

			filename := path.Base(ref.Path)
			name := strings.TrimSpace(a.Text())
			if name == "" {
				name = filename
			}

			links = append(links, ScheduleLink{
				URL:      full,
				Filename: filename,
				Name:     name,
				Kind:     kind,
			})
		})
	})

	return links, nil
}

// FirstOfKind returns the first link of kind, if any.
func FirstOfKind(links []ScheduleLink, kind LinkKind) (ScheduleLink, bool) {
	for _, l := range links {
		if l.Kind == kind {
			return l, true
		}
	}
	return ScheduleLink{}, false
}
