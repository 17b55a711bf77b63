// Package scraper walks the authority's document listing pages, downloads
// the PDFs they link to, and runs each one through extraction, storage
// and topic tagging.
package scraper

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/oklog/ulid/v2"
	"golang.org/x/net/html/charset"

	"github.com/osmkhan/lda-scraper/pkg/lda/extract"
	"github.com/osmkhan/lda-scraper/pkg/lda/internalerr"
	"github.com/osmkhan/lda-scraper/pkg/lda/store"
	"github.com/osmkhan/lda-scraper/pkg/lda/tagger"
)

// tagMinMentions is the mention threshold for associating a topic with a
// document. A single stray occurrence of a keyword is noise.
const tagMinMentions = 2

// Link is one document reference found on a listing page.
type Link struct {
	Text string
	URL  string
}

// Job describes one listing page to scrape.
type Job struct {
	ListURL  string
	Selector string
	DocType  string
	ForceOCR bool
	// Limit caps how many linked documents are processed; 0 means all.
	Limit int
}

// Report summarizes one ScrapeAndProcess run. IDs holds the document ids
// ingested by this run, in listing order.
type Report struct {
	Found     int
	Processed int
	Skipped   int
	Failed    int
	IDs       []int64
}

// Scraper ties the pipeline together: client, extraction engine, store
// and tagger.
type Scraper struct {
	store    store.Store
	tagger   *tagger.Tagger
	engine   *extract.Engine
	client   *Client
	cacheDir string
	logger   *slog.Logger

	// session identifies this run in document metadata.
	session string
}

// New builds a Scraper with a fresh session id.
func New(st store.Store, tg *tagger.Tagger, eng *extract.Engine, client *Client, cacheDir string, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	entropy := ulid.Monotonic(rand.Reader, 0)
	return &Scraper{
		store:    st,
		tagger:   tg,
		engine:   eng,
		client:   client,
		cacheDir: cacheDir,
		logger:   logger,
		session:  ulid.MustNew(ulid.Now(), entropy).String(),
	}
}

// Session returns the run identifier stamped into document metadata.
func (s *Scraper) Session() string { return s.session }

// ScrapeDocumentList fetches a listing page and returns the links under
// the CSS selector, absolutized against the page URL. The selector is the
// filter: every anchor it matches is a candidate document, including
// handler URLs without a .pdf path. Duplicate targets are collapsed to
// their first occurrence.
func (s *Scraper) ScrapeDocumentList(ctx context.Context, listURL, selector string) ([]Link, error) {
	resp, err := s.client.Get(ctx, listURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", listURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", listURL, err)
	}
	base, err := url.Parse(listURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
	}

	matched := doc.Find(selector)
	anchors := matched.Filter("a").AddSelection(matched.Find("a"))

	var links []Link
	seen := make(map[string]bool)
	anchors.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		target := base.ResolveReference(ref).String()
		if seen[target] {
			return
		}
		seen[target] = true
		links = append(links, Link{Text: strings.TrimSpace(a.Text()), URL: target})
	})

	s.logger.Info("scraped document list", "url", listURL, "links", len(links))
	return links, nil
}

// ScrapeAndProcess runs a full job: list, download, extract, store, tag.
// Failures on individual documents are logged and counted, not fatal.
func (s *Scraper) ScrapeAndProcess(ctx context.Context, job Job) (Report, error) {
	links, err := s.ScrapeDocumentList(ctx, job.ListURL, job.Selector)
	if err != nil {
		return Report{}, err
	}
	report := Report{Found: len(links)}

	if job.Limit > 0 && len(links) > job.Limit {
		s.logger.Info("limiting run", "found", len(links), "limit", job.Limit)
		links = links[:job.Limit]
	}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch id, err := s.ProcessDocument(ctx, link, job); {
		case errors.Is(err, internalerr.ErrDuplicate):
			report.Skipped++
		case err != nil:
			s.logger.Error("document failed", "url", link.URL, "error", err)
			report.Failed++
		default:
			report.Processed++
			report.IDs = append(report.IDs, id)
		}
	}

	s.logger.Info("job done", "url", job.ListURL,
		"found", report.Found, "processed", report.Processed,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// ProcessDocument downloads and ingests a single linked document,
// returning its id. A URL already present in the store returns
// internalerr.ErrDuplicate without touching the network.
func (s *Scraper) ProcessDocument(ctx context.Context, link Link, job Job) (int64, error) {
	if _, ok, err := s.store.GetDocumentByURL(ctx, link.URL); err != nil {
		return 0, err
	} else if ok {
		s.logger.Debug("already ingested", "url", link.URL)
		return 0, fmt.Errorf("%w: %s", internalerr.ErrDuplicate, link.URL)
	}

	path, err := s.client.Download(ctx, link.URL, s.cacheDir)
	if err != nil {
		return 0, err
	}

	pages, meta, err := s.engine.Process(ctx, path, extract.Options{ForceOCR: job.ForceOCR})
	if err != nil {
		return 0, err
	}
	chars := extract.TotalChars(pages)
	if chars == 0 {
		return 0, fmt.Errorf("%w: %s", internalerr.ErrNoText, link.URL)
	}

	docType := job.DocType
	if docType == "" {
		docType = store.TypeOther
	}
	doc := store.Document{
		Type:             docType,
		Title:            documentTitle(link, meta),
		URL:              link.URL,
		FilePath:         path,
		DatePublished:    parsePDFDate(meta.CreationDate),
		DateScraped:      time.Now().UTC(),
		PageCount:        meta.PageCount,
		FileSize:         meta.FileSize,
		IsScanned:        meta.IsScanned,
		ExtractionMethod: meta.Method,
		SourcePage:       job.ListURL,
		Metadata:         s.sessionMetadata(meta),
	}
	id, err := s.store.InsertDocument(ctx, doc)
	if err != nil {
		return 0, err
	}

	for _, page := range sortedPages(pages) {
		c := store.Content{
			DocumentID: id,
			PageNumber: &page,
			Text:       pages[page],
			Language:   "eng",
		}
		if meta.Method == extract.MethodOCR {
			conf := meta.OCRConfidence
			c.OCRConfidence = &conf
		}
		if _, err := s.store.InsertContent(ctx, c); err != nil {
			return 0, err
		}
	}

	if err := s.insertDetail(ctx, id, docType, doc); err != nil {
		return 0, err
	}
	if err := s.tagDocument(ctx, id, pages, chars); err != nil {
		return 0, err
	}

	s.logger.Info("ingested document", "id", id, "url", link.URL,
		"method", meta.Method, "pages", meta.PageCount)
	return id, nil
}

func (s *Scraper) tagDocument(ctx context.Context, docID int64, pages map[int]string, chars int) error {
	details := s.tagger.TagDocument(pages, tagMinMentions)
	for category, d := range details {
		tagID, err := s.store.GetOrCreateTag(ctx, category, "advocacy", "Auto-tagged for "+category)
		if err != nil {
			return err
		}
		if err := s.store.TagDocument(ctx, docID, tagID, tagConfidence(d.TotalMentions, chars)); err != nil {
			return err
		}
		s.logger.Debug("tagged", "document", docID, "topic", category, "mentions", d.TotalMentions)
	}
	return nil
}

// insertDetail seeds the type-specific row for a freshly ingested
// document. Field-level enrichment happens later, by hand or by a
// follow-up pass over the extracted text.
func (s *Scraper) insertDetail(ctx context.Context, id int64, docType string, doc store.Document) error {
	switch docType {
	case store.TypeMeetingMinutes:
		return s.store.InsertMeetingMinutes(ctx, store.MeetingMinutes{
			DocumentID:  id,
			MeetingDate: doc.DatePublished,
		})
	case store.TypeRegulation:
		return s.store.InsertRegulation(ctx, store.Regulation{
			DocumentID:    id,
			EffectiveDate: doc.DatePublished,
		})
	case store.TypeHousingScheme:
		return s.store.InsertHousingScheme(ctx, store.HousingScheme{
			DocumentID: id,
			SchemeName: doc.Title,
		})
	case store.TypeTender:
		return s.store.InsertTender(ctx, store.Tender{
			DocumentID: id,
			Title:      doc.Title,
			IssueDate:  doc.DatePublished,
		})
	}
	return nil
}

func (s *Scraper) sessionMetadata(meta extract.Metadata) string {
	blob, _ := json.Marshal(map[string]string{
		"session_id": s.session,
		"creator":    meta.Creator,
		"producer":   meta.Producer,
	})
	return string(blob)
}

// tagConfidence maps mention density to [0, 1]: mentions per thousand
// characters, capped at 1.
func tagConfidence(mentions, chars int) float64 {
	if chars == 0 {
		return 0
	}
	density := float64(mentions) / (float64(chars) / 1000.0)
	if density > 1 {
		return 1
	}
	return density
}

func documentTitle(link Link, meta extract.Metadata) string {
	if link.Text != "" {
		return link.Text
	}
	if meta.Title != "" {
		return meta.Title
	}
	return FileName(link.URL)
}

// parsePDFDate reads the date portion of a PDF info-dictionary timestamp
// such as "D:20210203120000+05'00'". Returns nil when it cannot.
func parsePDFDate(v string) *time.Time {
	v = strings.TrimPrefix(v, "D:")
	if len(v) < 8 {
		return nil
	}
	t, err := time.Parse("20060102", v[:8])
	if err != nil {
		return nil
	}
	return &t
}

func sortedPages(pages map[int]string) []int {
	out := make([]int, 0, len(pages))
	for page := range pages {
		out = append(out, page)
	}
	sort.Ints(out)
	return out
}
