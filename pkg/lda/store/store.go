package store

import (
	"context"
	"time"
)

// Document types recognized by the scraper. The store does not enforce the
// set; unknown types land in search and stats under their literal value.
const (
	TypeRegulation     = "regulation"
	TypeMeetingMinutes = "meeting_minutes"
	TypeHousingScheme  = "housing_scheme"
	TypeTender         = "tender"
	TypeOther          = "other"
)

// Extraction methods recorded on a document.
const (
	MethodDirect = "direct"
	MethodOCR    = "ocr"
)

// Document is the root entity. URL is globally unique; inserting the same
// URL twice returns the existing id.
type Document struct {
	ID               int64
	Type             string
	Title            string
	URL              string
	FilePath         string
	DatePublished    *time.Time
	DateScraped      time.Time
	PageCount        int
	FileSize         int64
	IsScanned        bool
	ExtractionMethod string
	SourcePage       string
	Metadata         string // free-form blob, typically JSON
}

// Content is one extracted page (or whole-document text when PageNumber is
// nil). OCRConfidence is nil for directly extracted text.
type Content struct {
	ID            int64
	DocumentID    int64
	PageNumber    *int
	Text          string
	Language      string // defaults to "eng" when empty
	OCRConfidence *float64
}

// Tag is an advocacy topic label, created lazily on first use.
type Tag struct {
	ID          int64
	Name        string
	Category    string
	Description string
}

// MeetingMinutes holds the type-specific fields for meeting minute documents.
type MeetingMinutes struct {
	DocumentID  int64
	MeetingDate *time.Time
	MeetingType string
	Attendees   string
	AgendaItems string
	Decisions   string
}

// Regulation holds the type-specific fields for regulation documents.
// Supersedes references the regulation row replaced by this one.
type Regulation struct {
	DocumentID     int64
	RegulationType string
	EffectiveDate  *time.Time
	Supersedes     *int64
	Status         string // defaults to "active" when empty
}

// HousingScheme holds the type-specific fields for housing scheme approvals.
type HousingScheme struct {
	DocumentID     int64
	SchemeName     string
	Location       string
	Developer      string
	ApprovalStatus string
	ApprovalDate   *time.Time
	TotalArea      float64
	PlotCount      int
}

// Tender holds the type-specific fields for tender notices.
type Tender struct {
	DocumentID    int64
	Number        string
	Title         string
	Type          string
	IssueDate     *time.Time
	ClosingDate   *time.Time
	OpeningDate   *time.Time
	EstimatedCost float64
	Status        string
}

// SearchResult is one relevance-ranked full-text match.
type SearchResult struct {
	ID            int64
	Type          string
	Title         string
	URL           string
	DatePublished *time.Time
	Snippet       string
}

// TagCount pairs a tag with the number of documents carrying it.
type TagCount struct {
	Name     string
	Category string
	Count    int
}

// Stats is an aggregate read over the whole database.
type Stats struct {
	TotalDocuments int
	ByType         map[string]int
	TotalTags      int
	TopTags        []TagCount
}

// Store is the persistence contract for documents, content, tags and the
// synchronized full-text index. Implementations keep the index in lock-step
// with content mutations; callers never touch it directly.
type Store interface {
	// InsertDocument inserts d or, when d.URL already exists, returns the
	// existing id without modifying the stored row.
	InsertDocument(ctx context.Context, d Document) (int64, error)

	// GetDocumentByURL reports whether a document with the URL exists.
	GetDocumentByURL(ctx context.Context, url string) (Document, bool, error)

	// InsertContent appends a content row and mirrors it into the search
	// index within the same unit of work.
	InsertContent(ctx context.Context, c Content) (int64, error)

	// GetOrCreateTag returns the id of the named tag, creating it if needed.
	GetOrCreateTag(ctx context.Context, name, category, description string) (int64, error)

	// TagDocument associates a tag with a document. Re-associating an
	// existing pair is a no-op.
	TagDocument(ctx context.Context, documentID, tagID int64, confidence float64) error

	// DeleteDocument removes a document and everything owned by it:
	// content rows, tag associations, detail rows and index entries.
	DeleteDocument(ctx context.Context, id int64) error

	// UpdateDocumentDate backfills the publication date of a document.
	UpdateDocumentDate(ctx context.Context, id int64, published time.Time) error

	// Search runs a full-text query over title, content, type and tag
	// names, returning matches ordered by the engine's relevance rank.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Stats returns aggregate counts. No side effects.
	Stats(ctx context.Context) (Stats, error)

	InsertMeetingMinutes(ctx context.Context, m MeetingMinutes) error
	InsertRegulation(ctx context.Context, r Regulation) error
	InsertHousingScheme(ctx context.Context, h HousingScheme) error
	InsertTender(ctx context.Context, t Tender) error

	Close() error
}
