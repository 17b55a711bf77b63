package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/osmkhan/lda-scraper/pkg/lda/store"
)

// dateLayout is the storage format for pure dates (publication, meeting,
// tender dates). Timestamps use RFC 3339.
const dateLayout = "2006-01-02"

// sqliteStore implements store.Store on a single-file SQLite database with
// an FTS5 mirror kept in sync by triggers.
type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path with WAL mode and
// foreign keys enabled, and initializes the schema. Initialization is
// idempotent.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Cascade deletes depend on this
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables, the FTS5 index and its sync triggers
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_type TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT UNIQUE NOT NULL,
	file_path TEXT,
	date_published TEXT,
	date_scraped TEXT NOT NULL,
	page_count INTEGER,
	file_size INTEGER,
	is_scanned INTEGER NOT NULL DEFAULT 0,
	extraction_method TEXT,
	source_page TEXT,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS document_content (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL,
	page_number INTEGER,
	content TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT 'eng',
	ocr_confidence REAL,
	UNIQUE(document_id, page_number),
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	category TEXT NOT NULL,
	description TEXT
);

CREATE TABLE IF NOT EXISTS document_tags (
	document_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	PRIMARY KEY (document_id, tag_id),
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS meeting_minutes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE,
	meeting_date TEXT,
	meeting_type TEXT,
	attendees TEXT,
	agenda_items TEXT,
	decisions TEXT,
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS regulations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE,
	regulation_type TEXT,
	effective_date TEXT,
	supersedes INTEGER,
	status TEXT NOT NULL DEFAULT 'active',
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
	FOREIGN KEY (supersedes) REFERENCES regulations(id)
);

CREATE TABLE IF NOT EXISTS housing_schemes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE,
	scheme_name TEXT NOT NULL,
	location TEXT,
	developer TEXT,
	approval_status TEXT,
	approval_date TEXT,
	total_area REAL,
	plot_count INTEGER,
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tenders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL UNIQUE,
	tender_number TEXT,
	tender_title TEXT,
	tender_type TEXT,
	issue_date TEXT,
	closing_date TEXT,
	opening_date TEXT,
	estimated_cost REAL,
	status TEXT,
	FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title,
	content,
	document_type,
	tags,
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON document_content
BEGIN
	INSERT INTO documents_fts(rowid, title, content, document_type, tags)
	SELECT
		NEW.id,
		d.title,
		NEW.content,
		d.document_type,
		COALESCE(
			(SELECT GROUP_CONCAT(t.name, ' ')
			 FROM document_tags dt
			 JOIN tags t ON dt.tag_id = t.id
			 WHERE dt.document_id = d.id),
			''
		)
	FROM documents d
	WHERE d.id = NEW.document_id;
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON document_content
BEGIN
	UPDATE documents_fts
	SET content = NEW.content
	WHERE rowid = NEW.id;
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON document_content
BEGIN
	DELETE FROM documents_fts WHERE rowid = OLD.id;
END;

CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(document_type);
CREATE INDEX IF NOT EXISTS idx_documents_date ON documents(date_published);
CREATE INDEX IF NOT EXISTS idx_document_content_doc_id ON document_content(document_id);
CREATE INDEX IF NOT EXISTS idx_document_tags_doc_id ON document_tags(document_id);
CREATE INDEX IF NOT EXISTS idx_document_tags_tag_id ON document_tags(tag_id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// InsertDocument inserts d, or returns the existing id when d.URL is already
// present. The UNIQUE constraint on url is the source of truth: a losing
// racer falls through to the lookup instead of erroring.
func (s *sqliteStore) InsertDocument(ctx context.Context, d store.Document) (int64, error) {
	scraped := d.DateScraped
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO documents
	(document_type, title, url, file_path, date_published, date_scraped,
	 page_count, file_size, is_scanned, extraction_method, source_page, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING;
`,
		d.Type,
		d.Title,
		d.URL,
		nullString(d.FilePath),
		nullDate(d.DatePublished),
		scraped.Format(time.RFC3339),
		d.PageCount,
		d.FileSize,
		boolToInt(d.IsScanned),
		nullString(d.ExtractionMethod),
		nullString(d.SourcePage),
		nullString(d.Metadata),
	)
	if err != nil {
		return 0, err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return res.LastInsertId()
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE url = ?`, d.URL).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocumentByURL retrieves a document by its unique URL
func (s *sqliteStore) GetDocumentByURL(ctx context.Context, url string) (store.Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, document_type, title, url, file_path, date_published, date_scraped,
	page_count, file_size, is_scanned, extraction_method, source_page, metadata
FROM documents
WHERE url = ?;
`, url)

	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return store.Document{}, false, nil
	}
	if err != nil {
		return store.Document{}, false, err
	}
	return d, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (store.Document, error) {
	var (
		d          store.Document
		filePath   sql.NullString
		published  sql.NullString
		scraped    string
		pageCount  sql.NullInt64
		fileSize   sql.NullInt64
		isScanned  int
		method     sql.NullString
		sourcePage sql.NullString
		metadata   sql.NullString
	)
	err := row.Scan(&d.ID, &d.Type, &d.Title, &d.URL, &filePath, &published, &scraped,
		&pageCount, &fileSize, &isScanned, &method, &sourcePage, &metadata)
	if err != nil {
		return store.Document{}, err
	}

	d.FilePath = filePath.String
	d.DatePublished = parseDate(published)
	if t, perr := time.Parse(time.RFC3339, scraped); perr == nil {
		d.DateScraped = t
	}
	d.PageCount = int(pageCount.Int64)
	d.FileSize = fileSize.Int64
	d.IsScanned = isScanned != 0
	d.ExtractionMethod = method.String
	d.SourcePage = sourcePage.String
	d.Metadata = metadata.String
	return d, nil
}

// InsertContent appends a content row. The FTS insert trigger mirrors the
// row into documents_fts in the same statement, so a search issued right
// after this call sees the new text.
func (s *sqliteStore) InsertContent(ctx context.Context, c store.Content) (int64, error) {
	lang := c.Language
	if lang == "" {
		lang = "eng"
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO document_content (document_id, page_number, content, language, ocr_confidence)
VALUES (?, ?, ?, ?, ?);
`,
		c.DocumentID,
		nullInt(c.PageNumber),
		c.Text,
		lang,
		nullFloat(c.OCRConfidence),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOrCreateTag returns the id of the named tag, creating it on first use
func (s *sqliteStore) GetOrCreateTag(ctx context.Context, name, category, description string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tags (name, category, description) VALUES (?, ?, ?)
ON CONFLICT(name) DO NOTHING;
`, name, category, nullString(description))
	if err != nil {
		return 0, err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return res.LastInsertId()
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// TagDocument associates a tag with a document. Duplicate associations are
// silently ignored.
func (s *sqliteStore) TagDocument(ctx context.Context, documentID, tagID int64, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO document_tags (document_id, tag_id, confidence)
VALUES (?, ?, ?);
`, documentID, tagID, confidence)
	return err
}

// DeleteDocument removes a document. Content rows, tag associations and
// detail rows cascade; the content delete trigger clears the FTS mirror.
func (s *sqliteStore) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// UpdateDocumentDate backfills date_published, typically from a detail
// record parsed after intake.
func (s *sqliteStore) UpdateDocumentDate(ctx context.Context, id int64, published time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET date_published = ? WHERE id = ?`,
		published.Format(dateLayout), id)
	return err
}

// Search runs an FTS5 MATCH over title, content, document type and tag
// names. Ranking and tie-breaks are whatever FTS5 provides.
func (s *sqliteStore) Search(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
	d.id,
	d.document_type,
	d.title,
	d.url,
	d.date_published,
	snippet(documents_fts, 1, '<mark>', '</mark>', '...', 50) AS excerpt
FROM documents_fts
JOIN document_content dc ON documents_fts.rowid = dc.id
JOIN documents d ON dc.document_id = d.id
WHERE documents_fts MATCH ?
ORDER BY rank
LIMIT ?;
`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []store.SearchResult
	for rows.Next() {
		var (
			r         store.SearchResult
			published sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Title, &r.URL, &published, &r.Snippet); err != nil {
			return nil, err
		}
		r.DatePublished = parseDate(published)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Stats returns aggregate counts over documents and tags
func (s *sqliteStore) Stats(ctx context.Context) (store.Stats, error) {
	stats := store.Stats{ByType: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments); err != nil {
		return store.Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT document_type, COUNT(*) FROM documents GROUP BY document_type;
`)
	if err != nil {
		return store.Stats{}, err
	}
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return store.Stats{}, err
		}
		stats.ByType[typ] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return store.Stats{}, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&stats.TotalTags); err != nil {
		return store.Stats{}, err
	}

	rows, err = s.db.QueryContext(ctx, `
SELECT t.name, t.category, COUNT(*) AS n
FROM document_tags dt
JOIN tags t ON dt.tag_id = t.id
GROUP BY t.id
ORDER BY n DESC
LIMIT 10;
`)
	if err != nil {
		return store.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc store.TagCount
		if err := rows.Scan(&tc.Name, &tc.Category, &tc.Count); err != nil {
			return store.Stats{}, err
		}
		stats.TopTags = append(stats.TopTags, tc)
	}
	return stats, rows.Err()
}

// InsertMeetingMinutes upserts the 1:1 detail record for a meeting minutes
// document.
func (s *sqliteStore) InsertMeetingMinutes(ctx context.Context, m store.MeetingMinutes) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO meeting_minutes (document_id, meeting_date, meeting_type, attendees, agenda_items, decisions)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	meeting_date=excluded.meeting_date,
	meeting_type=excluded.meeting_type,
	attendees=excluded.attendees,
	agenda_items=excluded.agenda_items,
	decisions=excluded.decisions;
`, m.DocumentID, nullDate(m.MeetingDate), nullString(m.MeetingType),
		nullString(m.Attendees), nullString(m.AgendaItems), nullString(m.Decisions))
	return err
}

// InsertRegulation upserts the 1:1 detail record for a regulation document.
func (s *sqliteStore) InsertRegulation(ctx context.Context, r store.Regulation) error {
	status := r.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO regulations (document_id, regulation_type, effective_date, supersedes, status)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	regulation_type=excluded.regulation_type,
	effective_date=excluded.effective_date,
	supersedes=excluded.supersedes,
	status=excluded.status;
`, r.DocumentID, nullString(r.RegulationType), nullDate(r.EffectiveDate),
		nullInt64(r.Supersedes), status)
	return err
}

// InsertHousingScheme upserts the 1:1 detail record for a housing scheme
// document.
func (s *sqliteStore) InsertHousingScheme(ctx context.Context, h store.HousingScheme) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO housing_schemes
	(document_id, scheme_name, location, developer, approval_status, approval_date, total_area, plot_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	scheme_name=excluded.scheme_name,
	location=excluded.location,
	developer=excluded.developer,
	approval_status=excluded.approval_status,
	approval_date=excluded.approval_date,
	total_area=excluded.total_area,
	plot_count=excluded.plot_count;
`, h.DocumentID, h.SchemeName, nullString(h.Location), nullString(h.Developer),
		nullString(h.ApprovalStatus), nullDate(h.ApprovalDate), h.TotalArea, h.PlotCount)
	return err
}

// InsertTender upserts the 1:1 detail record for a tender document.
func (s *sqliteStore) InsertTender(ctx context.Context, t store.Tender) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tenders
	(document_id, tender_number, tender_title, tender_type, issue_date, closing_date, opening_date, estimated_cost, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	tender_number=excluded.tender_number,
	tender_title=excluded.tender_title,
	tender_type=excluded.tender_type,
	issue_date=excluded.issue_date,
	closing_date=excluded.closing_date,
	opening_date=excluded.opening_date,
	estimated_cost=excluded.estimated_cost,
	status=excluded.status;
`, t.DocumentID, nullString(t.Number), nullString(t.Title), nullString(t.Type),
		nullDate(t.IssueDate), nullDate(t.ClosingDate), nullDate(t.OpeningDate),
		t.EstimatedCost, nullString(t.Status))
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s.String); err == nil {
			return &t
		}
	}
	return nil
}
