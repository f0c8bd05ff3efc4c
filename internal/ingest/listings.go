// Package ingest imports job listings from scraper exports (JSON or saved
// HTML pages) and seeds candidate profiles from uploaded resumes.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/silverstar/intake/internal/storage"
)

// JobSink is the slice of the storage layer the importer writes to.
type JobSink interface {
	SaveJob(j storage.Job) error
	DeactivateSource(source string) error
}

// Importer loads listings into the job store.
type Importer struct {
	sink   JobSink
	logger *slog.Logger
}

// NewImporter creates an importer over the given sink.
func NewImporter(sink JobSink) *Importer {
	return &Importer{sink: sink, logger: slog.Default()}
}

// listingRecord is the JSON export format produced by the scrapers.
type listingRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	JobType     string `json:"job_type"`
	URL         string `json:"url"`
}

// ImportFile imports one export file, dispatching on extension (.json, .html,
// .htm). Previously imported listings from the same source are deactivated
// first so stale postings stop surfacing in matches. Returns the number of
// listings saved.
func (im *Importer) ImportFile(ctx context.Context, path, source string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var jobs []storage.Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		jobs, err = parseListingsJSON(f, source)
	case ".html", ".htm":
		jobs, err = parseListingsHTML(f, source)
	default:
		return 0, fmt.Errorf("unsupported listing format: %s", filepath.Ext(path))
	}
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := im.sink.DeactivateSource(source); err != nil {
		return 0, fmt.Errorf("deactivating source %s: %w", source, err)
	}

	saved := 0
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if err := im.sink.SaveJob(j); err != nil {
			im.logger.Warn("skipping listing", "id", j.ID, "error", err)
			continue
		}
		saved++
	}
	im.logger.Info("imported listings", "source", source, "count", saved)
	return saved, nil
}

// importConcurrency bounds parallel file parsing during a directory import.
const importConcurrency = 4

// ImportDir imports every .json/.html file directly under dir, using the file
// basename (without extension) as the source name. Files are processed
// concurrently; the first error cancels the rest.
func (im *Importer) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}

	var total atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(importConcurrency)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".html" && ext != ".htm" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		source := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		g.Go(func() error {
			n, err := im.ImportFile(ctx, path, source)
			total.Add(int64(n))
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return int(total.Load()), err
	}
	return int(total.Load()), nil
}

func parseListingsJSON(r io.Reader, source string) ([]storage.Job, error) {
	var records []listingRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}

	jobs := make([]storage.Job, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Title) == "" {
			continue
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		jobs = append(jobs, storage.Job{
			ID:          id,
			Title:       strings.TrimSpace(rec.Title),
			Company:     strings.TrimSpace(rec.Company),
			Location:    strings.TrimSpace(rec.Location),
			Description: strings.TrimSpace(rec.Description),
			JobType:     strings.TrimSpace(rec.JobType),
			URL:         strings.TrimSpace(rec.URL),
			Source:      source,
			Active:      true,
		})
	}
	return jobs, nil
}

// parseListingsHTML walks a saved results page and pulls out listing rows.
// It targets the classic classifieds markup: rows carry a "result-row" class
// with a "result-title" link and an optional "result-hood" span.
func parseListingsHTML(r io.Reader, source string) ([]storage.Job, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var jobs []storage.Job
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "result-row") {
			if j, ok := listingFromRow(n, source); ok {
				jobs = append(jobs, j)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return jobs, nil
}

func listingFromRow(row *html.Node, source string) (storage.Job, bool) {
	j := storage.Job{
		ID:     attr(row, "data-pid"),
		Source: source,
		Active: true,
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-title"):
				j.Title = strings.TrimSpace(nodeText(n))
				j.URL = attr(n, "href")
			case n.Data == "span" && hasClass(n, "result-hood"):
				j.Location = strings.Trim(strings.TrimSpace(nodeText(n)), "()")
			case n.Data == "span" && hasClass(n, "result-company"):
				j.Company = strings.TrimSpace(nodeText(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(row)

	if j.Title == "" {
		return storage.Job{}, false
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return j, true
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
