package jobs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/phrazzld/taskline/internal/redact"
	"github.com/phrazzld/taskline/internal/task"
)

// Digest summarizes a fetched document
type Digest struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Bytes       int    `json:"bytes"`
	SHA256      string `json:"sha256"`

	// Title and Links are only filled in for HTML documents
	Title string `json:"title,omitempty"`
	Links int    `json:"links,omitempty"`

	// Error is set instead of the fields above when the URL failed inside a
	// job that tolerates partial failure
	Error string `json:"error,omitempty"`
}

// Failed returns the digest recorded for a URL that could not be summarized
func Failed(rawURL string, err error) Digest {
	return Digest{
		URL:   redact.URL(rawURL),
		Error: redact.Error(err),
	}
}

// Summarize computes the digest of r. HTML bodies are parsed to extract the
// document title and the number of links; other bodies are only hashed.
func Summarize(r FetchResult) (Digest, error) {
	sum := sha256.Sum256(r.Body)
	d := Digest{
		URL:         redact.URL(r.URL),
		StatusCode:  r.StatusCode,
		ContentType: r.ContentType,
		Bytes:       len(r.Body),
		SHA256:      hex.EncodeToString(sum[:]),
	}

	if !isHTML(r.ContentType) {
		return d, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return Digest{}, fmt.Errorf("failed to parse HTML from %s: %w", d.URL, err)
	}
	d.Title = strings.TrimSpace(doc.Find("title").First().Text())
	d.Links = doc.Find("a[href]").Length()
	return d, nil
}

// Digester is the task.Mapper form of Summarize
var Digester task.Mapper[FetchResult, Digest] = task.MapperFunc[FetchResult, Digest](Summarize)

// DigestTask fetches rawURL and summarizes the response.
func DigestTask(e *task.Engine, f *Fetcher, rawURL string) *task.Task[Digest] {
	return task.MapWith(f.Task(e, rawURL), Digester)
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
