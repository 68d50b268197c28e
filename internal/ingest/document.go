// Package ingest reads local documents into extraction requests and watches
// directories for new ones.
package ingest

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/nccd"
)

const maxTextBytes = 1 << 20 // 1MB

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
}

// Document is a local file reduced to its manifest entry and any text that
// could be read from it.
type Document struct {
	Info nccd.FileInfo
	Text string
}

// ReadDocument stats path and extracts its text. PDFs are parsed; plain text
// formats are read directly; anything else contributes only its manifest.
func ReadDocument(path string) (Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	doc := Document{
		Info: nccd.FileInfo{
			Name: filepath.Base(path),
			Type: mimeType(ext),
			Size: fi.Size(),
		},
	}

	switch {
	case ext == ".pdf":
		text, err := pdfText(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading pdf %s: %w", path, err)
		}
		doc.Text = text
	case textExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(data) > maxTextBytes {
			data = data[:maxTextBytes]
		}
		doc.Text = string(data)
	}
	doc.Text = strings.TrimSpace(doc.Text)
	return doc, nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func mimeType(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if textExtensions[ext] {
		return "text/plain"
	}
	return "application/octet-stream"
}

// BuildRequest combines documents into one extraction request. Texts are
// joined with blank lines; every document appears in the file manifest.
func BuildRequest(docType nccd.DocumentType, docs []Document) extract.Request {
	req := extract.Request{DocumentType: docType}
	var texts []string
	for _, d := range docs {
		req.Files = append(req.Files, d.Info)
		if d.Text != "" {
			texts = append(texts, d.Text)
		}
	}
	req.Text = strings.Join(texts, "\n\n")
	return req
}

// ExpandGlobs resolves doublestar patterns (e.g. "plans/**/*.pdf") to a
// sorted, de-duplicated list of regular files.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
