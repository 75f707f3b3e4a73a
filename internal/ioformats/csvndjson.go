package ioformats

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"

	"analytics-tag-checker/internal/models"
)

var ErrNoURLs = errors.New("no urls found")

// Line is one NDJSON output record: the detection result for a URL or the
// reason there is none.
type Line struct {
	URL    string               `json:"url"`
	Result *models.PageAnalysis `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ReadURLsFile reads a URL list from disk; the extension picks the format.
func ReadURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadURLs(f, path)
}

// ReadURLs reads a CSV list (header with a "url" column) or NDJSON (one URL or
// {"url": ...} per line). name is only used for its extension; unknown
// extensions try CSV first.
func ReadURLs(r io.Reader, name string) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return readCSV(data)
	case ".ndjson", ".jsonl":
		return readNDJSON(data)
	}
	if urls, err := readCSV(data); err == nil {
		return urls, nil
	}
	return readNDJSON(data)
}

func readCSV(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoURLs
	}
	col := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), "url") {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, errors.New("csv must contain a 'url' header column")
	}
	var out []string
	for _, row := range rows[1:] {
		if col < len(row) {
			if u := strings.TrimSpace(row[col]); u != "" {
				out = append(out, u)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNoURLs
	}
	return out, nil
}

func readNDJSON(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			if u := objectURL(line); u != "" {
				out = append(out, u)
			}
			continue
		}
		out = append(out, strings.Trim(line, `"`))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ndjson: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoURLs
	}
	return out, nil
}

// objectURL pulls "url" out of a JSON object line, repairing hand-edited
// lines (single quotes, trailing commas) when strict decoding fails.
func objectURL(line string) string {
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(line), &obj); err == nil {
		return strings.TrimSpace(obj.URL)
	}
	fixed, err := jsonrepair.JSONRepair(line)
	if err != nil {
		return ""
	}
	if err := json.Unmarshal([]byte(fixed), &obj); err != nil {
		return ""
	}
	return strings.TrimSpace(obj.URL)
}

// Writer encodes NDJSON lines; safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

// WriteNDJSON writes each item as one JSON line.
func WriteNDJSON(w io.Writer, items []Line) error {
	out := NewWriter(w)
	for _, it := range items {
		if err := out.Write(it); err != nil {
			return err
		}
	}
	return nil
}
