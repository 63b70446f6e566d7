// Package source provides the downloaders records are imported from.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultIDField is the record key used as external identifier.
const DefaultIDField = "id"

// DefaultPattern matches every record file below the root.
const DefaultPattern = "**/*.{json,jsonl,ndjson,yaml,yml}"

// FileDownloader reads records from the files below Root that match Pattern.
// It is a service.BulkDownloader.
type FileDownloader struct {
	Root    string
	Pattern string
	// IDField names the key that holds the record's external identifier. The key
	// is removed from the record fields.
	IDField string
}

func NewFileDownloader(root, pattern string) *FileDownloader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &FileDownloader{Root: root, Pattern: pattern, IDField: DefaultIDField}
}

func (d *FileDownloader) Name() string {
	return fmt.Sprintf("files %s", filepath.Join(d.Root, d.Pattern))
}

// Records reads every matching file in lexical order. The category is not
// used to select files.
func (d *FileDownloader) Records(ctx context.Context, category string) ([]service.Record, error) {
	if !doublestar.ValidatePattern(d.Pattern) {
		return nil, errors.Errorf("invalid file pattern %q", d.Pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(d.Root), d.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", d.Pattern)
	}
	sort.Strings(matches)

	var records []service.Record
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := ReadFile(filepath.Join(d.Root, m), d.IDField)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// Match reports whether path, relative to Root, is a file the downloader reads.
func (d *FileDownloader) Match(path string) bool {
	rel, err := filepath.Rel(d.Root, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.PathMatch(d.Pattern, rel)
	return err == nil && ok
}

// SingleFile is a service.BulkDownloader over one record file.
type SingleFile struct {
	Path    string
	IDField string
}

func (f SingleFile) Name() string { return "file " + f.Path }

func (f SingleFile) Records(ctx context.Context, category string) ([]service.Record, error) {
	return ReadFile(f.Path, f.IDField)
}

// ReadFile decodes the records of one file. The format follows the extension:
// .json holds an array of objects or a single object, .jsonl and .ndjson one
// object per line, .yaml and .yml a sequence of mappings.
func ReadFile(path, idField string) ([]service.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open record file")
	}
	defer f.Close()

	var objs []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		objs, err = decodeJSON(f)
	case ".jsonl", ".ndjson":
		objs, err = decodeJSONLines(f)
	case ".yaml", ".yml":
		objs, err = decodeYAML(f)
	default:
		return nil, errors.Errorf("%s: unsupported record file extension", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	records := make([]service.Record, 0, len(objs))
	for _, obj := range objs {
		records = append(records, toRecord(obj, idField))
	}
	return records, nil
}

func decodeJSON(r io.Reader) ([]map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) > 0 && raw[0] == '{' {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, err
		}
		return []map[string]any{obj}, nil
	}
	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, err
	}
	return objs, nil
}

func decodeJSONLines(r io.Reader) ([]map[string]any, error) {
	var objs []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		objs = append(objs, obj)
	}
	return objs, scanner.Err()
}

func decodeYAML(r io.Reader) ([]map[string]any, error) {
	var objs []map[string]any
	if err := yaml.NewDecoder(r).Decode(&objs); err != nil && err != io.EOF {
		return nil, err
	}
	return objs, nil
}

func toRecord(obj map[string]any, idField string) service.Record {
	rec := service.Record{Fields: make(map[string]any, len(obj))}
	for k, v := range obj {
		if k == idField && idField != "" {
			if v != nil {
				rec.ExternalID = fmt.Sprint(v)
			}
			continue
		}
		rec.Fields[k] = v
	}
	return rec
}
