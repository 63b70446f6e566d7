package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignatij/goclassify/pkg/prompt"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/pkg/errors"
)

// HTTPConfig describes a JSON records API.
type HTTPConfig struct {
	// ListURL returns either an array of records (bulk) or, when RecordURL is
	// set, an array of record identifiers. It may reference {category}.
	ListURL string
	// RecordURL returns one record. It may reference {category} and {id}.
	RecordURL string
	IDField   string
	Headers   map[string]string
	Timeout   time.Duration
}

// NewHTTPDownloader returns a bulk downloader when cfg has no RecordURL and an
// enumerate-then-fetch downloader otherwise.
func NewHTTPDownloader(cfg HTTPConfig) (service.Downloader, error) {
	if cfg.ListURL == "" {
		return nil, errors.New("list URL is required")
	}
	if cfg.IDField == "" {
		cfg.IDField = DefaultIDField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := httpSource{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RecordURL == "" {
		return &httpBulk{base}, nil
	}
	return &httpRecords{base}, nil
}

type httpSource struct {
	cfg    HTTPConfig
	client *http.Client
}

func (s httpSource) Name() string {
	if u, err := url.Parse(s.cfg.ListURL); err == nil {
		return u.Host
	}
	return s.cfg.ListURL
}

// get decodes the JSON body of a GET on the rendered URL template into out.
func (s httpSource) get(ctx context.Context, tmpl string, values map[string]any, out any) error {
	escaped := make(map[string]any, len(values))
	for k, v := range values {
		escaped[k] = url.PathEscape(fmt.Sprint(v))
	}
	target, err := prompt.Build(tmpl, escaped)
	if err != nil {
		return errors.Wrap(err, "render URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", target)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("GET %s: %s: %s", target, resp.Status, strings.TrimSpace(string(body)))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", target)
	}
	return nil
}

type httpBulk struct{ httpSource }

func (s *httpBulk) Records(ctx context.Context, category string) ([]service.Record, error) {
	var objs []map[string]any
	if err := s.get(ctx, s.cfg.ListURL, map[string]any{"category": category}, &objs); err != nil {
		return nil, err
	}
	records := make([]service.Record, 0, len(objs))
	for _, obj := range objs {
		records = append(records, toRecord(obj, s.cfg.IDField))
	}
	return records, nil
}

type httpRecords struct{ httpSource }

func (s *httpRecords) RecordIDs(ctx context.Context, category string) ([]string, error) {
	var raw []any
	if err := s.get(ctx, s.cfg.ListURL, map[string]any{"category": category}, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case string:
			ids = append(ids, id)
		case json.Number:
			ids = append(ids, id.String())
		default:
			return nil, errors.Errorf("record identifier %v is not a string or number", v)
		}
	}
	return ids, nil
}

func (s *httpRecords) FetchRecord(ctx context.Context, category, id string) (service.Record, error) {
	var obj map[string]any
	if err := s.get(ctx, s.cfg.RecordURL, map[string]any{"category": category, "id": id}, &obj); err != nil {
		return service.Record{}, err
	}
	rec := toRecord(obj, s.cfg.IDField)
	if rec.ExternalID == "" {
		rec.ExternalID = id
	}
	return rec, nil
}
