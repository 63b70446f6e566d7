package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/schema"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchConcurrency bounds parallel FetchRecord calls during an import.
const DefaultFetchConcurrency = 4

// Record is one downloaded record, before validation.
type Record struct {
	ExternalID string
	Fields     map[string]any
}

// Downloader supplies records for a category. Every Downloader also implements
// BulkDownloader, RecordDownloader or both; bulk is used when available.
type Downloader interface {
	Name() string
}

// BulkDownloader returns every record of a category at once.
type BulkDownloader interface {
	Downloader
	Records(ctx context.Context, category string) ([]Record, error)
}

// RecordDownloader lists record identifiers and fetches each record separately.
type RecordDownloader interface {
	Downloader
	RecordIDs(ctx context.Context, category string) ([]string, error)
	FetchRecord(ctx context.Context, category, id string) (Record, error)
}

// ImportReport summarizes one import.
type ImportReport struct {
	Task       string   `json:"task"`
	Category   string   `json:"category,omitempty"`
	Downloaded int      `json:"downloaded"`
	Stored     int      `json:"stored"`
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"` // failed input schema validation
	Failed     int      `json:"failed"`   // could not be fetched or stored
	Errors     []string `json:"errors,omitempty"`
}

func (r ImportReport) String() string {
	return fmt.Sprintf("downloaded=%d stored=%d duplicates=%d rejected=%d failed=%d",
		r.Downloaded, r.Stored, r.Duplicates, r.Rejected, r.Failed)
}

// Importer validates downloaded records against a task's input schema and
// stores them as pending inputs.
type Importer struct {
	store            storage.Store
	logger           Logger
	fetchConcurrency int
}

func NewImporter(store storage.Store, logger Logger, fetchConcurrency int) *Importer {
	if fetchConcurrency < 1 {
		fetchConcurrency = DefaultFetchConcurrency
	}
	return &Importer{store: store, logger: logger, fetchConcurrency: fetchConcurrency}
}

// Import downloads the records of category from d into the named task. A record
// that fails to download, validate or store is counted and logged; it never
// stops the import.
func (im *Importer) Import(ctx context.Context, taskName, category string, d Downloader) (ImportReport, error) {
	report := ImportReport{Task: taskName, Category: category}
	def, err := im.store.GetTaskDefinition(taskName)
	if errors.Is(err, storage.ErrNotFound) {
		return report, configError(err, "unknown task %q", taskName)
	}
	if err != nil {
		return report, errors.Wrapf(err, "get task definition %q", taskName)
	}

	var mu sync.Mutex
	switch src := d.(type) {
	case BulkDownloader:
		records, err := src.Records(ctx, category)
		if err != nil {
			return report, errors.Wrapf(err, "download %s records from %s", category, src.Name())
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			im.storeRecord(def, category, rec, &report, &mu)
		}
	case RecordDownloader:
		ids, err := src.RecordIDs(ctx, category)
		if err != nil {
			return report, errors.Wrapf(err, "list %s records from %s", category, src.Name())
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(im.fetchConcurrency)
		for _, id := range ids {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				rec, err := src.FetchRecord(gctx, category, id)
				if err != nil {
					im.logger.Warnf("Failed to fetch record %s from %s: %v", id, src.Name(), err)
					mu.Lock()
					report.Failed++
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", id, err))
					mu.Unlock()
					return nil
				}
				if rec.ExternalID == "" {
					rec.ExternalID = id
				}
				im.storeRecord(def, category, rec, &report, &mu)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	default:
		return report, configError(errors.Errorf("%s supports neither bulk nor per-record download", d.Name()), "downloader")
	}

	im.logger.Infof("Imported %s records of task '%s' from %s: %s", category, taskName, d.Name(), report)
	return report, nil
}

// storeRecord validates and stores a single record.
func (im *Importer) storeRecord(def models.TaskDefinition, category string, rec Record, report *ImportReport, mu *sync.Mutex) {
	fields, err := schema.Validate(def.InputSchema, rec.Fields)
	mu.Lock()
	report.Downloaded++
	mu.Unlock()
	if err != nil {
		im.logger.Warnf("Rejected record %q of task '%s': %v", rec.ExternalID, def.Name, err)
		mu.Lock()
		report.Rejected++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rec.ExternalID, err))
		mu.Unlock()
		return
	}

	_, err = im.store.SaveInput(models.ClassificationInput{
		TaskID:     def.ID,
		ExternalID: rec.ExternalID,
		Category:   category,
		Fields:     fields,
		Status:     models.PendingInputStatus,
	})
	mu.Lock()
	defer mu.Unlock()
	switch {
	case err == nil:
		report.Stored++
	case errors.Is(err, storage.ErrDuplicate):
		report.Duplicates++
	default:
		im.logger.Errorf("Failed to store record %q of task '%s': %v", rec.ExternalID, def.Name, err)
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rec.ExternalID, err))
	}
}
