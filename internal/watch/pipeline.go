package watch

import (
	"context"

	"github.com/ignatij/goclassify/internal/source"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pipeline imports one record file into a task and classifies whatever became
// pending. Its Handle method is a Handler.
type Pipeline struct {
	Importer   *service.Importer
	Classifier *service.ClassificationService
	Task       string
	Category   string
	IDField    string
	Logger     logrus.FieldLogger
}

func (p *Pipeline) Handle(ctx context.Context, path string) error {
	report, err := p.Importer.Import(ctx, p.Task, p.Category, source.SingleFile{Path: path, IDField: p.IDField})
	if err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	if report.Stored == 0 {
		p.Logger.WithField("path", path).Infof("No new inputs: %s", report)
		return nil
	}
	outcome, err := p.Classifier.Run(ctx, p.Task)
	if err != nil {
		return errors.Wrapf(err, "classify inputs from %s", path)
	}
	p.Logger.WithFields(logrus.Fields{
		"path":   path,
		"run_id": outcome.RunID,
	}).Infof("Classified %d inputs: %s", outcome.Total(), outcome.Summary())
	return nil
}
