package service

import (
	"strings"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/prompt"
	"github.com/ignatij/goclassify/pkg/schema"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/pkg/errors"
)

// MaxTaskNameLength bounds task definition names.
const MaxTaskNameLength = 100

// DefinitionService creates and looks up task definitions.
type DefinitionService struct {
	store  storage.Store
	logger Logger
}

func NewDefinitionService(store storage.Store, logger Logger) *DefinitionService {
	return &DefinitionService{store: store, logger: logger}
}

// Create validates and stores a new task definition and returns its ID.
func (s *DefinitionService) Create(def models.TaskDefinition) (id int64, err error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return 0, errors.New("task name cannot be empty")
	}
	if len(def.Name) > MaxTaskNameLength {
		return 0, errors.Errorf("task name too long (max %d characters)", MaxTaskNameLength)
	}
	if err := schema.CheckDefinition(def.InputSchema); err != nil {
		return 0, errors.Wrap(err, "input fields")
	}
	if len(def.ResponseSchema) == 0 {
		return 0, errors.New("response fields: at least one field is required")
	}
	if err := schema.CheckDefinition(def.ResponseSchema); err != nil {
		return 0, errors.Wrap(err, "response fields")
	}
	unused, err := prompt.CheckTemplate(def.PromptTemplate, def.InputSchema)
	if err != nil {
		return 0, errors.Wrap(err, "prompt template")
	}
	if len(unused) > 0 {
		s.logger.Warnf("Task '%s': required input fields %v are not used by the prompt template", def.Name, unused)
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if _, err = txStore.GetTaskDefinition(def.Name); err == nil {
		err = errors.Wrapf(storage.ErrDuplicate, "task %q already exists", def.Name)
		return 0, err
	} else if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	def.CreatedAt = time.Now().UTC()
	id, err = txStore.SaveTaskDefinition(def)
	if err != nil {
		return 0, err
	}
	s.logger.Infof("Created task '%s' with ID %d", def.Name, id)
	return id, nil
}

// Get returns the named task definition.
func (s *DefinitionService) Get(name string) (models.TaskDefinition, error) {
	def, err := s.store.GetTaskDefinition(name)
	if err != nil {
		return models.TaskDefinition{}, errors.Wrapf(err, "get task definition %q", name)
	}
	return def, nil
}

func (s *DefinitionService) List() ([]models.TaskDefinition, error) {
	return s.store.ListTaskDefinitions()
}
