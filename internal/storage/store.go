package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// SQLStore implements storage.Store on PostgreSQL or SQLite. Queries are written
// with ? placeholders and rebound for the driver.
type SQLStore struct {
	db      DBInterface
	dialect dialect
}

func (s *SQLStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLStore{db: tx, dialect: s.dialect}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// atomically runs fn in a transaction unless the store already is one.
func (s *SQLStore) atomically(fn func(db DBInterface) error) (err error) {
	db, ok := s.db.(*sqlx.DB)
	if !ok {
		return fn(s.db)
	}
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func (s *SQLStore) get(db DBInterface, dest interface{}, query string, args ...interface{}) error {
	return db.Get(dest, db.Rebind(query), args...)
}

func (s *SQLStore) exec(db DBInterface, query string, args ...interface{}) (sql.Result, error) {
	return db.Exec(db.Rebind(query), args...)
}

// fieldRow is one task_fields row.
type fieldRow struct {
	Role        string          `db:"role"`
	Position    int             `db:"position"`
	Name        string          `db:"name"`
	FieldType   string          `db:"field_type"`
	Required    bool            `db:"required"`
	EnumValues  sql.NullString  `db:"enum_values"`
	MinValue    sql.NullFloat64 `db:"min_value"`
	MaxValue    sql.NullFloat64 `db:"max_value"`
	ItemType    string          `db:"item_type"`
	Description string          `db:"description"`
}

const (
	inputRole    = "input"
	responseRole = "response"
)

// SaveTaskDefinition stores a definition and its field declarations and returns its ID.
func (s *SQLStore) SaveTaskDefinition(def models.TaskDefinition) (int64, error) {
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.atomically(func(db DBInterface) error {
		err := db.QueryRowx(db.Rebind("INSERT INTO task_definitions (name, description, prompt_template, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
			def.Name, def.Description, def.PromptTemplate, def.CreatedAt).Scan(&id)
		if err != nil {
			return s.dialect.translate(err)
		}
		for role, fields := range map[string]models.Schema{inputRole: def.InputSchema, responseRole: def.ResponseSchema} {
			for pos, f := range fields {
				if err := s.saveField(db, id, role, pos, f); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "save task definition %q", def.Name)
	}
	return id, nil
}

func (s *SQLStore) saveField(db DBInterface, taskID int64, role string, pos int, f models.Field) error {
	var enum sql.NullString
	if len(f.Enum) > 0 {
		b, err := json.Marshal(f.Enum)
		if err != nil {
			return errors.Wrapf(err, "encode enum of field %q", f.Name)
		}
		enum = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.exec(db, `
		INSERT INTO task_fields (task_id, role, position, name, field_type, required, enum_values, min_value, max_value, item_type, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskID, role, pos, f.Name, string(f.Type), f.Required, enum, nullFloat(f.Min), nullFloat(f.Max), string(f.Items), f.Description)
	return s.dialect.translate(err)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// loadFields fills in the input and response schemas of def.
func (s *SQLStore) loadFields(def *models.TaskDefinition) error {
	var rows []fieldRow
	err := s.db.Select(&rows, s.db.Rebind(`
		SELECT role, position, name, field_type, required, enum_values, min_value, max_value, item_type, description
		FROM task_fields WHERE task_id = ? ORDER BY role, position`), def.ID)
	if err != nil {
		return errors.Wrapf(err, "load fields of task %q", def.Name)
	}
	def.InputSchema, def.ResponseSchema = models.Schema{}, models.Schema{}
	for _, r := range rows {
		f := models.Field{
			Name:        r.Name,
			Type:        models.FieldType(r.FieldType),
			Required:    r.Required,
			Items:       models.FieldType(r.ItemType),
			Description: r.Description,
		}
		if r.EnumValues.Valid {
			if err := json.Unmarshal([]byte(r.EnumValues.String), &f.Enum); err != nil {
				return errors.Wrapf(err, "decode enum of field %q", r.Name)
			}
		}
		if r.MinValue.Valid {
			v := r.MinValue.Float64
			f.Min = &v
		}
		if r.MaxValue.Valid {
			v := r.MaxValue.Float64
			f.Max = &v
		}
		if r.Role == inputRole {
			def.InputSchema = append(def.InputSchema, f)
		} else {
			def.ResponseSchema = append(def.ResponseSchema, f)
		}
	}
	return nil
}

const definitionColumns = "id, name, description, prompt_template, created_at"

// GetTaskDefinition retrieves a definition by name, including its field schemas.
func (s *SQLStore) GetTaskDefinition(name string) (models.TaskDefinition, error) {
	var def models.TaskDefinition
	err := s.get(s.db, &def, "SELECT "+definitionColumns+" FROM task_definitions WHERE name = ?", name)
	if err == sql.ErrNoRows {
		return models.TaskDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TaskDefinition{}, errors.Wrapf(err, "get task definition %q", name)
	}
	if err := s.loadFields(&def); err != nil {
		return models.TaskDefinition{}, err
	}
	return def, nil
}

func (s *SQLStore) ListTaskDefinitions() ([]models.TaskDefinition, error) {
	defs := []models.TaskDefinition{}
	if err := s.db.Select(&defs, "SELECT "+definitionColumns+" FROM task_definitions ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "list task definitions")
	}
	for i := range defs {
		if err := s.loadFields(&defs[i]); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

const inputColumns = "id, task_id, external_id, category, fields, status, attempts, error_kind, error_msg, created_at, updated_at"

// SaveInput stores a new input and returns its ID. Inputs default to pending.
func (s *SQLStore) SaveInput(in models.ClassificationInput) (int64, error) {
	if in.Status == "" {
		in.Status = models.PendingInputStatus
	}
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	var id int64
	err := s.db.QueryRowx(s.db.Rebind(`
		INSERT INTO classification_inputs (task_id, external_id, category, fields, status, attempts, error_kind, error_msg, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		in.TaskID, in.ExternalID, in.Category, in.Fields, in.Status, in.Attempts, in.ErrorKind, in.ErrorMsg, in.CreatedAt, now).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(s.dialect.translate(err), "save input")
	}
	return id, nil
}

func (s *SQLStore) GetInput(id int64) (models.ClassificationInput, error) {
	var in models.ClassificationInput
	err := s.get(s.db, &in, "SELECT "+inputColumns+" FROM classification_inputs WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return models.ClassificationInput{}, storage.ErrNotFound
	}
	if err != nil {
		return models.ClassificationInput{}, errors.Wrapf(err, "get input %d", id)
	}
	return in, nil
}

func (s *SQLStore) ListInputs(taskID int64, status models.InputStatus) ([]models.ClassificationInput, error) {
	inputs := []models.ClassificationInput{}
	query := "SELECT " + inputColumns + " FROM classification_inputs WHERE task_id = ?"
	args := []interface{}{taskID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id"
	if err := s.db.Select(&inputs, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrapf(err, "list inputs of task %d", taskID)
	}
	return inputs, nil
}

func (s *SQLStore) CountInputs(taskID int64) (map[models.InputStatus]int, error) {
	var rows []struct {
		Status models.InputStatus `db:"status"`
		N      int                `db:"n"`
	}
	err := s.db.Select(&rows, s.db.Rebind("SELECT status, COUNT(*) AS n FROM classification_inputs WHERE task_id = ? GROUP BY status"), taskID)
	if err != nil {
		return nil, errors.Wrapf(err, "count inputs of task %d", taskID)
	}
	counts := make(map[models.InputStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// DeleteInput removes an input; its response is removed by the foreign key cascade.
func (s *SQLStore) DeleteInput(id int64) error {
	res, err := s.exec(s.db, "DELETE FROM classification_inputs WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "delete input %d", id)
	}
	return mustAffect(res, storage.ErrNotFound)
}

// transition runs a conditional status update and reports whether it applied.
// An input that does not exist yields storage.ErrNotFound.
func (s *SQLStore) transition(id int64, query string, args ...interface{}) (bool, error) {
	res, err := s.exec(s.db, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "update input %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var exists int
	if err := s.get(s.db, &exists, "SELECT COUNT(*) FROM classification_inputs WHERE id = ?", id); err != nil {
		return false, errors.Wrapf(err, "check input %d", id)
	}
	if exists == 0 {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// ClaimInput atomically moves a pending input to in_progress. It reports false
// when the input is not pending, e.g. because another worker claimed it first.
func (s *SQLStore) ClaimInput(id int64) (bool, error) {
	return s.transition(id,
		"UPDATE classification_inputs SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		models.InProgressInputStatus, time.Now().UTC(), id, models.PendingInputStatus)
}

func (s *SQLStore) MarkSucceeded(id int64, attempts int) error {
	ok, err := s.transition(id,
		"UPDATE classification_inputs SET status = ?, attempts = ?, error_kind = '', error_msg = '', updated_at = ? WHERE id = ? AND status = ?",
		models.SucceededInputStatus, attempts, time.Now().UTC(), id, models.InProgressInputStatus)
	if err == nil && !ok {
		return errors.Wrapf(storage.ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

func (s *SQLStore) MarkFailed(id int64, attempts int, kind models.ErrorKind, msg string) error {
	ok, err := s.transition(id,
		"UPDATE classification_inputs SET status = ?, attempts = ?, error_kind = ?, error_msg = ?, updated_at = ? WHERE id = ? AND status = ?",
		models.FailedInputStatus, attempts, kind, msg, time.Now().UTC(), id, models.InProgressInputStatus)
	if err == nil && !ok {
		return errors.Wrapf(storage.ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

func (s *SQLStore) ReleaseInput(id int64) error {
	ok, err := s.transition(id,
		"UPDATE classification_inputs SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		models.PendingInputStatus, time.Now().UTC(), id, models.InProgressInputStatus)
	if err == nil && !ok {
		return errors.Wrapf(storage.ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

// ResetFailedInputs moves every failed input of a task back to pending.
func (s *SQLStore) ResetFailedInputs(taskID int64) (int64, error) {
	res, err := s.exec(s.db,
		"UPDATE classification_inputs SET status = ?, error_kind = '', error_msg = '', updated_at = ? WHERE task_id = ? AND status = ?",
		models.PendingInputStatus, time.Now().UTC(), taskID, models.FailedInputStatus)
	if err != nil {
		return 0, errors.Wrapf(err, "reset failed inputs of task %d", taskID)
	}
	return res.RowsAffected()
}

func (s *SQLStore) SaveResponse(resp models.ClassificationResponse) (int64, error) {
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowx(s.db.Rebind("INSERT INTO classification_responses (input_id, fields, model, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		resp.InputID, resp.Fields, resp.Model, resp.CreatedAt).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(s.dialect.translate(err), "save response for input %d", resp.InputID)
	}
	return id, nil
}

func (s *SQLStore) GetResponse(inputID int64) (models.ClassificationResponse, error) {
	var resp models.ClassificationResponse
	err := s.get(s.db, &resp, "SELECT id, input_id, fields, model, created_at FROM classification_responses WHERE input_id = ?", inputID)
	if err == sql.ErrNoRows {
		return models.ClassificationResponse{}, storage.ErrNotFound
	}
	if err != nil {
		return models.ClassificationResponse{}, errors.Wrapf(err, "get response for input %d", inputID)
	}
	return resp, nil
}

// joinedRow is a response joined with its input.
type joinedRow struct {
	models.ClassificationInput
	RespID        int64          `db:"resp_id"`
	RespFields    models.Payload `db:"resp_fields"`
	RespModel     string         `db:"resp_model"`
	RespCreatedAt time.Time      `db:"resp_created_at"`
}

// ListResponses returns the responses of a task joined with their inputs,
// ordered by input ID. Field predicates are evaluated on the decoded payloads.
func (s *SQLStore) ListResponses(filter storage.ResponseFilter) ([]models.ResponseRow, error) {
	query := `
		SELECT i.id, i.task_id, i.external_id, i.category, i.fields, i.status, i.attempts, i.error_kind, i.error_msg, i.created_at, i.updated_at,
			r.id AS resp_id, r.fields AS resp_fields, r.model AS resp_model, r.created_at AS resp_created_at
		FROM classification_responses r
		JOIN classification_inputs i ON i.id = r.input_id
		WHERE i.task_id = ?`
	args := []interface{}{filter.TaskID}
	if filter.Category != "" {
		query += " AND i.category = ?"
		args = append(args, filter.Category)
	}
	query += " ORDER BY i.id"

	var joined []joinedRow
	if err := s.db.Select(&joined, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrapf(err, "list responses of task %d", filter.TaskID)
	}
	rows := make([]models.ResponseRow, 0, len(joined))
	for _, j := range joined {
		row := models.ResponseRow{
			Input: j.ClassificationInput,
			Response: models.ClassificationResponse{
				ID:        j.RespID,
				InputID:   j.ID,
				Fields:    j.RespFields,
				Model:     j.RespModel,
				CreatedAt: j.RespCreatedAt,
			},
		}
		if filter.Matches(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func mustAffect(res sql.Result, errNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNone
	}
	return nil
}
