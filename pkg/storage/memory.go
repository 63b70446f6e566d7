package storage

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/ignatij/goclassify/pkg/models"
	"github.com/pkg/errors"
)

// memoryState is shared by a memory store and every transaction begun on it.
type memoryState struct {
	mu          sync.Mutex
	definitions map[string]models.TaskDefinition
	inputs      map[int64]models.ClassificationInput
	responses   map[int64]models.ClassificationResponse // keyed by input ID
	nextDefID   int64
	nextInputID int64
	nextRespID  int64
}

// memoryTx records how to undo the writes made inside a transaction.
type memoryTx struct {
	undo []func()
	done bool
}

// memoryStore implements Store in memory. Writes made in a transaction are
// visible to other callers immediately and are reverted by Rollback.
type memoryStore struct {
	state *memoryState
	tx    *memoryTx
}

// NewMemoryStore returns an empty thread-safe in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{state: &memoryState{
		definitions: make(map[string]models.TaskDefinition),
		inputs:      make(map[int64]models.ClassificationInput),
		responses:   make(map[int64]models.ClassificationResponse),
	}}
}

func (m *memoryStore) Begin() (Store, error) {
	if m.tx != nil {
		return nil, errors.New("cannot begin: already in a transaction")
	}
	return &memoryStore{state: m.state, tx: &memoryTx{}}, nil
}

func (m *memoryStore) Commit() error {
	if m.tx == nil {
		return errors.New("cannot commit: not a transaction")
	}
	if m.tx.done {
		return errors.New("transaction already committed")
	}
	m.tx.done = true
	return nil
}

func (m *memoryStore) Rollback() error {
	if m.tx == nil {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.tx.done {
		return errors.New("cannot rollback committed transaction")
	}
	m.tx.done = true
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	for i := len(m.tx.undo) - 1; i >= 0; i-- {
		m.tx.undo[i]()
	}
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

// lock acquires the state and fails for finished transactions.
func (m *memoryStore) lock() (func(), error) {
	if m.tx != nil && m.tx.done {
		return nil, errors.New("transaction already committed")
	}
	m.state.mu.Lock()
	return m.state.mu.Unlock, nil
}

// onRollback registers fn to run if the surrounding transaction is rolled back.
// The caller holds the state lock.
func (m *memoryStore) onRollback(fn func()) {
	if m.tx != nil {
		m.tx.undo = append(m.tx.undo, fn)
	}
}

// restoreInput returns an undo func putting prev back.
func (m *memoryStore) restoreInput(prev models.ClassificationInput) func() {
	return func() { m.state.inputs[prev.ID] = prev }
}

func (m *memoryStore) SaveTaskDefinition(def models.TaskDefinition) (int64, error) {
	unlock, err := m.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	if _, ok := m.state.definitions[def.Name]; ok {
		return 0, errors.Wrapf(ErrDuplicate, "task definition %q", def.Name)
	}
	m.state.nextDefID++
	def.ID = m.state.nextDefID
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	def.InputSchema = append(models.Schema(nil), def.InputSchema...)
	def.ResponseSchema = append(models.Schema(nil), def.ResponseSchema...)
	m.state.definitions[def.Name] = def
	m.onRollback(func() { delete(m.state.definitions, def.Name) })
	return def.ID, nil
}

func (m *memoryStore) GetTaskDefinition(name string) (models.TaskDefinition, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	def, ok := m.state.definitions[name]
	if !ok {
		return models.TaskDefinition{}, ErrNotFound
	}
	return def, nil
}

func (m *memoryStore) ListTaskDefinitions() ([]models.TaskDefinition, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	defs := make([]models.TaskDefinition, 0, len(m.state.definitions))
	for _, def := range m.state.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func (m *memoryStore) taskExists(taskID int64) bool {
	for _, def := range m.state.definitions {
		if def.ID == taskID {
			return true
		}
	}
	return false
}

func (m *memoryStore) SaveInput(in models.ClassificationInput) (int64, error) {
	unlock, err := m.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	if !m.taskExists(in.TaskID) {
		return 0, errors.Wrapf(ErrNotFound, "task definition %d", in.TaskID)
	}
	if in.ExternalID != "" {
		for _, existing := range m.state.inputs {
			if existing.TaskID == in.TaskID && existing.ExternalID == in.ExternalID {
				return 0, errors.Wrapf(ErrDuplicate, "input %q", in.ExternalID)
			}
		}
	}
	m.state.nextInputID++
	in.ID = m.state.nextInputID
	if in.Status == "" {
		in.Status = models.PendingInputStatus
	}
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	in.Fields = maps.Clone(in.Fields)
	m.state.inputs[in.ID] = in
	m.onRollback(func() { delete(m.state.inputs, in.ID) })
	return in.ID, nil
}

func (m *memoryStore) GetInput(id int64) (models.ClassificationInput, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	in, ok := m.state.inputs[id]
	if !ok {
		return models.ClassificationInput{}, ErrNotFound
	}
	return in, nil
}

func (m *memoryStore) ListInputs(taskID int64, status models.InputStatus) ([]models.ClassificationInput, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	inputs := []models.ClassificationInput{}
	for _, in := range m.state.inputs {
		if in.TaskID == taskID && (status == "" || in.Status == status) {
			inputs = append(inputs, in)
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].ID < inputs[j].ID })
	return inputs, nil
}

func (m *memoryStore) CountInputs(taskID int64) (map[models.InputStatus]int, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	counts := make(map[models.InputStatus]int)
	for _, in := range m.state.inputs {
		if in.TaskID == taskID {
			counts[in.Status]++
		}
	}
	return counts, nil
}

func (m *memoryStore) DeleteInput(id int64) error {
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	in, ok := m.state.inputs[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.state.inputs, id)
	m.onRollback(m.restoreInput(in))
	if resp, ok := m.state.responses[id]; ok {
		delete(m.state.responses, id)
		m.onRollback(func() { m.state.responses[id] = resp })
	}
	return nil
}

// transition moves input id from one status to another, applying update to the
// stored copy. It reports false when the input is not in status from.
func (m *memoryStore) transition(id int64, from models.InputStatus, update func(*models.ClassificationInput)) (bool, error) {
	unlock, err := m.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	in, ok := m.state.inputs[id]
	if !ok {
		return false, ErrNotFound
	}
	if in.Status != from {
		return false, nil
	}
	prev := in
	update(&in)
	in.UpdatedAt = time.Now().UTC()
	m.state.inputs[id] = in
	m.onRollback(m.restoreInput(prev))
	return true, nil
}

func (m *memoryStore) ClaimInput(id int64) (bool, error) {
	return m.transition(id, models.PendingInputStatus, func(in *models.ClassificationInput) {
		in.Status = models.InProgressInputStatus
	})
}

func (m *memoryStore) MarkSucceeded(id int64, attempts int) error {
	ok, err := m.transition(id, models.InProgressInputStatus, func(in *models.ClassificationInput) {
		in.Status = models.SucceededInputStatus
		in.Attempts = attempts
		in.ErrorKind = models.NoErrorKind
		in.ErrorMsg = ""
	})
	if err == nil && !ok {
		return errors.Wrapf(ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

func (m *memoryStore) MarkFailed(id int64, attempts int, kind models.ErrorKind, msg string) error {
	ok, err := m.transition(id, models.InProgressInputStatus, func(in *models.ClassificationInput) {
		in.Status = models.FailedInputStatus
		in.Attempts = attempts
		in.ErrorKind = kind
		in.ErrorMsg = msg
	})
	if err == nil && !ok {
		return errors.Wrapf(ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

func (m *memoryStore) ReleaseInput(id int64) error {
	ok, err := m.transition(id, models.InProgressInputStatus, func(in *models.ClassificationInput) {
		in.Status = models.PendingInputStatus
	})
	if err == nil && !ok {
		return errors.Wrapf(ErrInvalidTransition, "input %d is not in progress", id)
	}
	return err
}

func (m *memoryStore) ResetFailedInputs(taskID int64) (int64, error) {
	unlock, err := m.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	now := time.Now().UTC()
	for id, in := range m.state.inputs {
		if in.TaskID != taskID || in.Status != models.FailedInputStatus {
			continue
		}
		m.onRollback(m.restoreInput(in))
		in.Status = models.PendingInputStatus
		in.ErrorKind = models.NoErrorKind
		in.ErrorMsg = ""
		in.UpdatedAt = now
		m.state.inputs[id] = in
		n++
	}
	return n, nil
}

func (m *memoryStore) SaveResponse(resp models.ClassificationResponse) (int64, error) {
	unlock, err := m.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	if _, ok := m.state.inputs[resp.InputID]; !ok {
		return 0, errors.Wrapf(ErrNotFound, "input %d", resp.InputID)
	}
	if _, ok := m.state.responses[resp.InputID]; ok {
		return 0, errors.Wrapf(ErrDuplicate, "response for input %d", resp.InputID)
	}
	m.state.nextRespID++
	resp.ID = m.state.nextRespID
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	resp.Fields = maps.Clone(resp.Fields)
	m.state.responses[resp.InputID] = resp
	m.onRollback(func() { delete(m.state.responses, resp.InputID) })
	return resp.ID, nil
}

func (m *memoryStore) GetResponse(inputID int64) (models.ClassificationResponse, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	resp, ok := m.state.responses[inputID]
	if !ok {
		return models.ClassificationResponse{}, ErrNotFound
	}
	return resp, nil
}

func (m *memoryStore) ListResponses(filter ResponseFilter) ([]models.ResponseRow, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	rows := []models.ResponseRow{}
	for inputID, resp := range m.state.responses {
		row := models.ResponseRow{Input: m.state.inputs[inputID], Response: resp}
		if filter.Matches(row) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Input.ID < rows[j].Input.ID })
	return rows, nil
}
