// Package job persists conversion jobs: one job per upload batch, with its
// own uploads directory, processed-output directory and result archive.
package job

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Job is one conversion batch.
type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"` // "upload", "processing", "done", "error"
	FileCount int       `json:"file_count"`
	DocCount  int       `json:"doc_count"` // successfully converted documents
	ZipName   string    `json:"zip_name,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Store manages job persistence. Jobs are kept in a single jobs.json plus a
// per-job directory tree under the data dir.
type Store struct {
	mu       sync.RWMutex
	jobs     []Job
	dataDir  string // e.g. "data/jobs"
	filePath string // e.g. "data/jobs/jobs.json"
}

// NewStore initialises the store, creating directories and loading any
// existing jobs.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store := &Store{
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, "jobs.json"),
	}

	if data, err := os.ReadFile(store.filePath); err == nil {
		_ = json.Unmarshal(data, &store.jobs)
	}

	return store, nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0644)
}

// ==================== Job CRUD ====================

// Create registers a new job in "upload" state and creates its directories.
func (s *Store) Create() (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := generateUUID()
	j := Job{
		ID:        id,
		CreatedAt: time.Now(),
		Status:    "upload",
	}

	jobDir := filepath.Join(s.dataDir, id)
	dirs := []string{
		filepath.Join(jobDir, "uploads"),
		filepath.Join(jobDir, "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create job dir %s: %w", d, err)
		}
	}

	s.jobs = append(s.jobs, j)
	if err := s.save(); err != nil {
		return nil, err
	}

	return &j, nil
}

func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Job, len(s.jobs))
	copy(result, s.jobs)
	return result
}

func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.jobs {
		if s.jobs[i].ID == id {
			j := s.jobs[i]
			return &j, nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", id)
}

func (s *Store) Update(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == j.ID {
			s.jobs[i] = j
			return s.save()
		}
	}
	return fmt.Errorf("job not found: %s", j.ID)
}

// Delete removes a job record and its directory tree.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	var updated []Job
	for _, j := range s.jobs {
		if j.ID == id {
			found = true
			continue
		}
		updated = append(updated, j)
	}
	if !found {
		return fmt.Errorf("job not found: %s", id)
	}

	s.jobs = updated
	_ = os.RemoveAll(filepath.Join(s.dataDir, id))

	return s.save()
}

// ==================== Path Helpers ====================

func (s *Store) JobDir(id string) string {
	return filepath.Join(s.dataDir, id)
}

func (s *Store) UploadsDir(id string) string {
	return filepath.Join(s.dataDir, id, "uploads")
}

func (s *Store) ProcessedDir(id string) string {
	return filepath.Join(s.dataDir, id, "processed")
}

// ==================== UUID ====================

func generateUUID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
