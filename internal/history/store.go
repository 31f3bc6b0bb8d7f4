package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry is one finished test session.
type Entry struct {
	Time               time.Time `yaml:"time"`
	MaxSNR             float64   `yaml:"max_snr"`
	BaselineNoisePower float64   `yaml:"baseline_noise_power"`
	Quality            string    `yaml:"quality"`
}

// Baseline is the most recent successful calibration.
type Baseline struct {
	Time       time.Time `yaml:"time"`
	NoisePower float64   `yaml:"noise_power"`
	Quality    string    `yaml:"quality"`
}

type document struct {
	Baseline *Baseline `yaml:"baseline,omitempty"`
	Entries  []Entry   `yaml:"entries"`
}

// Store keeps session history in a YAML file. A missing file reads as empty.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns all entries, oldest first.
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

// Append adds e to the file.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Entries = append(doc.Entries, e)
	return s.write(doc)
}

// Latest returns the newest entry, if any.
func (s *Store) Latest() (Entry, bool, error) {
	entries, err := s.Load()
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[len(entries)-1], true, nil
}

// SaveBaseline replaces the stored calibration.
func (s *Store) SaveBaseline(b Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Baseline = &b
	return s.write(doc)
}

// Baseline returns the stored calibration, if any.
func (s *Store) Baseline() (Baseline, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil || doc.Baseline == nil {
		return Baseline{}, false, err
	}
	return *doc.Baseline, true, nil
}

func (s *Store) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("reading history %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing history %s: %w", s.path, err)
	}
	return doc, nil
}

// write replaces the file through a temporary file in the same directory.
func (s *Store) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.yaml")
	if err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
