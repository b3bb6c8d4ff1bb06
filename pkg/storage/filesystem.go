package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/fortify/retry"
	"gopkg.in/yaml.v3"
)

const WorkspaceDir = ".edimap"
const SessionFile = "session.yaml"
const ConfigFile = "config.yaml"
const EventsFile = "events.jsonl"
const DeadLetterFile = "deadletter.jsonl"
const LogsDir = "logs"

// FilesystemRepository stores workspace state under root/.edimap.
type FilesystemRepository struct {
	root        string
	retryConfig retry.Config
}

func NewFilesystemRepository(root string) *FilesystemRepository {
	return &FilesystemRepository{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Root returns the workspace root directory.
func (r *FilesystemRepository) Root() string {
	return r.root
}

// Dir returns the .edimap directory.
func (r *FilesystemRepository) Dir() string {
	return filepath.Join(r.root, WorkspaceDir)
}

// ResolvePath ensures the path is within the .edimap directory and prevents traversal.
func (r *FilesystemRepository) ResolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	baseDir := r.Dir()
	cleanPath := filepath.Clean(filepath.Join(baseDir, filename))

	// Direct children only.
	if !strings.HasPrefix(cleanPath, baseDir) || filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("invalid file path: %s", filename)
	}

	return cleanPath, nil
}

func (r *FilesystemRepository) Initialize() error {
	// G301: Use 0700 for directories
	if err := os.MkdirAll(r.Dir(), 0700); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", WorkspaceDir, err)
	}
	return nil
}

func (r *FilesystemRepository) IsInitialized() bool {
	_, err := os.Stat(r.Dir())
	return err == nil
}

// SaveSession writes the active session record.
func (r *FilesystemRepository) SaveSession(rec *session.Record) error {
	if err := r.Initialize(); err != nil {
		return err
	}
	path, err := r.ResolvePath(SessionFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// G306: Use 0600 for files
	return os.WriteFile(path, data, 0600)
}

// LoadSession reads the active session record. A missing file yields
// session.ErrNoSession and is not retried.
func (r *FilesystemRepository) LoadSession() (*session.Record, error) {
	path, err := r.ResolvePath(SessionFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrNoSession
	}

	retryer := retry.New[*session.Record](r.retryConfig)
	return retryer.Do(context.Background(), func(ctx context.Context) (*session.Record, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read session file: %w", err)
		}

		var rec session.Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if rec.ID == "" {
			return nil, session.ErrNoSession
		}
		return &rec, nil
	})
}

// ClearSession removes the session record. Clearing an absent record is not an error.
func (r *FilesystemRepository) ClearSession() error {
	path, err := r.ResolvePath(SessionFile)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// EventStore opens the workspace journal.
func (r *FilesystemRepository) EventStore() (*FileEventStore, error) {
	return NewFileEventStore(r.Dir())
}

// LogPath returns the rotating log file location.
func (r *FilesystemRepository) LogPath() string {
	return filepath.Join(r.Dir(), LogsDir, "edimap.log")
}
