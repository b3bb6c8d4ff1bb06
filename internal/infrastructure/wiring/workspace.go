package wiring

import (
	"github.com/felixgeelhaar/edimap/pkg/storage"
)

// Workspace bundles core infrastructure dependencies.
type Workspace struct {
	Repo    *storage.FilesystemRepository
	Journal *storage.FileEventStore
}

func NewWorkspace(root string) (*Workspace, error) {
	repo := storage.NewFilesystemRepository(root)
	journal, err := repo.EventStore()
	if err != nil {
		return nil, err
	}
	return &Workspace{Repo: repo, Journal: journal}, nil
}
