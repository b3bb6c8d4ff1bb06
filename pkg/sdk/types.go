package sdk

import (
	"encoding/json"
	"io"

	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
)

// Document is one file submitted in an upload.
type Document struct {
	Slot flow.Slot
	Name string
	Body io.Reader
}

// UploadResult is the response of the upload endpoint.
type UploadResult struct {
	SessionID string `json:"session_id"`
}

// Mapping is the server's canonical copy of a session's grid and metadata.
type Mapping struct {
	Grid     grid.Grid
	Mappings json.RawMessage
	Flags    grid.Flags
	// HasFlags is set when the response carried a non-null flags key.
	HasFlags bool
	Status   string
	Version  string
}

// CellUpdate is the body of the single-cell update endpoint.
type CellUpdate = grid.Edit

// ChatRequest is the body of the chat endpoint.
type ChatRequest struct {
	Query string `json:"query"`
}

// DownloadResult describes a fetched export.
type DownloadResult struct {
	Filename    string
	ContentType string
	Size        int64
}
