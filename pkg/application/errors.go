package application

import "errors"

var (
	// ErrInputIncomplete is returned when a flow's required documents are not all attached.
	ErrInputIncomplete = errors.New("required documents missing")

	// ErrEmptyGrid is returned when generation succeeds but yields no data rows.
	ErrEmptyGrid = errors.New("generation returned an empty grid")

	// ErrUnexpectedDocument is returned when a document slot is not used by the selected flow.
	ErrUnexpectedDocument = errors.New("document not used by this flow")

	// ErrChatBusy is returned when a question is asked while a response is still streaming.
	ErrChatBusy = errors.New("assistant is still answering")
)
