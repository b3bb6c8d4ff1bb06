package cli

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/edimap/pkg/application"
	"github.com/felixgeelhaar/edimap/pkg/domain/chat"
	"github.com/felixgeelhaar/edimap/pkg/domain/flow"
	"github.com/felixgeelhaar/edimap/pkg/domain/session"
	"github.com/felixgeelhaar/edimap/pkg/sdk"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var transErr *session.TransitionError
	if errors.As(err, &transErr) {
		return NewCLIError(
			transErr.Error(),
			fmt.Sprintf("The session is '%s'; run 'edimap reset' to start over", transErr.From.DisplayName()),
			err,
		)
	}

	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.NotFound() {
			return NewCLIError("the mapping service no longer knows this session",
				"Sessions live in server memory; run 'edimap reset' and generate again", err)
		}
		return NewCLIError(fmt.Sprintf("mapping service rejected %s", apiErr.Op),
			"Check the server log for details", err)
	}

	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || (errors.As(err, &urlErr) && !urlErr.Timeout()) {
		return NewCLIError("cannot reach the mapping service",
			"Start the server or set EDIMAP_BASE_URL / base_url in .edimap/config.yaml", err)
	}

	switch {
	case errors.Is(err, session.ErrNoSession):
		return NewCLIError("no review session", "Run 'edimap generate --flow <flow> ...' first", err)
	case errors.Is(err, flow.ErrUnknownFlow):
		return NewCLIError("unknown flow", "Run 'edimap flows' to list available flows", err)
	case errors.Is(err, application.ErrInputIncomplete):
		return NewCLIError("required documents missing", "Run 'edimap flows' to see which documents each flow needs", err)
	case errors.Is(err, application.ErrUnexpectedDocument):
		return NewCLIError("document not used by this flow", "Run 'edimap flows' to see which documents each flow needs", err)
	case errors.Is(err, application.ErrEmptyGrid):
		return NewCLIError("the mapping service returned no rows", "Check that the documents match the selected flow", err)
	case errors.Is(err, sdk.ErrInvalidPayload):
		return NewCLIError("unexpected response from the mapping service", "Make sure client and server versions match", err)
	case errors.Is(err, chat.ErrEmptyQuery):
		return NewCLIError("question is empty", "Pass the question as an argument: edimap chat \"...\"", err)
	case errors.Is(err, application.ErrChatBusy):
		return NewCLIError("assistant is still answering", "Wait for the current answer to finish", err)
	case strings.Contains(err.Error(), "deadline exceeded"):
		return NewCLIError("request timed out", "Raise request_timeout in .edimap/config.yaml or EDIMAP_REQUEST_TIMEOUT", err)
	}

	return err
}
