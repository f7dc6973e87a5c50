package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"
	jsonv2 "github.com/go-json-experiment/json"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/database"
	"github.com/fulldump/todostore/model"
	"github.com/fulldump/todostore/record"
	"github.com/fulldump/todostore/service"
	"github.com/fulldump/todostore/todos"
)

var (
	ErrTodoNotFound   = errors.New("todo not found")
	ErrRecordNotFound = errors.New("record not found")
	ErrUnavailable    = errors.New("temporary unavailable")
	ErrBadRequest     = errors.New("bad request")
)

// decodeOptionalBody decodes the request body into v, an empty body leaves v
// untouched.
func decodeOptionalBody(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	err = jsonv2.Unmarshal(body, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return jsonv2.Marshal(map[string]any{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

func (p PrettyError) MarshalTo(w io.Writer) error {
	return jsonv2.MarshalWrite(w, p)
}

func InterceptorUnavailable(db *database.Database) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {

			status := db.GetStatus()
			if status == database.StatusOpening {
				box.SetError(ctx, fmt.Errorf("%w: opening", ErrUnavailable))
				return
			}
			if status == database.StatusClosing {
				box.SetError(ctx, fmt.Errorf("%w: closing", ErrUnavailable))
				return
			}
			next(ctx)
		}
	}
}

// describe maps an error to its http status and a human description.
func describe(ctx context.Context, err error) (int, string) {

	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError

	switch {
	case errors.Is(err, box.ErrResourceNotFound):
		return http.StatusNotFound, fmt.Sprintf("resource '%s' not found", box.GetRequest(ctx).URL.String())
	case errors.Is(err, box.ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed, fmt.Sprintf("method '%s' not allowed", box.GetRequest(ctx).Method)
	case errors.As(err, &syntaxError), errors.Is(err, record.ErrMalformed), errors.Is(err, ErrBadRequest),
		err == io.EOF, err == io.ErrUnexpectedEOF:
		return http.StatusBadRequest, "Malformed JSON"
	case errors.As(err, &typeError):
		return http.StatusBadRequest, "Unexpected JSON type"
	case errors.Is(err, todos.ErrEmptyTitle):
		return http.StatusBadRequest, "title must not be blank"
	case errors.Is(err, model.ErrIdentityImmutable):
		return http.StatusBadRequest, "id can not be changed"
	case errors.Is(err, database.ErrInvalidNamespace):
		return http.StatusBadRequest, "invalid name"
	case errors.Is(err, ErrTodoNotFound), errors.Is(err, ErrRecordNotFound),
		errors.Is(err, adapter.ErrNotFound), errors.Is(err, service.ErrorListNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, model.ErrDestroyed):
		return http.StatusGone, "already deleted"
	case errors.Is(err, ErrUnavailable), errors.Is(err, adapter.ErrClosed):
		return http.StatusServiceUnavailable, "try again later"
	}

	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := describe(ctx, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		PrettyError{
			Message:     err.Error(),
			Description: description,
		}.MarshalTo(w)
	}
}
