package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/fulldump/todostore/record"
)

// REST talks to a record server exposing /v1/namespaces/{namespace}/records.
type REST struct {
	Namespace string
	BaseURL   string
	Client    *http.Client
}

func NewREST(baseURL, namespace string) *REST {
	return &REST{
		Namespace: namespace,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Client:    http.DefaultClient,
	}
}

type restError struct {
	Error struct {
		Message     string `json:"message"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *REST) url(id string) string {
	u := r.BaseURL + "/v1/namespaces/" + url.PathEscape(r.Namespace) + "/records"
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (r *REST) do(ctx context.Context, method, u string, body any, output any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		e := restError{}
		if json.Unmarshal(payload, &e) == nil && e.Error.Message != "" {
			return fmt.Errorf("http %d: %s", resp.StatusCode, e.Error.Message)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	if output == nil || len(payload) == 0 {
		return nil
	}
	err = json.Unmarshal(payload, output)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *REST) Create(ctx context.Context, rec record.Record) (string, error) {
	created := record.Record{}
	err := r.do(ctx, http.MethodPost, r.url(""), rec, &created)
	if err != nil {
		return "", wrap("create", r.Namespace, rec.ID(), err)
	}
	id := created.ID()
	if id == "" {
		return "", wrap("create", r.Namespace, "", fmt.Errorf("server returned no id"))
	}
	return id, nil
}

func (r *REST) Update(ctx context.Context, rec record.Record) error {
	id := rec.ID()
	err := r.do(ctx, http.MethodPut, r.url(id), rec, nil)
	return wrap("update", r.Namespace, id, err)
}

func (r *REST) Delete(ctx context.Context, id string) error {
	err := r.do(ctx, http.MethodDelete, r.url(id), nil, nil)
	return wrap("delete", r.Namespace, id, err)
}

func (r *REST) Get(ctx context.Context, id string) (record.Record, error) {
	result := record.Record{}
	err := r.do(ctx, http.MethodGet, r.url(id), nil, &result)
	if err != nil {
		return nil, wrap("get", r.Namespace, id, err)
	}
	return result, nil
}

func (r *REST) ReadAll(ctx context.Context) ([]record.Record, error) {
	result := []record.Record{}
	err := r.do(ctx, http.MethodGet, r.url(""), nil, &result)
	if err != nil {
		return nil, wrap("read", r.Namespace, "", err)
	}
	return result, nil
}
