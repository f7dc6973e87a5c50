package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/record"
)

type NamespaceResponse struct {
	Name string `json:"name"`
}

func listNamespaces(ctx context.Context) []NamespaceResponse {
	result := []NamespaceResponse{}
	for _, name := range GetServicer(ctx).ListLists() {
		result = append(result, NamespaceResponse{Name: name})
	}
	return result
}

func dropNamespace(ctx context.Context) error {
	return GetServicer(ctx).DeleteList(ctx, box.GetUrlParameter(ctx, "namespace"))
}

func namespaceAdapter(ctx context.Context) (adapter.Adapter, error) {
	return GetServicer(ctx).Records(box.GetUrlParameter(ctx, "namespace"))
}

func listRecords(ctx context.Context) ([]record.Record, error) {
	a, err := namespaceAdapter(ctx)
	if err != nil {
		return nil, err
	}
	return a.ReadAll(ctx)
}

func getRecord(ctx context.Context) (record.Record, error) {
	a, err := namespaceAdapter(ctx)
	if err != nil {
		return nil, err
	}

	id := box.GetUrlParameter(ctx, "recordId")
	r, err := adapter.Get(ctx, a, id)
	if errors.Is(err, adapter.ErrNotFound) {
		return nil, fmt.Errorf("%w: '%s'", ErrRecordNotFound, id)
	}
	return r, err
}

// createRecord stores the body, keeping its id when it has one.
func createRecord(ctx context.Context, w http.ResponseWriter, input record.Record) (record.Record, error) {
	a, err := namespaceAdapter(ctx)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = record.Record{}
	}

	id, err := a.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	created := input.Clone()
	created.Put(record.IDKey, id)
	w.WriteHeader(http.StatusCreated)
	return created, nil
}

func updateRecord(ctx context.Context, input record.Record) (record.Record, error) {
	a, err := namespaceAdapter(ctx)
	if err != nil {
		return nil, err
	}

	id := box.GetUrlParameter(ctx, "recordId")
	if input.Has(record.IDKey) && input.ID() != id {
		return nil, fmt.Errorf("%w: body id '%s' does not match '%s'", record.ErrMalformed, input.ID(), id)
	}
	updated := input.Clone()
	updated.Put(record.IDKey, id)

	err = a.Update(ctx, updated)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func deleteRecord(ctx context.Context) error {
	a, err := namespaceAdapter(ctx)
	if err != nil {
		return err
	}
	return a.Delete(ctx, box.GetUrlParameter(ctx, "recordId"))
}
