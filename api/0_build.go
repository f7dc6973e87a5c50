package api

import (
	"net/http"

	"github.com/fulldump/box"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fulldump/todostore/service"
)

const metricsPath = "/metrics"

// Build mounts the record server and the todo lists. gatherer may be nil to
// leave /metrics out.
func Build(s service.Servicer, version string, gatherer prometheus.Gatherer) *box.B {

	b := box.NewBox()

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		injectServicer(s),
	)

	BuildRecords(v1)
	BuildLists(v1)

	b.Resource("/v1/*").
		WithActions(box.AnyMethod(func(w http.ResponseWriter) any {
			w.WriteHeader(http.StatusNotImplemented)
			return PrettyError{
				Message:     "not implemented",
				Description: "this endpoint does not exist, please check the documentation",
			}
		}))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	if gatherer != nil {
		metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		b.Resource(metricsPath).
			WithActions(box.Get(func(w http.ResponseWriter, r *http.Request) {
				metrics.ServeHTTP(w, r)
			}))
	}

	return b
}

func BuildRecords(v1 *box.R) {

	v1.Resource("/namespaces").
		WithActions(
			box.Get(listNamespaces),
		)

	v1.Resource("/namespaces/{namespace}").
		WithActions(
			box.Delete(dropNamespace),
		)

	v1.Resource("/namespaces/{namespace}/records").
		WithActions(
			box.Get(listRecords),
			box.Post(createRecord),
		)

	v1.Resource("/namespaces/{namespace}/records/{recordId}").
		WithActions(
			box.Get(getRecord),
			box.Put(updateRecord),
			box.Delete(deleteRecord),
		)
}

func BuildLists(v1 *box.R) {

	v1.Resource("/lists").
		WithActions(
			box.Get(listLists),
		)

	v1.Resource("/lists/{listName}").
		WithActions(
			box.Get(getList),
			box.Delete(deleteList),
			box.ActionPost(clearCompleted).WithName("clearCompleted"),
			box.ActionPost(toggleAll).WithName("toggleAll"),
		)

	v1.Resource("/lists/{listName}/stats").
		WithActions(
			box.Get(getStats),
		)

	v1.Resource("/lists/{listName}/todos").
		WithActions(
			box.Get(listTodos),
			box.Post(addTodo),
		)

	v1.Resource("/lists/{listName}/todos/{todoId}").
		WithActions(
			box.Get(getTodo),
			box.Patch(patchTodo),
			box.Delete(deleteTodo),
			box.ActionPost(toggleTodo).WithName("toggle"),
		)
}
