package service

import (
	"net/http"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance walks the http api: apiRequest must prefix paths with /v1.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("Add todo", func(a *biff.A) {
		resp := apiRequest("POST", "/lists/groceries/todos").
			WithBodyJson(JSON{
				"title": "  buy milk ",
			}).Do()
		Save(resp, "Add todo", `
			Adds a todo at the end of the list. The title is trimmed and
			must not be blank, order and done get their defaults.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		todo := resp.BodyJsonMap()
		id, _ := todo["id"].(string)
		biff.AssertNotEqual(id, "")
		biff.AssertEqualJson(todo, JSON{
			"title": "buy milk",
			"order": 1,
			"done":  false,
			"id":    id,
		})

		a.Alternative("Retrieve todo", func(a *biff.A) {
			resp := apiRequest("GET", "/lists/groceries/todos/"+id).Do()
			Save(resp, "Retrieve todo", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), todo)
		})

		a.Alternative("List todos", func(a *biff.A) {
			apiRequest("POST", "/lists/groceries/todos").
				WithBodyJson(JSON{"title": "bread"}).Do()

			resp := apiRequest("GET", "/lists/groceries/todos").Do()
			Save(resp, "List todos", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			list := resp.BodyJson().([]interface{})
			biff.AssertEqual(len(list), 2)
			biff.AssertEqualJson(list[0], todo)
			biff.AssertEqualJson(list[1].(JSON)["order"], 2)
		})

		a.Alternative("Toggle todo", func(a *biff.A) {
			resp := apiRequest("POST", "/lists/groceries/todos/"+id+":toggle").Do()
			Save(resp, "Toggle todo", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJsonMap()["done"], true)

			a.Alternative("Stats", func(a *biff.A) {
				resp := apiRequest("GET", "/lists/groceries/stats").Do()
				Save(resp, "Stats", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), JSON{
					"done":      1,
					"remaining": 0,
					"total":     1,
					"all_done":  true,
				})
			})

			a.Alternative("Clear completed", func(a *biff.A) {
				resp := apiRequest("POST", "/lists/groceries:clearCompleted").Do()
				Save(resp, "Clear completed", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), JSON{
					"done":      0,
					"remaining": 0,
					"total":     0,
					"all_done":  false,
				})

				resp = apiRequest("GET", "/namespaces/groceries/records").Do()
				biff.AssertEqualJson(resp.BodyJson(), []JSON{})
			})
		})

		a.Alternative("Toggle all", func(a *biff.A) {
			apiRequest("POST", "/lists/groceries/todos").
				WithBodyJson(JSON{"title": "bread"}).Do()

			resp := apiRequest("POST", "/lists/groceries:toggleAll").Do()
			Save(resp, "Toggle all", `
				Marks every todo as done, or as pending when all of them
				already are. Send {"done": true} or {"done": false} to force it.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"done":      2,
				"remaining": 0,
				"total":     2,
				"all_done":  true,
			})

			resp = apiRequest("POST", "/lists/groceries:toggleAll").
				WithBodyJson(JSON{"done": true}).Do()
			biff.AssertEqualJson(resp.BodyJsonMap()["done"], 2)
		})

		a.Alternative("Patch todo", func(a *biff.A) {
			resp := apiRequest("PATCH", "/lists/groceries/todos/"+id).
				WithBodyJson(JSON{"title": "buy oat milk", "order": 7}).Do()
			Save(resp, "Patch todo", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"title": "buy oat milk",
				"order": 7,
				"done":  false,
				"id":    id,
			})

			a.Alternative("Stored record", func(a *biff.A) {
				resp := apiRequest("GET", "/namespaces/groceries/records/"+id).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJsonMap()["title"], "buy oat milk")
			})
		})

		a.Alternative("Patch with blank title", func(a *biff.A) {
			resp := apiRequest("PATCH", "/lists/groceries/todos/"+id).
				WithBodyJson(JSON{"title": "   "}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Patch id", func(a *biff.A) {
			resp := apiRequest("PATCH", "/lists/groceries/todos/"+id).
				WithBodyJson(JSON{"id": "other"}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Delete todo", func(a *biff.A) {
			resp := apiRequest("DELETE", "/lists/groceries/todos/"+id).Do()
			Save(resp, "Delete todo", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			a.Alternative("Retrieve deleted todo", func(a *biff.A) {
				resp := apiRequest("GET", "/lists/groceries/todos/"+id).Do()
				Save(resp, "Retrieve todo - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("List lists", func(a *biff.A) {
			resp := apiRequest("GET", "/lists").Do()
			Save(resp, "List lists", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{{"name": "groceries"}})
		})

		a.Alternative("Retrieve list", func(a *biff.A) {
			resp := apiRequest("GET", "/lists/groceries").Do()
			Save(resp, "Retrieve list", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"name": "groceries",
				"stats": JSON{
					"done":      0,
					"remaining": 1,
					"total":     1,
					"all_done":  false,
				},
				"todos": []JSON{todo},
			})
		})

		a.Alternative("Delete list", func(a *biff.A) {
			resp := apiRequest("DELETE", "/lists/groceries").Do()
			Save(resp, "Delete list", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/lists/groceries/todos").Do()
			biff.AssertEqualJson(resp.BodyJson(), []JSON{})
		})
	})

	a.Alternative("Add blank todo", func(a *biff.A) {
		resp := apiRequest("POST", "/lists/groceries/todos").
			WithBodyJson(JSON{"title": " "}).Do()
		Save(resp, "Add todo - blank title", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"error": JSON{
				"message":     "empty title",
				"description": "title must not be blank",
			},
		})
	})

	a.Alternative("Add todo with malformed json", func(a *biff.A) {
		resp := apiRequest("POST", "/lists/groceries/todos").
			WithBodyString(`{"title": `).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		biff.AssertEqualJson(resp.BodyJsonMap()["error"].(JSON)["description"], "Malformed JSON")
	})

	a.Alternative("Retrieve unknown todo", func(a *biff.A) {
		resp := apiRequest("GET", "/lists/groceries/todos/nope").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Delete unknown list", func(a *biff.A) {
		resp := apiRequest("DELETE", "/lists/nope").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})

	a.Alternative("Create record", func(a *biff.A) {
		resp := apiRequest("POST", "/namespaces/people/records").
			WithBodyJson(JSON{"name": "Fulanez"}).Do()
		Save(resp, "Create record", `
			Stores the body as is. An id is generated unless the body
			already has one.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusCreated)
		id, _ := resp.BodyJsonMap()["id"].(string)
		biff.AssertNotEqual(id, "")

		a.Alternative("List records", func(a *biff.A) {
			resp := apiRequest("GET", "/namespaces/people/records").Do()
			Save(resp, "List records", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"name": "Fulanez", "id": id},
			})
		})

		a.Alternative("Update record", func(a *biff.A) {
			resp := apiRequest("PUT", "/namespaces/people/records/"+id).
				WithBodyJson(JSON{"name": "Menganez"}).Do()
			Save(resp, "Update record", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/namespaces/people/records/"+id).Do()
			biff.AssertEqualJson(resp.BodyJson(), JSON{"name": "Menganez", "id": id})
		})

		a.Alternative("Delete record", func(a *biff.A) {
			resp := apiRequest("DELETE", "/namespaces/people/records/"+id).Do()
			Save(resp, "Delete record", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/namespaces/people/records/"+id).Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
		})

		a.Alternative("Read records as a list", func(a *biff.A) {
			resp := apiRequest("GET", "/lists/people/todos").Do()

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"name": "Fulanez", "id": id},
			})
		})

		a.Alternative("Drop namespace", func(a *biff.A) {
			resp := apiRequest("DELETE", "/namespaces/people").Do()
			Save(resp, "Drop namespace", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)

			resp = apiRequest("GET", "/namespaces").Do()
			biff.AssertEqualJson(resp.BodyJson(), []JSON{})
		})
	})

	a.Alternative("Update unknown record", func(a *biff.A) {
		resp := apiRequest("PUT", "/namespaces/people/records/nope").
			WithBodyJson(JSON{"name": "Nobody"}).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
	})
}
