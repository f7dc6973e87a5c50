package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

type JSON = map[string]any

// TestToggle adds todos to a list and toggles every one of them, every call
// goes through the loop owning the list.
func TestToggle(c Config) {

	base := c.Base + "/v1/lists/" + NamespaceName("bench-list")

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     1024,
			MaxIdleConnsPerHost: 1024,
			MaxIdleConns:        1024,
		},
		Timeout: 10 * time.Second,
	}

	do := func(method, url string, body any) JSON {
		var reader io.Reader
		if body != nil {
			payload, _ := json.Marshal(body)
			reader = bytes.NewReader(payload)
		}
		req, _ := http.NewRequest(method, url, reader)
		resp, err := client.Do(req)
		if err != nil {
			fmt.Println("ERROR: do request:", err.Error())
			os.Exit(4)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			fmt.Println("ERROR: unexpected status:", resp.Status)
			os.Exit(5)
		}
		result := JSON{}
		json.NewDecoder(resp.Body).Decode(&result)
		return result
	}

	ids := make(chan string, c.N)
	items := c.N

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			todo := do("POST", base+"/todos", JSON{"title": fmt.Sprintf("todo %d", n)})
			ids <- todo["id"].(string)
		}
	})
	close(ids)
	Report("add", c.N, time.Since(t0))

	t0 = time.Now()
	Parallel(c.Workers, func() {
		for id := range ids {
			do("POST", base+"/todos/"+id+":toggle", nil)
		}
	})
	Report("toggle", c.N, time.Since(t0))

	stats := do("GET", base+"/stats", nil)
	fmt.Println("toggle stats:", stats)
}
