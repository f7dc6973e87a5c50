package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/record"
)

// TestCreate stores records straight through the record server.
func TestCreate(c Config) {

	rest := adapter.NewREST(c.Base, NamespaceName("bench"))
	rest.Client = &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     1024,
			MaxIdleConnsPerHost: 1024,
			MaxIdleConns:        1024,
		},
	}

	items := c.N
	ctx := context.Background()

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for {
			n := atomic.AddInt64(&items, -1)
			if n < 0 {
				break
			}
			_, err := rest.Create(ctx, record.New("n", n, "done", false))
			if err != nil {
				fmt.Println("ERROR: create:", err.Error())
				os.Exit(3)
			}
		}
	})
	Report("create", c.N, time.Since(t0))

	all, err := rest.ReadAll(ctx)
	if err != nil {
		fmt.Println("ERROR: read:", err.Error())
		os.Exit(4)
	}
	fmt.Println("create stored:", len(all))
}
