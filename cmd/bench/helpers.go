package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fulldump/todostore/bootstrap"
	"github.com/fulldump/todostore/configuration"
)

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "todostore_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func NamespaceName(prefix string) string {
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	conf.Backend = c.Backend
	conf.ShowBanner = false
	c.Base = "http://" + conf.HttpAddr

	return bootstrap.Bootstrap(&conf)
}

// WaitReady polls until the database finished loading.
func WaitReady(base string) {
	for i := 0; i < 100; i++ {
		resp, err := http.Get(base + "/v1/lists")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	fmt.Println("ERROR: server not ready")
	os.Exit(2)
}

func Report(name string, n int64, took time.Duration) {
	fmt.Println(name, "sent:", n)
	fmt.Println(name, "took:", took)
	fmt.Printf("%s throughput: %.2f ops/sec\n", name, float64(n)/took.Seconds())
}
