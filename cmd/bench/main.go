package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"
)

type Config struct {
	Test    string `usage:"name of the test: ALL | CREATE | TOGGLE"`
	Base    string `usage:"base URL, an embedded server is started when empty"`
	Backend string `usage:"backend of the embedded server"`
	N       int64  `usage:"number of records"`
	Workers int    `usage:"number of workers"`
}

var cleanups []func()

func main() {

	defer func() {
		fmt.Println("Cleaning up...")
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	c := Config{
		Test:    "all",
		Backend: "journal",
		N:       10_000,
		Workers: 16,
	}
	goconfig.Read(&c)

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
		WaitReady(c.Base)
	}

	switch strings.ToUpper(c.Test) {
	case "ALL":
		TestCreate(c)
		TestToggle(c)
	case "CREATE":
		TestCreate(c)
	case "TOGGLE":
		TestToggle(c)
	default:
		log.Fatalf("Unknown test %s", c.Test)
	}

}
