package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fulldump/goconfig"
	"github.com/golang/glog"
	"github.com/joho/godotenv"

	"github.com/fulldump/todostore/bootstrap"
	"github.com/fulldump/todostore/configuration"
)

var banner = `
 _            _           _
| |_ ___   __| | ___  ___| |_ ___  _ __ ___
| __/ _ \ / _' |/ _ \/ __| __/ _ \| '__/ _ \
| || (_) | (_| | (_) \__ \ || (_) | | |  __/
 \__\___/ \__,_|\___/|___/\__\___/|_|  \___|
                        version ` + bootstrap.VERSION + `
`

func main() {

	godotenv.Load() // .env is optional

	c := configuration.Default()
	goconfig.Read(&c)

	flag.Set("logtostderr", "true")

	if c.Version {
		fmt.Println("Version:", bootstrap.VERSION)
		return
	}

	if c.ShowBanner {
		fmt.Println(banner)
	}

	if c.ShowConfig {
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "    ")
		e.Encode(c)
	}

	start, _ := bootstrap.Bootstrap(&c)
	start()

	glog.Flush()
}
