package bootstrap

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fulldump/todostore/adapter"
	"github.com/fulldump/todostore/api"
	"github.com/fulldump/todostore/configuration"
	"github.com/fulldump/todostore/database"
	"github.com/fulldump/todostore/service"
)

var VERSION = "dev"

func Bootstrap(c *configuration.Configuration) (start, stop func()) {

	config := &database.Config{
		Dir:         c.Dir,
		Backend:     c.Backend,
		DSN:         c.DSN,
		DynamoTable: c.DynamoTable,
		AWSRegion:   c.AWSRegion,
		AWSEndpoint: c.AWSEndpoint,
	}

	var gatherer prometheus.Gatherer
	if c.Metrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		config.Metrics = adapter.NewMetrics(registry)
		gatherer = registry
	}

	db := database.NewDatabase(config)
	s := service.NewService(db)

	b := api.Build(s, VERSION, gatherer)
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", log.Lshortfile)),
		api.PrettyErrorInterceptor,
		api.InterceptorUnavailable(db),
		api.RecoverFromPanic,
	)

	server := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		glog.Exitf("listen: %s", err)
	}
	glog.Infof("listening on %s", c.HttpAddr)

	stopOnce := sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			server.Shutdown(context.Background())
			s.Stop()
			err := db.Stop()
			if err != nil {
				glog.Errorf("stop database: %s", err)
			}
			glog.Flush()
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for {
			sig := <-signalChan
			glog.Infof("signal received %s", sig.String())
			stop()
		}
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.Start()
			if err != nil {
				glog.Error(err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Run(context.Background())
			if err != nil {
				glog.Error(err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Serve(ln)
			if err != nil && err != http.ErrServerClosed {
				glog.Error(err)
			}
		}()

		wg.Wait()
	}

	return
}
