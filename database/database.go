package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/fulldump/todostore/adapter"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

const (
	BackendMemory   = "memory"
	BackendJournal  = "journal"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

const journalExtension = ".jsonl"

var ErrInvalidNamespace = errors.New("invalid namespace")

type Config struct {
	Dir         string
	Backend     string
	DSN         string // postgres connection string, sqlite file when empty is <dir>/todostore.db
	DynamoTable string
	AWSRegion   string
	AWSEndpoint string
	Metrics     *adapter.Metrics // optional
}

// Database owns one adapter per namespace on top of the configured backend.
type Database struct {
	Config *Config

	mutex    sync.Mutex
	status   string
	adapters map[string]adapter.Adapter
	sql      *adapter.SQL
	dynamo   *adapter.Dynamo
	exit     chan struct{}
	stopOnce sync.Once
}

func NewDatabase(config *Config) *Database {
	if config.Backend == "" {
		config.Backend = BackendJournal
	}
	return &Database{
		Config:   config,
		status:   StatusOpening,
		adapters: map[string]adapter.Adapter{},
		exit:     make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.status
}

func validNamespace(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: '%s'", ErrInvalidNamespace, name)
	}
	return nil
}

// connect prepares the shared backend, it must be called with the mutex held.
func (db *Database) connect(ctx context.Context) error {
	switch db.Config.Backend {
	case BackendMemory:
		return nil
	case BackendJournal:
		err := os.MkdirAll(db.Config.Dir, 0755)
		if err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
		return nil
	case BackendSQLite, BackendPostgres:
		if db.sql != nil {
			return nil
		}
		var s *adapter.SQL
		var err error
		if db.Config.Backend == BackendSQLite {
			filename := db.Config.DSN
			if filename == "" {
				filename = filepath.Join(db.Config.Dir, "todostore.db")
			}
			s, err = adapter.OpenSQLite(filename)
		} else {
			s, err = adapter.OpenSQL(adapter.DriverPostgres, db.Config.DSN)
		}
		if err != nil {
			return err
		}
		db.sql = s
		return nil
	case BackendDynamoDB:
		if db.dynamo != nil {
			return nil
		}
		client, err := adapter.NewDynamoClient(ctx, adapter.DynamoOptions{
			Region:   db.Config.AWSRegion,
			Endpoint: db.Config.AWSEndpoint,
		})
		if err != nil {
			return err
		}
		d := adapter.NewDynamo(client, db.Config.DynamoTable)
		err = d.EnsureTable(ctx)
		if err != nil {
			return err
		}
		db.dynamo = d
		return nil
	}
	return fmt.Errorf("unknown backend '%s'", db.Config.Backend)
}

func (db *Database) journalFilename(namespace string) string {
	return filepath.Join(db.Config.Dir, namespace+journalExtension)
}

func (db *Database) open(ctx context.Context, namespace string) (adapter.Adapter, error) {
	if a, exists := db.adapters[namespace]; exists {
		return a, nil
	}
	if db.status == StatusClosing {
		return nil, adapter.ErrClosed
	}

	err := db.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", db.Config.Backend, err)
	}

	var a adapter.Adapter
	switch db.Config.Backend {
	case BackendMemory:
		a = adapter.NewMemory(namespace)
	case BackendJournal:
		t0 := time.Now()
		j, err := adapter.OpenJournal(namespace, db.journalFilename(namespace))
		if err != nil {
			return nil, err
		}
		glog.Infof("journal '%s' opened in %s", namespace, time.Since(t0))
		a = j
	case BackendSQLite, BackendPostgres:
		a = db.sql.Namespace(namespace)
	case BackendDynamoDB:
		a = db.dynamo.Namespace(namespace)
	}

	if db.Config.Metrics != nil {
		a = adapter.Instrument(a, namespace, db.Config.Metrics)
	}
	db.adapters[namespace] = a
	return a, nil
}

// Open returns the adapter of namespace, opening it the first time.
func (db *Database) Open(namespace string) (adapter.Adapter, error) {
	err := validNamespace(namespace)
	if err != nil {
		return nil, err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	return db.open(context.Background(), namespace)
}

// Namespaces lists every open namespace sorted by name.
func (db *Database) Namespaces() []string {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	result := make([]string, 0, len(db.adapters))
	for name := range db.adapters {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Drop closes namespace and deletes everything it stored.
func (db *Database) Drop(ctx context.Context, namespace string) error {
	err := validNamespace(namespace)
	if err != nil {
		return err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	a, exists := db.adapters[namespace]
	if exists {
		delete(db.adapters, namespace)
		if c, ok := a.(adapter.Closer); ok {
			err := c.Close()
			if err != nil {
				glog.Warningf("close '%s': %s", namespace, err)
			}
		}
	}

	switch db.Config.Backend {
	case BackendJournal:
		err := os.Remove(db.journalFilename(namespace))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove journal: %w", err)
		}
	case BackendSQLite, BackendPostgres:
		if db.sql != nil {
			return db.sql.Drop(ctx, namespace)
		}
	case BackendDynamoDB:
		if db.dynamo != nil {
			return db.dynamo.Drop(ctx, namespace)
		}
	}

	glog.Infof("namespace '%s' dropped", namespace)
	return nil
}

func (db *Database) existing(ctx context.Context) ([]string, error) {
	switch db.Config.Backend {
	case BackendJournal:
		entries, err := os.ReadDir(db.Config.Dir)
		if err != nil {
			return nil, fmt.Errorf("read dir: %w", err)
		}
		result := []string{}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), journalExtension) {
				continue
			}
			result = append(result, strings.TrimSuffix(entry.Name(), journalExtension))
		}
		return result, nil
	case BackendSQLite, BackendPostgres:
		return db.sql.Namespaces(ctx)
	case BackendDynamoDB:
		return db.dynamo.Namespaces(ctx)
	}
	return nil, nil
}

// Load connects the backend and opens every namespace already stored in it.
func (db *Database) Load() error {
	ctx := context.Background()

	glog.Infof("loading %s database...", db.Config.Backend)

	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.status == StatusClosing {
		return adapter.ErrClosed
	}

	err := db.load(ctx)
	if err != nil {
		glog.Errorf("load: %s", err)
		db.status = StatusClosing
		return err
	}

	db.status = StatusOperating
	glog.Infof("%d namespaces loaded", len(db.adapters))
	return nil
}

func (db *Database) load(ctx context.Context) error {
	err := db.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", db.Config.Backend, err)
	}

	names, err := db.existing(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if validNamespace(name) != nil {
			glog.Warningf("skipping namespace '%s'", name)
			continue
		}
		_, err := db.open(ctx, name)
		if err != nil {
			return fmt.Errorf("open namespace '%s': %w", name, err)
		}
	}
	return nil
}

func (db *Database) Start() error {

	go db.Load()

	<-db.exit

	return nil
}

// Stop closes every namespace and releases Start.
func (db *Database) Stop() error {

	defer db.stopOnce.Do(func() { close(db.exit) })

	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.status = StatusClosing

	var lastErr error
	for name, a := range db.adapters {
		c, ok := a.(adapter.Closer)
		if !ok {
			continue
		}
		glog.Infof("closing '%s'...", name)
		err := c.Close()
		if err != nil {
			glog.Errorf("close '%s': %s", name, err)
			lastErr = err
		}
	}
	db.adapters = map[string]adapter.Adapter{}

	if db.sql != nil {
		err := db.sql.Close()
		if err != nil {
			lastErr = err
		}
	}

	return lastErr
}
