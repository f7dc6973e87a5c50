package adapter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"

	"github.com/fulldump/todostore/record"
)

type Command struct {
	Name      string         `json:"name"`
	Uuid      string         `json:"uuid"`
	Timestamp int64          `json:"timestamp"`
	Payload   jsontext.Value `json:"payload"`
}

type deletePayload struct {
	ID string `json:"id"`
}

// Journal keeps the namespace in memory and appends every mutation to a
// file, one JSON command per line. Opening the file replays it.
type Journal struct {
	Namespace string
	Filename  string

	mutex  sync.Mutex
	state  *Memory
	file   *os.File
	buffer *bufio.Writer
	queue  chan []byte
	closed bool
	err    error
	wg     sync.WaitGroup
}

func OpenJournal(namespace, filename string) (*Journal, error) {
	j := &Journal{
		Namespace: namespace,
		Filename:  filename,
		state:     NewMemory(namespace),
		queue:     make(chan []byte, 1000),
	}

	err := j.replay()
	if err != nil {
		return nil, fmt.Errorf("replay '%s': %w", filename, err)
	}

	j.file, err = os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for write: %w", err)
	}
	j.buffer = bufio.NewWriterSize(j.file, 1024*1024)

	j.wg.Add(1)
	go j.writerLoop()

	return j, nil
}

func (j *Journal) replay() error {
	f, err := os.Open(j.Filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	const maxCapacity = 16 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	ctx := context.Background()
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		command := &Command{}
		err := json.Unmarshal(scanner.Bytes(), command)
		if err != nil {
			return fmt.Errorf("decode command at line %d: %w", line, err)
		}
		err = j.apply(ctx, command)
		if err != nil {
			return fmt.Errorf("apply %s at line %d: %w", command.Name, line, err)
		}
	}

	return scanner.Err()
}

func (j *Journal) apply(ctx context.Context, command *Command) error {
	switch command.Name {
	case "create", "update":
		r := record.Record{}
		err := json.Unmarshal(command.Payload, &r)
		if err != nil {
			return err
		}
		// updates are replayed as upserts so a truncated history still loads
		_, err = j.state.Create(ctx, r)
		return err
	case "delete":
		params := deletePayload{}
		err := json.Unmarshal(command.Payload, &params)
		if err != nil {
			return err
		}
		err = j.state.Delete(ctx, params.ID)
		if err != nil && !isNotFound(err) {
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown command '%s'", command.Name)
}

func (j *Journal) writerLoop() {
	defer j.wg.Done()
	for line := range j.queue {
		_, err := j.buffer.Write(line)
		if err == nil && len(j.queue) == 0 {
			err = j.buffer.Flush()
		}
		if err != nil {
			j.mutex.Lock()
			if j.err == nil {
				j.err = err
			}
			j.mutex.Unlock()
		}
	}
}

func (j *Journal) write(name string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	line, err := json.Marshal(&Command{
		Name:      name,
		Uuid:      uuid.NewString(),
		Timestamp: time.Now().UnixNano(),
		Payload:   b,
	})
	if err != nil {
		return err
	}
	j.queue <- append(line, '\n')
	return nil
}

// guard must be called with the mutex held.
func (j *Journal) guard() error {
	if j.closed {
		return ErrClosed
	}
	return j.err
}

func (j *Journal) Create(ctx context.Context, r record.Record) (string, error) {
	r, id := prepare(r)

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if err := j.guard(); err != nil {
		return "", wrap("create", j.Namespace, id, err)
	}
	_, err := j.state.Create(ctx, r)
	if err != nil {
		return "", err
	}
	err = j.write("create", r)
	if err != nil {
		return "", wrap("create", j.Namespace, id, err)
	}

	return id, nil
}

func (j *Journal) Update(ctx context.Context, r record.Record) error {
	id := r.ID()

	j.mutex.Lock()
	defer j.mutex.Unlock()

	if err := j.guard(); err != nil {
		return wrap("update", j.Namespace, id, err)
	}
	err := j.state.Update(ctx, r)
	if err != nil {
		return err
	}
	return wrap("update", j.Namespace, id, j.write("update", r))
}

func (j *Journal) Delete(ctx context.Context, id string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if err := j.guard(); err != nil {
		return wrap("delete", j.Namespace, id, err)
	}
	err := j.state.Delete(ctx, id)
	if err != nil {
		return err
	}
	return wrap("delete", j.Namespace, id, j.write("delete", deletePayload{ID: id}))
}

func (j *Journal) Get(ctx context.Context, id string) (record.Record, error) {
	j.mutex.Lock()
	closed := j.closed
	j.mutex.Unlock()

	if closed {
		return nil, wrap("get", j.Namespace, id, ErrClosed)
	}
	return j.state.Get(ctx, id)
}

func (j *Journal) ReadAll(ctx context.Context) ([]record.Record, error) {
	j.mutex.Lock()
	closed := j.closed
	j.mutex.Unlock()

	if closed {
		return nil, wrap("read", j.Namespace, "", ErrClosed)
	}
	return j.state.ReadAll(ctx)
}

// Close waits for every queued command to reach the file.
func (j *Journal) Close() error {
	j.mutex.Lock()
	if j.closed {
		j.mutex.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mutex.Unlock()

	j.wg.Wait()

	err := j.buffer.Flush()
	closeErr := j.file.Close()
	j.state.Close()

	if j.err != nil {
		return j.err
	}
	if err != nil {
		return err
	}
	return closeErr
}
