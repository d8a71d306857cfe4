package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// jsonLines writes one JSON record per line.
type jsonLines struct {
	mu sync.Mutex
	w  io.Writer
}

func (j *jsonLines) write(batch Batch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	enc := json.NewEncoder(j.w)
	for _, r := range batch.Records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// FileOutput appends JSON lines to a file.
type FileOutput struct {
	jsonLines
	path string
	file *os.File
}

func NewFileOutput(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileOutput{jsonLines: jsonLines{w: f}, path: path, file: f}, nil
}

func (f *FileOutput) Name() string { return "file" }

func (f *FileOutput) Send(_ context.Context, batch Batch) error {
	return f.write(batch)
}

func (f *FileOutput) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// ConsoleOutput prints JSON lines to stdout.
type ConsoleOutput struct {
	jsonLines
}

func NewConsoleOutput() *ConsoleOutput {
	return NewWriterOutput(os.Stdout)
}

// NewWriterOutput prints JSON lines to w.
func NewWriterOutput(w io.Writer) *ConsoleOutput {
	return &ConsoleOutput{jsonLines: jsonLines{w: w}}
}

func (c *ConsoleOutput) Name() string { return "console" }

func (c *ConsoleOutput) Send(_ context.Context, batch Batch) error {
	return c.write(batch)
}

func (c *ConsoleOutput) Close() error { return nil }
