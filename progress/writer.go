package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// WriterReporter renders one status line per job to a writer, typically
// os.Stderr. Intermediate updates rewrite the line in place; a terminal
// update ends it with a newline.
type WriterReporter struct {
	writer io.Writer
	now    func() time.Time
	jobs   map[string]*jobLine
	mu     sync.Mutex
}

type jobLine struct {
	filename  string
	startTime time.Time
}

// NewWriterReporter creates a reporter writing to w.
func NewWriterReporter(w io.Writer) *WriterReporter {
	return &WriterReporter{
		writer: w,
		now:    time.Now,
		jobs:   make(map[string]*jobLine),
	}
}

func (p *WriterReporter) Initialize(_ context.Context, docID, filename string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.jobs[docID] = &jobLine{filename: filename, startTime: p.now()}
	_, err := fmt.Fprintf(p.writer, "\r%s: queued", filename)
	return err
}

func (p *WriterReporter) Update(_ context.Context, docID string, update Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, ok := p.jobs[docID]
	if !ok {
		// Updates for jobs this reporter never saw start their clock now.
		job = &jobLine{filename: docID, startTime: p.now()}
		p.jobs[docID] = job
	}
	elapsed := p.now().Sub(job.startTime).Round(time.Millisecond)

	line := fmt.Sprintf("\r%s: %s %d%% (%s)", job.filename, update.Stage, update.Progress, elapsed)
	if update.Error != "" {
		line += " - " + update.Error
	}
	if update.Terminal() {
		delete(p.jobs, docID)
		line += "\n"
	}
	_, err := io.WriteString(p.writer, line)
	return err
}
