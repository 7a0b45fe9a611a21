package receipt

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
)

// JournalPattern matches the files written by Journal.
const JournalPattern = "sales-*.jsonl.gz"

const maxJournalFiles = 999

// Journal appends receipts as gzip-compressed JSON lines. It writes one file
// per day and opens a fresh numbered file whenever it starts a day, so it
// never appends to a file another process wrote. Each record is flushed
// before Deliver returns.
type Journal struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
	gz  *pgzip.Writer
	buf jx.Encoder
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalClock overrides the time source used for file rotation.
func WithJournalClock(now func() time.Time) JournalOption {
	return func(j *Journal) { j.now = now }
}

// WithJournalLocation sets the timezone that defines day boundaries.
func WithJournalLocation(loc *time.Location) JournalOption {
	return func(j *Journal) { j.loc = loc }
}

// NewJournal creates dir if needed and returns a Journal writing into it.
func NewJournal(dir string, opts ...JournalOption) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", dir)
	}
	j := &Journal{
		dir: dir,
		loc: time.Local,
		now: time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// JournalFile returns the name of the seq-th file opened on the day of t.
func JournalFile(t time.Time, seq int) string {
	return fmt.Sprintf("sales-%s-%03d.jsonl.gz", t.Format("20060102"), seq)
}

// Deliver implements Sink.
func (j *Journal) Deliver(ctx context.Context, r Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rotate(j.now().In(j.loc)); err != nil {
		return err
	}

	j.buf.Reset()
	r.Encode(&j.buf)
	j.buf.RawStr("\n")
	if _, err := j.gz.Write(j.buf.Bytes()); err != nil {
		return errors.Wrap(err, "write journal record")
	}
	if err := j.gz.Flush(); err != nil {
		return errors.Wrap(err, "flush journal")
	}
	return nil
}

func (j *Journal) rotate(now time.Time) error {
	day := now.Format("20060102")
	if j.gz != nil && day == j.day {
		return nil
	}
	if err := j.closeLocked(); err != nil {
		return err
	}

	// A file left by an earlier process may end in a torn gzip member, so
	// every open starts a file of its own.
	for seq := 1; seq <= maxJournalFiles; seq++ {
		name := JournalFile(now, seq)
		f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "open journal %s", name)
		}
		j.f = f
		j.gz = pgzip.NewWriter(f)
		j.day = day
		return nil
	}
	return errors.Errorf("journal %s: more than %d files", day, maxJournalFiles)
}

func (j *Journal) closeLocked() error {
	if j.gz == nil {
		return nil
	}
	gzErr := j.gz.Close()
	fErr := j.f.Close()
	j.gz, j.f, j.day = nil, nil, ""
	if gzErr != nil {
		return errors.Wrap(gzErr, "close journal gzip")
	}
	if fErr != nil {
		return errors.Wrap(fErr, "close journal file")
	}
	return nil
}

// Close flushes and closes the current file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

// ReadJournal calls fn for every receipt in a journal file.
//
// A journal whose writer never closed it ends without a gzip trailer. Every
// record was flushed, so reading stops cleanly after the last complete line
// and a torn trailing line is dropped.
func ReadJournal(ctx context.Context, path string, fn func(Receipt) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if errors.Is(err, io.EOF) {
		// Created but nothing was flushed yet.
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	br := bufio.NewReaderSize(gz, 64*1024)
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, readErr := br.ReadBytes('\n')
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.ErrUnexpectedEOF):
			return nil
		case errors.Is(readErr, io.EOF):
			if len(data) == 0 {
				return nil
			}
		default:
			return errors.Wrapf(readErr, "read %s", path)
		}
		line++

		data = bytes.TrimSpace(data)
		if len(data) > 0 {
			var r Receipt
			if err := r.Decode(jx.DecodeBytes(data)); err != nil {
				return errors.Wrapf(err, "%s:%d", path, line)
			}
			if err := fn(r); err != nil {
				return err
			}
		}
		if readErr != nil {
			return nil
		}
	}
}
