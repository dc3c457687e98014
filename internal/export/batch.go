package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"CrawlerJobStreet/internal/model"
)

// Batch appends records page by page to files created up front with their
// headers. A lock file next to the main CSV keeps two crawlers from
// interleaving rows.
type Batch struct {
	mainPath      string
	secondaryPath string
	lock          *flock.Flock
	rows          int
	secondaryRows int
	log           *logrus.Entry
}

// NewBatch pre-creates the main and secondary files.
func (e *Exporter) NewBatch() (*Batch, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}
	ts := e.now().Format(timestampLayout)
	b := &Batch{
		mainPath:      e.path(ts, "main", "csv"),
		secondaryPath: e.path(ts, "secondary", "csv.gz"),
		log:           e.log.WithField("mode", "batch"),
	}
	b.lock = flock.New(b.mainPath + ".lock")

	ctx := context.Background()
	err := createWith(b.mainPath, func(w io.Writer) error {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
		return writeMain(ctx, w, nil, true)
	})
	if err != nil {
		return nil, err
	}
	err = createWith(b.secondaryPath, func(w io.Writer) error {
		return writeSecondaryGzip(ctx, w, nil, true)
	})
	if err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{"main": b.mainPath, "secondary": b.secondaryPath}).Info("batch export files created")
	return b, nil
}

// WritePage appends one page of records to both files.
func (b *Batch) WritePage(ctx context.Context, records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	locked, err := b.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("locking %s: %w", b.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("could not lock %s", b.lock.Path())
	}
	defer func() { _ = b.lock.Unlock() }()

	withReq := hasRequirements(records)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return appendTo(b.mainPath, func(w io.Writer) error {
			return writeMain(gctx, w, records, false)
		})
	})
	if withReq {
		g.Go(func() error {
			return appendTo(b.secondaryPath, func(w io.Writer) error {
				return writeSecondaryGzip(gctx, w, records, false)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.rows += len(records)
	if withReq {
		for _, r := range records {
			if r.Requirements != nil && *r.Requirements != "" {
				b.secondaryRows++
			}
		}
	}
	b.log.WithFields(logrus.Fields{"page_rows": len(records), "total_rows": b.rows}).Info("batch page appended")
	return nil
}

// Finish returns the output paths. A secondary file that never got a row is
// removed and reported as ""; a main file without rows becomes the no-data
// placeholder.
func (b *Batch) Finish() (mainPath, secondaryPath string, err error) {
	defer os.Remove(b.lock.Path())

	if b.secondaryRows == 0 {
		if err := os.Remove(b.secondaryPath); err != nil && !os.IsNotExist(err) {
			return "", "", fmt.Errorf("removing empty %s: %w", b.secondaryPath, err)
		}
	} else {
		secondaryPath = b.secondaryPath
	}
	if b.rows == 0 {
		if err := writePlaceholder(b.mainPath); err != nil {
			return "", "", err
		}
	}
	return b.mainPath, secondaryPath, nil
}

func appendTo(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return f.Close()
}
