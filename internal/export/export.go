// Package export writes scraped records as CSV: a main file with one row per
// listing and a gzip-compressed secondary file holding the long requirement
// texts keyed by job id.
package export

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"CrawlerJobStreet/internal/model"
)

const (
	timestampLayout = "20060102_150405"
	noDataMessage   = "No Data. Check log for details."
)

var (
	MainColumns = []string{
		"id",
		"job_platform",
		"search_keyword",
		"job_title",
		"job_location",
		"job_classification",
		"job_type",
		"job_salary_range",
		"job_posted_date",
		"job_apply_link",
		"job_url",
		"company_name",
		"company_rating",
		"company_business_type",
		"company_employees_count",
		"company_benefits",
	}
	SecondaryColumns = []string{"job_id", "job_requirements"}

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

type Exporter struct {
	dir    string
	prefix string
	now    func() time.Time
	log    *logrus.Entry
}

func New(dir, prefix string, log *logrus.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
		log:    log.WithField("component", "export"),
	}
}

// Export writes all records to new timestamped files. The secondary path is
// empty when no record has requirements; with no records at all a single
// placeholder file is written.
func (e *Exporter) Export(ctx context.Context, records []model.JobRecord) (mainPath, secondaryPath string, err error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating export dir: %w", err)
	}
	ts := e.now().Format(timestampLayout)

	if len(records) == 0 {
		path := e.path(ts, "", "csv")
		if err := writePlaceholder(path); err != nil {
			return "", "", err
		}
		e.log.WithField("file", path).Warn("no records, wrote placeholder")
		return path, "", nil
	}

	mainPath = e.path(ts, "main", "csv")
	if hasRequirements(records) {
		secondaryPath = e.path(ts, "secondary", "csv.gz")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return createWith(mainPath, func(w io.Writer) error {
			if _, err := w.Write(utf8BOM); err != nil {
				return err
			}
			return writeMain(ctx, w, records, true)
		})
	})
	if secondaryPath != "" {
		g.Go(func() error {
			return createWith(secondaryPath, func(w io.Writer) error {
				return writeSecondaryGzip(ctx, w, records, true)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return "", "", err
	}

	e.log.WithFields(logrus.Fields{"rows": len(records), "file": mainPath}).Info("exported main jobs")
	if secondaryPath != "" {
		e.log.WithField("file", secondaryPath).Info("exported secondary jobs")
	}
	return mainPath, secondaryPath, nil
}

func (e *Exporter) path(ts, kind, ext string) string {
	name := e.prefix
	if kind != "" {
		name += "_" + kind
	}
	return filepath.Join(e.dir, fmt.Sprintf("%s_%s.%s", name, ts, ext))
}

func createWith(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func writePlaceholder(path string) error {
	return createWith(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{noDataMessage}); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

func writeMain(ctx context.Context, w io.Writer, records []model.JobRecord, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(MainColumns); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(mainRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeSecondaryGzip writes one gzip member. Members appended later to the
// same file read back as a single stream.
func writeSecondaryGzip(ctx context.Context, w io.Writer, records []model.JobRecord, header bool) error {
	zw := gzip.NewWriter(w)
	cw := csv.NewWriter(zw)
	if header {
		if err := cw.Write(SecondaryColumns); err != nil {
			return err
		}
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Requirements == nil || *r.Requirements == "" {
			continue
		}
		if err := cw.Write([]string{strconv.Itoa(r.ID), *r.Requirements}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return zw.Close()
}

func mainRow(r model.JobRecord) []string {
	return []string{
		strconv.Itoa(r.ID),
		r.Platform,
		r.SearchKeyword,
		model.Deref(r.Title),
		model.Deref(r.Location),
		model.Deref(r.Classification),
		model.Deref(r.Type),
		model.Deref(r.SalaryRange),
		r.PostedDate.String(),
		model.Deref(r.ApplyLink),
		model.Deref(r.URL),
		model.Deref(r.CompanyProfile.Name),
		model.Deref(r.CompanyProfile.Rating),
		model.Deref(r.BusinessType),
		model.Deref(r.EmployeesCount),
		strings.Join(r.Benefits, "; "),
	}
}

func hasRequirements(records []model.JobRecord) bool {
	for _, r := range records {
		if r.Requirements != nil && *r.Requirements != "" {
			return true
		}
	}
	return false
}
