// Package report joins the uploaded CSV files and writes the derived report.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nilay/reportgen/internal/model"
	"github.com/nilay/reportgen/internal/transform"
)

// Params describes one report generation run.
type Params struct {
	MainPath string
	Ref1Path string // empty when the reference file was not uploaded
	Ref2Path string

	// JoinColumn is the identifier column name in the reference files;
	// MainIDColumn is the identifier's fixed column index in the main file.
	JoinColumn   string
	MainIDColumn int

	// Fields is the ordered list of output field ids; Rules maps each field
	// to its transformation. A field without a rule produces an empty column.
	Fields []int
	Rules  map[int]model.TransformationRule

	OutputDir string
}

// Output describes the produced report file.
type Output struct {
	Name        string
	Path        string
	ContentType string
}

// Generate builds the report: reference files are loaded fully into lookup
// maps, the main file is streamed row by row, and every output cell is
// derived by the transformation engine. Any per-row failure removes the
// partial output and fails the run; partial reports are never surfaced.
func Generate(ctx context.Context, p Params) (*Output, error) {
	var ref1, ref2 map[string]transform.Row

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ref1, err = loadReference(gctx, p.Ref1Path, p.JoinColumn)
		return err
	})
	g.Go(func() error {
		var err error
		ref2, err = loadReference(gctx, p.Ref2Path, p.JoinColumn)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}

	name := randomFileName() + ".csv"
	path := filepath.Join(p.OutputDir, name)

	if err := writeReport(ctx, p, ref1, ref2, path); err != nil {
		// Never leave a half-written report behind.
		os.Remove(path)
		return nil, err
	}

	contentType := "text/csv"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	return &Output{Name: name, Path: path, ContentType: contentType}, nil
}

func writeReport(ctx context.Context, p Params, ref1, ref2 map[string]transform.Row, outPath string) error {
	in, err := os.Open(p.MainPath)
	if err != nil {
		return fmt.Errorf("open main file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer out.Close()

	reader := csv.NewReader(in)
	writer := csv.NewWriter(out)

	// Skip the main file's header row.
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("read main header: %w", err)
	}

	header := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		if rule, ok := p.Rules[f]; ok {
			header[i] = rule.ColumnName
		}
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("report generation canceled: %w", err)
		}

		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read main row: %w", err)
		}

		mainRow := transform.Row(record)
		if p.MainIDColumn < 0 || p.MainIDColumn >= len(mainRow) {
			return fmt.Errorf("main row has no identifier column %d", p.MainIDColumn)
		}
		id := mainRow[p.MainIDColumn]

		outRow := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			rule, ok := p.Rules[f]
			if !ok {
				continue
			}
			val, present, err := transform.Evaluate(rule, mainRow, ref1[id], ref2[id])
			if err != nil {
				return fmt.Errorf("transform row for id %q: %w", id, err)
			}
			if present {
				outRow[i] = val
			}
		}

		if err := writer.Write(outRow); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// loadReference reads a whole reference file into a map keyed by the join
// identifier. Duplicate identifiers are last-write-wins. A missing path
// yields a nil map; lookups against it are null rows.
func loadReference(ctx context.Context, path, joinColumn string) (map[string]transform.Row, error) {
	if path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open reference file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read reference header: %w", err)
	}

	idCol := -1
	for i, col := range header {
		if col == joinColumn {
			idCol = i
			break
		}
	}
	if idCol == -1 {
		return nil, fmt.Errorf("reference file %s has no %q column", filepath.Base(path), joinColumn)
	}

	rows := make(map[string]transform.Row)
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read reference row: %w", err)
		}
		if idCol >= len(record) {
			continue
		}
		rows[record[idCol]] = transform.Row(record)
	}
	return rows, nil
}

// randomFileName mirrors the upload naming scheme: a short random prefix plus
// a date stamp, so re-runs never collide with earlier outputs.
func randomFileName() string {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return prefix + time.Now().UTC().Format("060102")
}
