package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/storage"
	"github.com/FranksOps/rankwatch/internal/storage/csvbackend"
	"github.com/FranksOps/rankwatch/internal/storage/jsonbackend"
	"github.com/FranksOps/rankwatch/internal/storage/sheets"
	"github.com/FranksOps/rankwatch/internal/storage/sqlite"
	"github.com/FranksOps/rankwatch/internal/storage/xlsxbackend"
)

// sheetPrefix selects the Google Sheets backend in place of a file path,
// optionally followed by a tab title: "sheet:" or "sheet:2026-10-09".
const sheetPrefix = "sheet:"

var errUnsupportedFormat = errors.New("unsupported report format")

type sheetOptions struct {
	SpreadsheetID   string
	CredentialsFile string
}

// openBackend picks a storage backend from the file extension of target,
// or the Sheets backend for "sheet:" targets.
func openBackend(ctx context.Context, target string, so sheetOptions, logger *slog.Logger) (storage.Backend, error) {
	if tab, ok := strings.CutPrefix(target, sheetPrefix); ok {
		return sheets.New(ctx, sheets.Config{
			SpreadsheetID:   so.SpreadsheetID,
			CredentialsFile: so.CredentialsFile,
			Tab:             tab,
			Logger:          logger,
		})
	}

	switch strings.ToLower(filepath.Ext(target)) {
	case ".xlsx":
		return xlsxbackend.New(target)
	case ".csv":
		return csvbackend.New(target)
	case ".json":
		return jsonbackend.New(target)
	case ".db", ".sqlite", ".sqlite3":
		return sqlite.New(target)
	default:
		return nil, fmt.Errorf("%w: %q (use .xlsx, .csv, .json, .db or %s)", errUnsupportedFormat, target, sheetPrefix)
	}
}

// loadTable reads a report through the backend matching target.
func loadTable(ctx context.Context, target string, so sheetOptions, logger *slog.Logger) (*storage.Table, error) {
	b, err := openBackend(ctx, target, so, logger)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	t, err := b.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", target, err)
	}
	return t, nil
}

// saveTable writes t to every target concurrently.
func saveTable(ctx context.Context, t *storage.Table, targets []string, so sheetOptions, logger *slog.Logger) error {
	backends := make([]storage.Backend, 0, len(targets))
	defer func() {
		for _, b := range backends {
			if err := b.Close(); err != nil {
				logger.Warn("failed to close backend", "err", err)
			}
		}
	}()

	for _, target := range targets {
		b, err := openBackend(ctx, target, so, logger)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}
	return storage.SaveAll(ctx, t, backends...)
}

// writeSummaryFiles writes the optional JSON and HTML summaries.
func writeSummaryFiles(s report.Summary, jsonPath, htmlPath string) error {
	write := func(path string, render func(f *os.File) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := render(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	if err := write(jsonPath, func(f *os.File) error { return report.WriteJSON(f, s) }); err != nil {
		return err
	}
	return write(htmlPath, func(f *os.File) error { return report.WriteHTML(f, s) })
}
