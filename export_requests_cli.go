package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultExportDir = "csv_export"
	exportPageSize   = MaxLimit
	exportTimeFormat = time.RFC3339
)

// RequestExportOptions narrows the exported request history.
type RequestExportOptions struct {
	Topic     string
	OutputDir string
}

// RequestExporter writes the request history as CSV.
type RequestExporter struct {
	requests *RequestStore
	logger   Logger
}

func NewRequestExporter(requests *RequestStore, logger Logger) *RequestExporter {
	return &RequestExporter{requests: requests, logger: logger}
}

// ExportToCSV writes every matching request, oldest first, page by page.
func (e *RequestExporter) ExportToCSV(writer io.Writer, options RequestExportOptions) (int, error) {
	csvWriter := csv.NewWriter(writer)
	defer csvWriter.Flush()

	header := []string{"ID", "Method", "Status", "DApp", "DAppURL", "Topic", "ChainID", "ErrorCode", "ErrorMessage", "TxHash", "CreatedAt", "UpdatedAt"}
	if err := csvWriter.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header to CSV: %w", err)
	}

	asc := SortTypeAscending
	written := 0
	for offset := uint32(0); ; offset += exportPageSize {
		records, err := e.requests.List(RequestFilter{Topic: options.Topic}, &ListOptions{
			Offset: offset,
			Limit:  exportPageSize,
			Sort:   &asc,
		})
		if err != nil {
			return written, fmt.Errorf("failed to get requests: %w", err)
		}

		for _, rec := range records {
			errorCode := ""
			if rec.ErrorCode != 0 {
				errorCode = strconv.Itoa(rec.ErrorCode)
			}
			row := []string{
				strconv.FormatUint(rec.ID, 10),
				rec.Method,
				string(rec.Status),
				rec.DAppName,
				rec.DAppURL,
				rec.Topic,
				rec.ChainID,
				errorCode,
				rec.ErrorMessage,
				rec.TxHash,
				rec.CreatedAt.UTC().Format(exportTimeFormat),
				rec.UpdatedAt.UTC().Format(exportTimeFormat),
			}
			if err := csvWriter.Write(row); err != nil {
				return written, fmt.Errorf("failed to write row to CSV: %w", err)
			}
			written++
		}

		if len(records) < exportPageSize {
			return written, nil
		}
	}
}

// ExportToFile exports the requests to a timestamped CSV file in options.OutputDir.
func (e *RequestExporter) ExportToFile(options RequestExportOptions) (string, error) {
	if options.OutputDir == "" {
		options.OutputDir = defaultExportDir
	}
	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", options.OutputDir, err)
	}

	fileName := filepath.Join(options.OutputDir, fmt.Sprintf("requests_%s.csv", time.Now().UTC().Format("20060102T150405Z")))
	file, err := os.Create(fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file %s: %w", fileName, err)
	}
	defer file.Close()

	count, err := e.ExportToCSV(file, options)
	if err != nil {
		return "", fmt.Errorf("failed to export to CSV: %w", err)
	}
	e.logger.Info("requests exported", "count", count)

	return fileName, nil
}

func runExportRequestsCli(logger Logger) {
	logger = logger.NewSystem("export-requests")
	if len(os.Args) > 4 {
		logger.Fatal("Usage: wcnode export-requests [outputDir] [topic]")
	}

	options := RequestExportOptions{OutputDir: defaultExportDir}
	if len(os.Args) > 2 {
		options.OutputDir = os.Args[2]
	}
	if len(os.Args) > 3 {
		options.Topic = os.Args[3]
	}

	loadDotEnv(logger)
	dbConf, err := loadDatabaseConfig()
	if err != nil {
		logger.Fatal("Failed to load database configuration", "error", err)
	}

	db, err := ConnectToDB(dbConf, logger)
	if err != nil {
		logger.Fatal("Failed to setup database", "error", err)
	}

	exporter := NewRequestExporter(NewRequestStore(db), logger)
	fileName, err := exporter.ExportToFile(options)
	if err != nil {
		logger.Fatal("Failed to export requests", "error", err)
	}
	logger.Info("Successfully exported requests", "file", fileName)
}
