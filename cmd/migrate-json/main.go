// migrate-json moves ledger records from the legacy JSON data file into
// the SQLite database, then renames the JSON file to .bak so the
// migration never runs twice.
//
// Usage:
//
//	DB_PATH=data/invoices.db JSON_PATH=data/invoices.json go run ./cmd/migrate-json
//
// Records already present in the database (by invoice number) are
// skipped; any other per-record failure is reported and migration
// continues with the next record.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zqywuxie/invoice-management/config"
	"github.com/zqywuxie/invoice-management/models"
)

const defaultJSONPath = "data/invoices.json"

// legacyRecord is the JSON shape of the pre-SQLite data file. Uploader,
// reimbursement status and record type arrived after the JSON era, so
// they are optional and defaulted like the schema backfills.
type legacyRecord struct {
	InvoiceNumber       string `json:"invoice_number"`
	InvoiceDate         string `json:"invoice_date"`
	ItemName            string `json:"item_name"`
	Amount              string `json:"amount"`
	Remark              string `json:"remark"`
	FilePath            string `json:"file_path"`
	ScanTime            string `json:"scan_time"`
	UploadedBy          string `json:"uploaded_by"`
	ReimbursementStatus string `json:"reimbursement_status"`
	RecordType          string `json:"record_type"`
}

func main() {
	jsonPath := os.Getenv("JSON_PATH")
	if jsonPath == "" {
		jsonPath = defaultJSONPath
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Printf("no JSON data file at %s, nothing to migrate\n", jsonPath)
			return
		}
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", jsonPath, err)
		os.Exit(1)
	}

	var records []legacyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse %s: %v\n", jsonPath, err)
		os.Exit(1)
	}

	config.ConnectDatabase()
	models.MigrateTable()

	ctx := context.Background()
	migrated, skipped := 0, 0
	var migrationErrs []string

	for _, record := range records {
		invoice, err := toInvoice(record)
		if err != nil {
			migrationErrs = append(migrationErrs, fmt.Sprintf("发票 %s: %v", record.InvoiceNumber, err))
			continue
		}
		if err := models.InsertInvoice(ctx, invoice); err != nil {
			if errors.Is(err, models.ErrDuplicateInvoice) {
				skipped++
				continue
			}
			migrationErrs = append(migrationErrs, fmt.Sprintf("发票 %s: %v", record.InvoiceNumber, err))
			continue
		}
		migrated++
	}

	fmt.Printf("migrated=%d skipped=%d errors=%d\n", migrated, skipped, len(migrationErrs))
	for _, msg := range migrationErrs {
		fmt.Fprintln(os.Stderr, msg)
	}
	if len(migrationErrs) > 0 {
		// Keep the JSON file so the failing records are not lost.
		os.Exit(1)
	}

	backupPath := jsonPath + ".bak"
	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to remove old backup %s: %v\n", backupPath, err)
		os.Exit(1)
	}
	if err := os.Rename(jsonPath, backupPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to rename %s: %v\n", jsonPath, err)
		os.Exit(1)
	}
	fmt.Printf("renamed %s -> %s\n", jsonPath, backupPath)
}

func toInvoice(record legacyRecord) (*models.Invoice, error) {
	amount, err := decimal.NewFromString(record.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", record.Amount, err)
	}

	scanTime := time.Now()
	if record.ScanTime != "" {
		parsed, err := time.Parse(time.RFC3339, record.ScanTime)
		if err != nil {
			// The JSON era wrote naive local timestamps without a zone.
			parsed, err = time.ParseInLocation("2006-01-02T15:04:05", record.ScanTime, time.Local)
		}
		if err == nil {
			scanTime = parsed
		}
	}

	status := record.ReimbursementStatus
	if status == "" {
		status = models.ReimbursementPending
	}
	recordType := record.RecordType
	if recordType == "" {
		if record.FilePath == models.FilePathManual {
			recordType = models.RecordTypeManual
		} else {
			recordType = models.RecordTypeInvoice
		}
	}

	return &models.Invoice{
		InvoiceNumber:       record.InvoiceNumber,
		InvoiceDate:         record.InvoiceDate,
		ItemName:            record.ItemName,
		Amount:              amount,
		Remark:              record.Remark,
		FilePath:            record.FilePath,
		ScanTime:            scanTime,
		UploadedBy:          record.UploadedBy,
		ReimbursementStatus: status,
		RecordType:          recordType,
	}, nil
}
