package models

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zqywuxie/invoice-management/config"
)

func setupStore(t *testing.T) {
	t.Helper()
	config.ConnectDatabaseAt(filepath.Join(t.TempDir(), "invoices.db"))
	MigrateTable()
}

func storedInvoice(number string, amount string) *Invoice {
	return &Invoice{
		InvoiceNumber:       number,
		InvoiceDate:         "2025-10-13",
		ItemName:            "*快递服务*收派服务费",
		Amount:              decimal.RequireFromString(amount),
		FilePath:            "uploads/" + number + ".pdf",
		ScanTime:            time.Now(),
		UploadedBy:          "张三",
		ReimbursementStatus: ReimbursementPending,
		RecordType:          RecordTypeInvoice,
	}
}

func TestInsertInvoiceUniqueNumber(t *testing.T) {
	setupStore(t)
	ctx := context.Background()

	if err := InsertInvoice(ctx, storedInvoice("12345678", "17.00")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := InsertInvoice(ctx, storedInvoice("12345678", "99.00"))
	if !errors.Is(err, ErrDuplicateInvoice) {
		t.Errorf("second insert err = %v, want ErrDuplicateInvoice", err)
	}
}

func TestAmountRoundTripIsExact(t *testing.T) {
	setupStore(t)
	ctx := context.Background()

	// 16.04 has no exact binary-float representation; the TEXT column must
	// return the stored digits unchanged.
	if err := InsertInvoice(ctx, storedInvoice("20250001", "16.04")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := FindInvoiceByNumber(ctx, "20250001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Amount.String() != "16.04" {
		t.Errorf("Amount = %s after round trip, want 16.04", got.Amount)
	}
}

func TestDeleteInvoiceByNumber(t *testing.T) {
	setupStore(t)
	ctx := context.Background()

	InsertInvoice(ctx, storedInvoice("20250002", "10"))

	deleted, err := DeleteInvoiceByNumber(ctx, "20250002")
	if err != nil || !deleted {
		t.Fatalf("delete = %v, %v", deleted, err)
	}
	deleted, err = DeleteInvoiceByNumber(ctx, "20250002")
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if deleted {
		t.Error("second delete reported a row")
	}
	if _, err := FindInvoiceByNumber(ctx, "20250002"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("find after delete: err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestCheckManualDuplicateKeyShape(t *testing.T) {
	setupStore(t)
	ctx := context.Background()

	manual := storedInvoice("MANUAL-20251228-143052-A3F2", "50")
	manual.FilePath = FilePathManual
	manual.RecordType = RecordTypeManual
	manual.ItemName = "打车"
	if err := InsertInvoice(ctx, manual); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hit, err := CheckManualDuplicate(ctx, decimal.RequireFromString("50"), "2025-10-13", "打车", "张三")
	if err != nil {
		t.Fatalf("CheckManualDuplicate: %v", err)
	}
	if hit == nil || hit.InvoiceNumber != manual.InvoiceNumber {
		t.Fatalf("hit = %v, want the manual record", hit)
	}

	// Every key component participates.
	for name, args := range map[string][4]string{
		"amount":   {"50.01", "2025-10-13", "打车", "张三"},
		"date":     {"50", "2025-10-14", "打车", "张三"},
		"item":     {"50", "2025-10-13", "地铁", "张三"},
		"uploader": {"50", "2025-10-13", "打车", "李四"},
	} {
		miss, err := CheckManualDuplicate(ctx, decimal.RequireFromString(args[0]), args[1], args[2], args[3])
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if miss != nil {
			t.Errorf("%s variation still matched", name)
		}
	}

	// Invoice-backed rows with identical fields never count.
	inv := storedInvoice("20250003", "50")
	inv.ItemName = "打车"
	InsertInvoice(ctx, inv)
	hit, _ = CheckManualDuplicate(ctx, decimal.RequireFromString("50"), "2025-10-13", "打车", "张三")
	if hit != nil && hit.RecordType != RecordTypeManual {
		t.Error("CheckManualDuplicate matched an invoice-backed record")
	}
}

func TestSearchMatchesAllTextFields(t *testing.T) {
	setupStore(t)
	ctx := context.Background()

	inv := storedInvoice("88880001", "123.45")
	inv.Remark = "九月报销批次"
	InsertInvoice(ctx, inv)

	for name, keyword := range map[string]string{
		"number":   "8888",
		"date":     "2025-10",
		"item":     "快递",
		"amount":   "123.45",
		"remark":   "九月",
		"path":     "88880001.pdf",
		"uploader": "张三",
	} {
		got, err := SearchInvoices(ctx, keyword)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != 1 {
			t.Errorf("search by %s (%q) = %d records, want 1", name, keyword, len(got))
		}
	}

	got, err := SearchInvoices(ctx, "")
	if err != nil {
		t.Fatalf("empty search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("empty keyword = %d records, want all", len(got))
	}
}

func TestMigrateTableIsIdempotent(t *testing.T) {
	config.ConnectDatabaseAt(filepath.Join(t.TempDir(), "invoices.db"))
	MigrateTable()

	ctx := context.Background()
	if err := InsertInvoice(ctx, storedInvoice("77770001", "10")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Startup runs migrations unconditionally; a second run must not touch
	// existing data.
	MigrateTable()
	MigrateTable()

	got, err := FindInvoiceByNumber(ctx, "77770001")
	if err != nil {
		t.Fatalf("find after re-migrate: %v", err)
	}
	if got.Amount.String() != "10" || got.ReimbursementStatus != ReimbursementPending {
		t.Errorf("record changed by re-migration: %+v", got)
	}
}

func TestMigrationBackfillsEmptyColumns(t *testing.T) {
	config.ConnectDatabaseAt(filepath.Join(t.TempDir(), "invoices.db"))
	MigrateTable()
	ctx := context.Background()

	// A row written before the status and type columns carried values.
	legacy := storedInvoice("66660001", "10")
	legacy.ReimbursementStatus = ""
	legacy.RecordType = ""
	if err := InsertInvoice(ctx, legacy); err != nil {
		t.Fatalf("insert: %v", err)
	}

	MigrateTable()

	got, err := FindInvoiceByNumber(ctx, "66660001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ReimbursementStatus != ReimbursementPending {
		t.Errorf("reimbursement_status = %q, want backfilled %q", got.ReimbursementStatus, ReimbursementPending)
	}
	if got.RecordType != RecordTypeInvoice {
		t.Errorf("record_type = %q, want backfilled %q", got.RecordType, RecordTypeInvoice)
	}
}

func TestGenerateManualRecordIDShape(t *testing.T) {
	id := GenerateManualRecordID()
	if len(id) != len("MANUAL-20251228-143052-A3F2") {
		t.Fatalf("unexpected id length: %q", id)
	}
	if id[:7] != "MANUAL-" {
		t.Errorf("id = %q, want MANUAL- prefix", id)
	}
	if other := GenerateManualRecordID(); other == id {
		t.Error("two generated ids collided")
	}
}
