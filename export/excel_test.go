package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zqywuxie/invoice-management/models"
)

func TestWriteExcel(t *testing.T) {
	scanTime := time.Date(2025, 10, 13, 14, 30, 52, 0, time.Local)
	invoices := []*models.Invoice{
		{
			InvoiceNumber:       "25442000000123456789",
			InvoiceDate:         "2025-10-13",
			ItemName:            "*快递服务*收派服务费",
			Amount:              decimal.RequireFromString("17"),
			Remark:              "顺丰月结账单",
			FilePath:            "uploads/sf.pdf",
			ScanTime:            scanTime,
			UploadedBy:          "张三",
			ReimbursementStatus: models.ReimbursementPending,
			RecordType:          models.RecordTypeInvoice,
		},
		{
			InvoiceNumber:       "MANUAL-20251228-143052-A3F2",
			InvoiceDate:         "2025-10-14",
			ItemName:            "打车",
			Amount:              decimal.RequireFromString("50.5"),
			FilePath:            models.FilePathManual,
			ScanTime:            scanTime,
			UploadedBy:          "李四",
			ReimbursementStatus: models.ReimbursementDone,
			RecordType:          models.RecordTypeManual,
		},
	}

	var buf bytes.Buffer
	if err := WriteExcel(invoices, &buf); err != nil {
		t.Fatalf("WriteExcel: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("发票汇总")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 records", len(rows))
	}

	if rows[0][0] != "发票号码" || rows[0][4] != "金额" {
		t.Errorf("header row = %v", rows[0])
	}

	first := rows[1]
	if first[0] != "25442000000123456789" {
		t.Errorf("invoice number cell = %q", first[0])
	}
	if first[1] != "发票" {
		t.Errorf("record type cell = %q, want 发票", first[1])
	}
	if first[4] != "17.00" {
		t.Errorf("amount cell = %q, want two fixed decimals", first[4])
	}

	second := rows[2]
	if second[1] != "手动记录" {
		t.Errorf("manual record type cell = %q, want 手动记录", second[1])
	}
	if second[4] != "50.50" {
		t.Errorf("amount cell = %q, want 50.50", second[4])
	}
	if second[9] != models.ReimbursementDone {
		t.Errorf("status cell = %q, want %q", second[9], models.ReimbursementDone)
	}
}

func TestWriteExcelEmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExcel(nil, &buf); err != nil {
		t.Fatalf("WriteExcel: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("发票汇总")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}
