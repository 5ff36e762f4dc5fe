package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zqywuxie/invoice-management/utils"
)

// Record types. Invoice-backed records carry the printed invoice number and
// the parsed fields are authoritative; manual records carry a generated
// number and no source file.
const (
	RecordTypeInvoice = "invoice"
	RecordTypeManual  = "manual"
)

// FilePathManual marks records that have no source document.
const FilePathManual = "MANUAL"

// Reimbursement status values.
const (
	ReimbursementPending = "未报销"
	ReimbursementDone    = "已报销"
)

type Invoice struct {
	ID            int    `gorm:"primary_key" json:"id"`
	InvoiceNumber string `gorm:"uniqueIndex:idx_invoice_number;size:255;not null" json:"invoice_number"`
	InvoiceDate   string `gorm:"index:idx_invoice_date;size:10;not null" json:"invoice_date"`
	ItemName      string `gorm:"size:255" json:"item_name"`
	// Amount is stored with TEXT affinity. SQLite's NUMERIC affinity would
	// coerce "16.04" into a binary float; TEXT keeps the decimal exact on
	// the round trip.
	Amount              decimal.Decimal `gorm:"type:text;not null" json:"amount"`
	Remark              string          `gorm:"type:text" json:"remark"`
	FilePath            string          `gorm:"size:512;not null" json:"file_path"`
	ScanTime            time.Time       `gorm:"not null" json:"scan_time"`
	UploadedBy          string          `gorm:"size:255" json:"uploaded_by"`
	ReimbursementStatus string          `gorm:"size:32" json:"reimbursement_status"`
	RecordType          string          `gorm:"index:idx_record_type;size:32" json:"record_type"`
}

// NewManualRecord is the input shape for manual ("no invoice") reimbursement
// records. The identifier is generated, never supplied.
type NewManualRecord struct {
	ItemName    string `json:"item_name" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	InvoiceDate string `json:"invoice_date" binding:"required"`
	Remark      string `json:"remark"`
	ForceCreate bool   `json:"force_create"`
}

// AddResult reports the outcome of a single admission attempt.
type AddResult struct {
	Success bool `json:"success"`
	// IsDuplicate is set on a hard invoice-number collision. Never
	// overridable.
	IsDuplicate bool `json:"is_duplicate"`
	// IsDuplicateWarning is set when a manual record matches the similarity
	// key of an existing manual record. Overridable with force.
	IsDuplicateWarning bool     `json:"is_duplicate_warning"`
	OriginalInvoice    *Invoice `json:"original_invoice,omitempty"`
	Message            string   `json:"message"`
}

// InvoiceSummary is derived from the current record set, never stored.
type InvoiceSummary struct {
	TotalCount    int             `json:"total_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	InvoiceCount  int             `json:"invoice_count"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	ManualCount   int             `json:"manual_count"`
	ManualAmount  decimal.Decimal `json:"manual_amount"`
}

// BatchResult is the outcome of processing a batch of inputs.
// SuccessCount + DuplicateCount + ErrorCount always equals the batch size.
type BatchResult struct {
	SuccessCount   int      `json:"success_count"`
	DuplicateCount int      `json:"duplicate_count"`
	ErrorCount     int      `json:"error_count"`
	Errors         []string `json:"errors"`
}

// Validate checks the fields an invoice-backed record must carry before
// admission. Returns a field -> message map, empty when valid.
func (inv *Invoice) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		errs["invoice_number"] = "发票号码不能为空"
	}
	if strings.TrimSpace(inv.InvoiceDate) == "" {
		errs["invoice_date"] = "开票日期不能为空"
	}
	if inv.Amount.LessThanOrEqual(decimal.Zero) {
		errs["amount"] = "金额必须大于0"
	}
	return errs
}

// IsManual reports whether the record was entered by hand.
func (inv *Invoice) IsManual() bool {
	return inv.RecordType == RecordTypeManual
}

// Validate checks required fields and formats for a manual entry. The parsed
// amount is returned so the caller does not parse twice. Returns a
// field -> message map, empty when valid.
func (input *NewManualRecord) Validate() (decimal.Decimal, map[string]string) {
	errs := make(map[string]string)

	if strings.TrimSpace(input.ItemName) == "" {
		errs["item_name"] = "费用项目名称不能为空"
	}

	amount := decimal.Zero
	if strings.TrimSpace(input.Amount) == "" {
		errs["amount"] = "金额不能为空"
	} else {
		parsed, err := utils.ParseAmount(input.Amount)
		if err != nil {
			errs["amount"] = "金额格式无效"
		} else if parsed.LessThanOrEqual(decimal.Zero) {
			errs["amount"] = "金额必须大于0"
		} else {
			amount = parsed
		}
	}

	if strings.TrimSpace(input.InvoiceDate) == "" {
		errs["invoice_date"] = "日期不能为空"
	} else if _, err := time.Parse("2006-01-02", strings.TrimSpace(input.InvoiceDate)); err != nil {
		errs["invoice_date"] = "日期格式无效，请使用YYYY-MM-DD格式"
	}

	return amount, errs
}

// GenerateManualRecordID builds a unique identifier for manual records:
// MANUAL-YYYYMMDD-HHMMSS-XXXX, e.g. MANUAL-20251228-143052-A3F2.
func GenerateManualRecordID() string {
	now := time.Now()
	random := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("MANUAL-%s-%s-%s", now.Format("20060102"), now.Format("150405"), random)
}
