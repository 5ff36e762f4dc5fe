// Package manager orchestrates admission, deletion, searches and aggregate
// statistics over the invoice ledger. One InvoiceManager owns the in-memory
// mirror and the duplicate detector; every write goes through it so the
// mirror and the database never drift apart.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/zqywuxie/invoice-management/config"
	"github.com/zqywuxie/invoice-management/dedup"
	"github.com/zqywuxie/invoice-management/models"
	"github.com/zqywuxie/invoice-management/parser"
	"github.com/zqywuxie/invoice-management/utils"
)

// SummaryFilter scopes aggregate queries. Zero value means "everything".
type SummaryFilter struct {
	// RecordType limits to "invoice" or "manual" records when set.
	RecordType string
	// FromDate/ToDate bound the invoice date (inclusive, YYYY-MM-DD).
	FromDate string
	ToDate   string
}

// BatchInput is one unit of batch ingestion: the extracted text of a
// document plus its provenance.
type BatchInput struct {
	RawText    string `json:"raw_text"`
	SourcePath string `json:"source_path"`
	UploadedBy string `json:"uploaded_by"`
}

// UpdateFields carries the editable subset for manual records. Nil pointers
// leave the field untouched.
type UpdateFields struct {
	InvoiceDate *string `json:"invoice_date"`
	ItemName    *string `json:"item_name"`
	Amount      *string `json:"amount"`
	Remark      *string `json:"remark"`
}

type InvoiceManager struct {
	mu       sync.RWMutex
	invoices []*models.Invoice
	detector *dedup.Detector
	parser   *parser.InvoiceParser
	logger   *logrus.Logger
}

// NewInvoiceManager rebuilds the in-memory mirror and duplicate index from
// the persisted record set. Must run after the database is connected and
// migrated.
func NewInvoiceManager(ctx context.Context) (*InvoiceManager, error) {
	invoices, err := models.LoadAllInvoices(ctx)
	if err != nil {
		return nil, err
	}
	return &InvoiceManager{
		invoices: invoices,
		detector: dedup.NewDetector(invoices),
		parser:   parser.NewInvoiceParser(),
		logger:   config.GetLogger(),
	}, nil
}

// cloneInvoice returns a detached copy. Records handed out of the manager
// must never alias the mirror, whose entries are mutated in place under the
// write lock.
func cloneInvoice(invoice *models.Invoice) *models.Invoice {
	if invoice == nil {
		return nil
	}
	clone := *invoice
	return &clone
}

// AddInvoice admits one parsed invoice-backed record. Hard duplicates
// (invoice-number collisions) always fail; the conflicting record rides
// along in the result so the caller can show it.
func (m *InvoiceManager) AddInvoice(ctx context.Context, invoice *models.Invoice) models.AddResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detector.IsDuplicate(invoice.InvoiceNumber) {
		original := m.detector.GetOriginal(invoice.InvoiceNumber)
		return models.AddResult{
			Success:         false,
			IsDuplicate:     true,
			OriginalInvoice: cloneInvoice(original),
			Message:         fmt.Sprintf("重复发票：发票号码 %s 已存在", invoice.InvoiceNumber),
		}
	}

	if err := m.persist(ctx, invoice); err != nil {
		// A concurrent add may have won the race below the detector; the
		// unique index is authoritative. The conflicting record then comes
		// from storage.
		if err == models.ErrDuplicateInvoice {
			original, findErr := models.FindInvoiceByNumber(ctx, invoice.InvoiceNumber)
			if findErr != nil {
				original = nil
			}
			return models.AddResult{
				Success:         false,
				IsDuplicate:     true,
				OriginalInvoice: original,
				Message:         fmt.Sprintf("重复发票：发票号码 %s 已存在", invoice.InvoiceNumber),
			}
		}
		config.LogError(ctx, m.logger, "manager", "AddInvoice", "models.InsertInvoice", invoice.InvoiceNumber, err)
		return models.AddResult{
			Success: false,
			Message: "保存发票失败: " + err.Error(),
		}
	}

	return models.AddResult{
		Success: true,
		Message: fmt.Sprintf("发票 %s 添加成功", invoice.InvoiceNumber),
	}
}

// IngestDocument parses one extracted document text and admits the result.
// A text that does not yield the mandatory fields comes back as a
// field -> message map instead of a stored record.
func (m *InvoiceManager) IngestDocument(ctx context.Context, input BatchInput) (*models.Invoice, models.AddResult, map[string]string) {
	invoice := m.parser.Parse(input.RawText, input.SourcePath)
	invoice.UploadedBy = input.UploadedBy

	if fieldErrs := invoice.Validate(); len(fieldErrs) > 0 {
		return nil, models.AddResult{Success: false, Message: "无法识别为有效发票"}, fieldErrs
	}
	result := m.AddInvoice(ctx, invoice)
	return cloneInvoice(invoice), result, nil
}

// AddManualRecord admits a manual reimbursement record. A soft-key match
// against an existing manual record is a warning carrying the similar
// record; force pushes past the warning. The hard uniqueness invariant on
// the generated identifier still applies.
func (m *InvoiceManager) AddManualRecord(ctx context.Context, input *models.NewManualRecord, uploadedBy string) (models.AddResult, map[string]string) {
	amount, fieldErrs := input.Validate()
	if len(fieldErrs) > 0 {
		return models.AddResult{Success: false, Message: "验证失败"}, fieldErrs
	}

	itemName := strings.TrimSpace(input.ItemName)
	invoiceDate := strings.TrimSpace(input.InvoiceDate)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !input.ForceCreate {
		if similar := m.detector.FindSimilarManual(amount, invoiceDate, itemName, uploadedBy); similar != nil {
			return models.AddResult{
				Success:            false,
				IsDuplicateWarning: true,
				OriginalInvoice:    cloneInvoice(similar),
				Message:            "检测到相似的报销记录",
			}, nil
		}
		// The index is rebuilt at startup; if it ever drifts, storage is
		// authoritative.
		stored, err := models.CheckManualDuplicate(ctx, amount, invoiceDate, itemName, uploadedBy)
		if err != nil {
			config.LogError(ctx, m.logger, "manager", "AddManualRecord", "models.CheckManualDuplicate", itemName, err)
			return models.AddResult{Success: false, Message: "保存记录失败: " + err.Error()}, nil
		}
		if stored != nil {
			return models.AddResult{
				Success:            false,
				IsDuplicateWarning: true,
				OriginalInvoice:    stored,
				Message:            "检测到相似的报销记录",
			}, nil
		}
	}

	record := &models.Invoice{
		InvoiceNumber:       models.GenerateManualRecordID(),
		InvoiceDate:         invoiceDate,
		ItemName:            itemName,
		Amount:              amount,
		Remark:              strings.TrimSpace(input.Remark),
		FilePath:            models.FilePathManual,
		ScanTime:            time.Now(),
		UploadedBy:          uploadedBy,
		ReimbursementStatus: models.ReimbursementPending,
		RecordType:          models.RecordTypeManual,
	}

	if err := m.persist(ctx, record); err != nil {
		config.LogError(ctx, m.logger, "manager", "AddManualRecord", "models.InsertInvoice", record.InvoiceNumber, err)
		return models.AddResult{Success: false, Message: "保存记录失败: " + err.Error()}, nil
	}

	return models.AddResult{
		Success:         true,
		OriginalInvoice: cloneInvoice(record),
		Message:         "手动记录创建成功",
	}, nil
}

// persist writes through to storage, then updates the mirror and the
// detector with an owned copy so the caller's struct never aliases the
// mirror. Callers hold the write lock.
func (m *InvoiceManager) persist(ctx context.Context, invoice *models.Invoice) error {
	if err := models.InsertInvoice(ctx, invoice); err != nil {
		return err
	}
	owned := cloneInvoice(invoice)
	m.invoices = append(m.invoices, owned)
	m.detector.Register(owned)
	return nil
}

// DeleteInvoice removes a record from storage, mirror and detector. The
// false return means the number was not present.
func (m *InvoiceManager) DeleteInvoice(ctx context.Context, invoiceNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted, err := models.DeleteInvoiceByNumber(ctx, invoiceNumber)
	if err != nil {
		config.LogError(ctx, m.logger, "manager", "DeleteInvoice", "models.DeleteInvoiceByNumber", invoiceNumber, err)
		return false, err
	}
	if !deleted {
		return false, nil
	}

	for i, invoice := range m.invoices {
		if invoice.InvoiceNumber == invoiceNumber {
			m.invoices = append(m.invoices[:i], m.invoices[i+1:]...)
			break
		}
	}
	m.detector.Remove(invoiceNumber)
	return true, nil
}

// UpdateInvoice edits the restricted field subset of a manual record.
// Invoice-backed records are immutable after extraction and get
// ErrNotManualRecord. Field-level validation problems come back as a
// field -> message map.
func (m *InvoiceManager) UpdateInvoice(ctx context.Context, invoiceNumber string, fields *UpdateFields) (*models.Invoice, map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *models.Invoice
	for _, invoice := range m.invoices {
		if invoice.InvoiceNumber == invoiceNumber {
			target = invoice
			break
		}
	}
	if target == nil {
		return nil, nil, models.ErrInvoiceNotFound
	}
	if !target.IsManual() {
		return nil, nil, models.ErrNotManualRecord
	}

	fieldErrs := make(map[string]string)
	updates := make(map[string]interface{})

	newDate := target.InvoiceDate
	if fields.InvoiceDate != nil {
		newDate = strings.TrimSpace(*fields.InvoiceDate)
		if newDate == "" {
			fieldErrs["invoice_date"] = "日期不能为空"
		} else if _, err := time.Parse("2006-01-02", newDate); err != nil {
			fieldErrs["invoice_date"] = "日期格式无效，请使用YYYY-MM-DD格式"
		} else {
			updates["invoice_date"] = newDate
		}
	}

	newItemName := target.ItemName
	if fields.ItemName != nil {
		newItemName = strings.TrimSpace(*fields.ItemName)
		if newItemName == "" {
			fieldErrs["item_name"] = "费用项目名称不能为空"
		} else {
			updates["item_name"] = newItemName
		}
	}

	newAmount := target.Amount
	if fields.Amount != nil {
		parsed, err := utils.ParseAmount(*fields.Amount)
		if err != nil {
			fieldErrs["amount"] = "金额格式无效"
		} else if parsed.LessThanOrEqual(decimal.Zero) {
			fieldErrs["amount"] = "金额必须大于0"
		} else {
			newAmount = parsed
			updates["amount"] = parsed
		}
	}

	newRemark := target.Remark
	if fields.Remark != nil {
		newRemark = strings.TrimSpace(*fields.Remark)
		updates["remark"] = newRemark
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}
	if len(updates) == 0 {
		return cloneInvoice(target), nil, nil
	}

	if err := models.UpdateInvoiceFields(ctx, invoiceNumber, updates); err != nil {
		config.LogError(ctx, m.logger, "manager", "UpdateInvoice", "models.UpdateInvoiceFields", invoiceNumber, err)
		return nil, nil, err
	}

	// The soft key is derived from the edited fields; re-register so the
	// detector tracks the record's new identity.
	m.detector.Remove(invoiceNumber)
	target.InvoiceDate = newDate
	target.ItemName = newItemName
	target.Amount = newAmount
	target.Remark = newRemark
	m.detector.Register(target)

	return cloneInvoice(target), nil, nil
}

// SetReimbursementStatus flips a record between pending and reimbursed.
// Works on both record kinds; status is workflow state, not extracted data.
func (m *InvoiceManager) SetReimbursementStatus(ctx context.Context, invoiceNumber, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.detector.GetOriginal(invoiceNumber)
	if target == nil {
		return models.ErrInvoiceNotFound
	}
	if err := models.UpdateReimbursementStatus(ctx, invoiceNumber, status); err != nil {
		config.LogError(ctx, m.logger, "manager", "SetReimbursementStatus", "models.UpdateReimbursementStatus", invoiceNumber, err)
		return err
	}
	target.ReimbursementStatus = status
	return nil
}

// SearchInvoices matches the keyword as a case-insensitive substring across
// all textual fields. An empty keyword returns every record in stable
// insertion order.
func (m *InvoiceManager) SearchInvoices(ctx context.Context, keyword string) ([]*models.Invoice, error) {
	return models.SearchInvoices(ctx, keyword)
}

// GetAllInvoices returns detached copies of every record.
func (m *InvoiceManager) GetAllInvoices() []*models.Invoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Invoice, len(m.invoices))
	for i, invoice := range m.invoices {
		out[i] = cloneInvoice(invoice)
	}
	return out
}

// GetInvoice returns a detached copy of one record by number, or nil.
func (m *InvoiceManager) GetInvoice(invoiceNumber string) *models.Invoice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneInvoice(m.detector.GetOriginal(invoiceNumber))
}

// Summary recomputes aggregate statistics from the mirror. Decimal
// arithmetic throughout: the per-kind totals always add up to the overall
// total because they are sums over a partition of the same set.
func (m *InvoiceManager) Summary(filter *SummaryFilter) models.InvoiceSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := models.InvoiceSummary{
		TotalAmount:   decimal.Zero,
		InvoiceAmount: decimal.Zero,
		ManualAmount:  decimal.Zero,
	}

	for _, invoice := range m.invoices {
		if filter != nil {
			if filter.RecordType != "" && invoice.RecordType != filter.RecordType {
				continue
			}
			if filter.FromDate != "" && invoice.InvoiceDate < filter.FromDate {
				continue
			}
			if filter.ToDate != "" && invoice.InvoiceDate > filter.ToDate {
				continue
			}
		}
		summary.TotalCount++
		summary.TotalAmount = summary.TotalAmount.Add(invoice.Amount)
		if invoice.IsManual() {
			summary.ManualCount++
			summary.ManualAmount = summary.ManualAmount.Add(invoice.Amount)
		} else {
			summary.InvoiceCount++
			summary.InvoiceAmount = summary.InvoiceAmount.Add(invoice.Amount)
		}
	}
	return summary
}

// ProcessBatch ingests extracted document texts sequentially. Every input
// is parsed, validated and admitted on its own; one bad input is recorded
// and processing continues. Already-admitted records stay committed if a
// later input fails.
func (m *InvoiceManager) ProcessBatch(ctx context.Context, inputs []BatchInput) models.BatchResult {
	result := models.BatchResult{Errors: []string{}}

	for i, input := range inputs {
		invoice := m.parser.Parse(input.RawText, input.SourcePath)
		invoice.UploadedBy = input.UploadedBy

		if fieldErrs := invoice.Validate(); len(fieldErrs) > 0 {
			result.ErrorCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("第 %d 项: 无法识别为有效发票 (%s)", i+1, joinFieldErrors(fieldErrs)))
			continue
		}

		added := m.AddInvoice(ctx, invoice)
		switch {
		case added.Success:
			result.SuccessCount++
		case added.IsDuplicate:
			result.DuplicateCount++
		default:
			result.ErrorCount++
			result.Errors = append(result.Errors, fmt.Sprintf("第 %d 项: %s", i+1, added.Message))
		}
	}
	return result
}

func joinFieldErrors(fieldErrs map[string]string) string {
	parts := make([]string, 0, len(fieldErrs))
	for field, msg := range fieldErrs {
		parts = append(parts, field+": "+msg)
	}
	return strings.Join(parts, "; ")
}
