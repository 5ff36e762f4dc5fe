// Package parser extracts structured invoice fields from the raw text of a
// Chinese VAT e-invoice. Input is plain text, one call per document; turning
// PDFs or scans into text is somebody else's job.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zqywuxie/invoice-management/models"
	"github.com/zqywuxie/invoice-management/utils"
)

// Each field has its own ordered pattern chain; the first match wins and a
// chain that never matches leaves the field empty. Compiled once.
var (
	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`发票号码[：:]\s*(\d+)`),
		regexp.MustCompile(`No[.：:]\s*(\d+)`),
		regexp.MustCompile(`号码[：:]\s*(\d+)`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`开票日期[：:]\s*(\d{4})年(\d{1,2})月(\d{1,2})日`),
		regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
		regexp.MustCompile(`开票日期[：:]\s*(\d{4})-(\d{1,2})-(\d{1,2})`),
		regexp.MustCompile(`开票日期[：:]\s*(\d{4})/(\d{1,2})/(\d{1,2})`),
	}

	itemNamePatterns = []*regexp.Regexp{
		// *快递服务*收派服务费
		regexp.MustCompile(`\*([^*]+)\*(\S+)`),
		regexp.MustCompile(`项目名称\s+(.+?)(?:\s+规格|$)`),
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`（小写）[¥￥]?\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`\(小写\)[¥￥]?\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`价税合计.*?[¥￥]\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`合\s*计\s*[¥￥]?\s*([\d,]+\.?\d*)`),
	}

	remarkBeforeLabel = regexp.MustCompile(`(?s)[（(]小写[）)][¥￥]?[\d,.]+\n(.+?)(?:备\s*注|开票人)`)
	remarkPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`(?s)备\s*注\s*[：:]?\s*(.+?)(?:开票人|$)`),
		regexp.MustCompile(`(?s)备注\s*(.+?)(?:开票人|$)`),
	}

	whitespaceRun = regexp.MustCompile(`\s+`)
)

type InvoiceParser struct{}

func NewInvoiceParser() *InvoiceParser {
	return &InvoiceParser{}
}

// Parse extracts all fields from the raw document text. It never fails:
// every field is attempted independently and a field that cannot be found is
// left at its zero value so the caller can inspect whatever was extracted.
func (p *InvoiceParser) Parse(rawText string, sourcePath string) *models.Invoice {
	return &models.Invoice{
		InvoiceNumber:       p.extractInvoiceNumber(rawText),
		InvoiceDate:         p.extractDate(rawText),
		ItemName:            p.extractItemName(rawText),
		Amount:              p.extractAmount(rawText),
		Remark:              p.extractRemark(rawText),
		FilePath:            sourcePath,
		ScanTime:            time.Now(),
		ReimbursementStatus: models.ReimbursementPending,
		RecordType:          models.RecordTypeInvoice,
	}
}

// extractInvoiceNumber finds the printed invoice number, normally in the
// upper-right "发票号码：XXXXXXXX" zone.
func (p *InvoiceParser) extractInvoiceNumber(text string) string {
	for _, pattern := range invoiceNumberPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractDate normalizes 2025年10月13日 / 2025-10-13 / 2025/10/13 into
// YYYY-MM-DD. Labeled dates near the header win over bare ones.
func (p *InvoiceParser) extractDate(text string) string {
	for _, pattern := range datePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			return fmt.Sprintf("%s-%02d-%02d", m[1], month, day)
		}
	}
	return ""
}

// extractItemName finds the line-item description, usually a delimited
// token like "*快递服务*收派服务费" in the detail region.
func (p *InvoiceParser) extractItemName(text string) string {
	for _, pattern := range itemNamePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) == 3 {
			return "*" + m[1] + "*" + m[2]
		}
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractAmount finds the tax-inclusive total, e.g. "价税合计（小写）¥17.00".
// Commas and currency glyphs are stripped; zero or unparseable totals count
// as not found.
func (p *InvoiceParser) extractAmount(text string) decimal.Decimal {
	for _, pattern := range amountPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := utils.ParseAmount(m[1])
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		return amount
	}
	return decimal.Zero
}

// extractRemark looks for the note region at the bottom of the document.
// Some layouts print the remark content before the 备注 label, some after.
func (p *InvoiceParser) extractRemark(text string) string {
	if m := remarkBeforeLabel.FindStringSubmatch(text); m != nil {
		if remark := collapseWhitespace(m[1]); remark != "" {
			return remark
		}
	}
	for _, pattern := range remarkPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if remark := collapseWhitespace(m[1]); remark != "" {
				return remark
			}
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
