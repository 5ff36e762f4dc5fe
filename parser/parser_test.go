package parser

import (
	"testing"

	"github.com/zqywuxie/invoice-management/models"
)

const sampleInvoiceText = `电子发票（普通发票）
发票号码：25442000000123456789
开票日期：2025年10月13日
购买方名称：某某科技有限公司
项目名称                规格型号
*快递服务*收派服务费
合 计
价税合计（大写）壹拾柒圆整 （小写）¥17.00
顺丰月结账单2025-09
备 注
开票人：张三`

func TestParseSampleInvoice(t *testing.T) {
	p := NewInvoiceParser()
	invoice := p.Parse(sampleInvoiceText, "uploads/sf-express.pdf")

	if invoice.InvoiceNumber != "25442000000123456789" {
		t.Errorf("InvoiceNumber = %q, want 25442000000123456789", invoice.InvoiceNumber)
	}
	if invoice.InvoiceDate != "2025-10-13" {
		t.Errorf("InvoiceDate = %q, want 2025-10-13", invoice.InvoiceDate)
	}
	if invoice.ItemName != "*快递服务*收派服务费" {
		t.Errorf("ItemName = %q, want *快递服务*收派服务费", invoice.ItemName)
	}
	if invoice.Amount.String() != "17" {
		t.Errorf("Amount = %s, want 17", invoice.Amount)
	}
	if invoice.Remark != "顺丰月结账单2025-09" {
		t.Errorf("Remark = %q, want 顺丰月结账单2025-09", invoice.Remark)
	}
	if invoice.FilePath != "uploads/sf-express.pdf" {
		t.Errorf("FilePath = %q", invoice.FilePath)
	}
	if invoice.RecordType != models.RecordTypeInvoice {
		t.Errorf("RecordType = %q, want %q", invoice.RecordType, models.RecordTypeInvoice)
	}
	if invoice.ReimbursementStatus != models.ReimbursementPending {
		t.Errorf("ReimbursementStatus = %q, want %q", invoice.ReimbursementStatus, models.ReimbursementPending)
	}
	if invoice.ScanTime.IsZero() {
		t.Error("ScanTime not set")
	}
}

func TestExtractDateFormats(t *testing.T) {
	p := NewInvoiceParser()
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "chinese labeled", text: "开票日期：2025年10月13日", want: "2025-10-13"},
		{name: "chinese single digit", text: "开票日期：2025年3月5日", want: "2025-03-05"},
		{name: "bare chinese date", text: "于2024年1月2日开具", want: "2024-01-02"},
		{name: "dashed", text: "开票日期: 2025-3-5", want: "2025-03-05"},
		{name: "slashed", text: "开票日期：2025/10/13", want: "2025-10-13"},
		{name: "absent", text: "没有日期的文本", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.extractDate(tc.text); got != tc.want {
				t.Errorf("extractDate(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractAmountFormats(t *testing.T) {
	p := NewInvoiceParser()
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "xiaoxie fullwidth parens", text: "价税合计（大写）壹拾柒圆整 （小写）¥17.00", want: "17"},
		{name: "xiaoxie halfwidth parens", text: "(小写)￥1,234.56", want: "1234.56"},
		{name: "jiashuiheji fallback", text: "价税合计 ¥ 99.90", want: "99.9"},
		{name: "heji fallback", text: "合 计 ¥200", want: "200"},
		{name: "zero rejected", text: "（小写）¥0.00", want: "0"},
		{name: "absent", text: "没有金额", want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.extractAmount(tc.text); got.String() != tc.want {
				t.Errorf("extractAmount(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractInvoiceNumberFormats(t *testing.T) {
	p := NewInvoiceParser()
	cases := []struct {
		text string
		want string
	}{
		{text: "发票号码：12345678", want: "12345678"},
		{text: "发票号码: 12345678", want: "12345678"},
		{text: "No.87654321", want: "87654321"},
		{text: "号码：555666", want: "555666"},
		{text: "无号码文本", want: ""},
	}
	for _, tc := range cases {
		if got := p.extractInvoiceNumber(tc.text); got != tc.want {
			t.Errorf("extractInvoiceNumber(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestParseGarbageTextNeverFails(t *testing.T) {
	p := NewInvoiceParser()
	invoice := p.Parse("这是一段与发票完全无关的文字。", "uploads/garbage.txt")
	if invoice == nil {
		t.Fatal("Parse returned nil")
	}
	if invoice.InvoiceNumber != "" || invoice.InvoiceDate != "" {
		t.Errorf("expected empty fields, got number=%q date=%q", invoice.InvoiceNumber, invoice.InvoiceDate)
	}
	if !invoice.Amount.IsZero() {
		t.Errorf("Amount = %s, want 0", invoice.Amount)
	}

	// The extracted zero values fail admission validation downstream.
	errs := invoice.Validate()
	for _, field := range []string{"invoice_number", "invoice_date", "amount"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("Validate() missing error for %s", field)
		}
	}
}

func TestExtractRemarkLayouts(t *testing.T) {
	p := NewInvoiceParser()
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			// Content printed between the total and the 备注 label, the
			// common e-invoice layout.
			name: "before label",
			text: "（小写）¥88.00\nweixin-20251001\n批次号A12\n备 注\n开票人：李四",
			want: "weixin-20251001 批次号A12",
		},
		{
			name: "after label",
			text: "备 注：项目采购\n开票人：王五",
			want: "项目采购",
		},
		{
			name: "absent",
			text: "开票人：王五",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.extractRemark(tc.text); got != tc.want {
				t.Errorf("extractRemark(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
