package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func TestParseCSV(t *testing.T) {
	in := "\ufeffDate,Description,Amount,Merchant,Payment Method,Category,Tags,Recurring\n" +
		"2025-06-01,Latte,4.50,Starbucks,credit card,,coffee;work,no\n" +
		",,,,,,,\n" +
		"2025-06-02,\"Rent, June\",\"1,200.00\",,bank_transfer,Bills & Utilities,,yes\n"

	rows, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "2025-06-01", rows[0].Date)
	assert.Equal(t, "Latte", rows[0].Description)
	assert.Equal(t, "4.50", rows[0].Amount)
	assert.Equal(t, "Starbucks", rows[0].Merchant)
	assert.Equal(t, "credit card", rows[0].PaymentMethod)
	assert.Equal(t, []string{"coffee", "work"}, rows[0].Tags)
	assert.False(t, rows[0].IsRecurring)

	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "Rent, June", rows[1].Description)
	assert.Equal(t, "1,200.00", rows[1].Amount)
	assert.Equal(t, "Bills & Utilities", rows[1].Category)
	assert.True(t, rows[1].IsRecurring)
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", "empty CSV file"},
		{"missing columns", "date,memo\n2025-06-01,x\n", "missing columns: amount"},
		{"header only", "date,description,amount\n", "no data rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestDetectAndParseFormat(t *testing.T) {
	assert.Equal(t, FormatOFX, DetectFormat("statement.QFX"))
	assert.Equal(t, FormatOFX, DetectFormat("/tmp/a.ofx"))
	assert.Equal(t, FormatCSV, DetectFormat("export.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("noext"))

	f, err := ParseFormat("QFX")
	require.NoError(t, err)
	assert.Equal(t, FormatOFX, f)
	_, err = ParseFormat("xls")
	assert.ErrorIs(t, err, core.ErrValidation)
}

const bankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250615120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250601120000[0:GMT]
<DTEND>20250630120000[0:GMT]
<STMTTRN>
<TRNTYPE>POS
<DTPOSTED>20250603120000[0:GMT]
<TRNAMT>-25.50
<FITID>1
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250605120000[0:GMT]
<TRNAMT>1500.00
<FITID>2
<NAME>PAYROLL
</STMTTRN>
<STMTTRN>
<TRNTYPE>ATM
<DTPOSTED>20250607120000[0:GMT]
<TRNAMT>-60.00
<FITID>3
<NAME>ATM WITHDRAWAL
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20250630120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestParseOFX(t *testing.T) {
	rows, err := Parse(strings.NewReader("\n\n"+bankOFX), FormatOFX)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, "2025-06-03", rows[0].Date)
	assert.Equal(t, "25.50", rows[0].Amount)
	assert.Equal(t, "STARBUCKS STORE #1234", rows[0].Description)
	assert.Equal(t, "STARBUCKS STORE #1234", rows[0].Merchant)
	assert.Equal(t, string(core.PaymentDebitCard), rows[0].PaymentMethod)

	assert.Equal(t, 2, rows[1].Line)
	assert.Equal(t, "60.00", rows[1].Amount)
	assert.Equal(t, string(core.PaymentCash), rows[1].PaymentMethod)
}

func TestParseOFXErrors(t *testing.T) {
	_, err := ParseOFX(strings.NewReader("definitely not ofx"))
	assert.ErrorIs(t, err, core.ErrValidation)

	creditsOnly := strings.Replace(bankOFX, "<TRNAMT>-25.50", "<TRNAMT>25.50", 1)
	creditsOnly = strings.Replace(creditsOnly, "<TRNAMT>-60.00", "<TRNAMT>60.00", 1)
	_, err = ParseOFX(strings.NewReader(creditsOnly))
	assert.ErrorContains(t, err, "no debit transactions")
}

func TestBankPaymentMethod(t *testing.T) {
	tests := []struct {
		trnType string
		want    core.PaymentMethod
	}{
		{"ATM", core.PaymentCash},
		{"POS", core.PaymentDebitCard},
		{"DIRECTDEBIT", core.PaymentBankTransfer},
		{"XFER", core.PaymentBankTransfer},
		{"FEE", core.PaymentOther},
	}
	for _, tt := range tests {
		t.Run(tt.trnType, func(t *testing.T) {
			doc := strings.Replace(bankOFX, "<TRNTYPE>POS", "<TRNTYPE>"+tt.trnType, 1)
			rows, err := ParseOFX(strings.NewReader(doc))
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), rows[0].PaymentMethod)
		})
	}
}
