package importer

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"spendwise/internal/core"
	"spendwise/internal/services"
)

var (
	severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML exports sometimes drop the ">" of an opening tag on its own line.
	unclosedTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}

// ParseOFX reads the debits of every bank and credit card statement in an
// OFX or QFX file. Credits (refunds, deposits) are skipped.
func ParseOFX(r io.Reader) ([]services.ImportRow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, core.Validationf("parse OFX file: %w", err)
	}

	var rows []services.ImportRow
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			if row, ok := debitRow(tx, bankPaymentMethod(tx)); ok {
				rows = append(rows, row)
			}
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, tx := range stmt.BankTranList.Transactions {
			if row, ok := debitRow(tx, core.PaymentCreditCard); ok {
				rows = append(rows, row)
			}
		}
	}
	for i := range rows {
		rows[i].Line = i + 1
	}
	slog.Debug("Parsed OFX file", "bank_statements", len(resp.Bank), "cc_statements", len(resp.CreditCard), "debits", len(rows))
	if len(rows) == 0 {
		return nil, core.Validation("no debit transactions found")
	}
	return rows, nil
}

func debitRow(tx ofxgo.Transaction, method core.PaymentMethod) (services.ImportRow, bool) {
	if tx.TrnAmt.Sign() >= 0 {
		return services.ImportRow{}, false
	}
	amount := new(big.Rat).Abs(&tx.TrnAmt.Rat)
	description := strings.TrimSpace(string(tx.Name))
	if description == "" {
		description = strings.TrimSpace(string(tx.Memo))
	}
	return services.ImportRow{
		Date:          tx.DtPosted.Format(core.DateLayout),
		Description:   description,
		Amount:        amount.FloatString(2),
		Merchant:      merchantName(tx),
		PaymentMethod: string(method),
	}, true
}

// merchantName prefers the PAYEE aggregate, falling back to NAME.
func merchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}
	return strings.TrimSpace(string(tx.Name))
}

func bankPaymentMethod(tx ofxgo.Transaction) core.PaymentMethod {
	switch tx.TrnType {
	case ofxgo.TrnTypeATM, ofxgo.TrnTypeCash:
		return core.PaymentCash
	case ofxgo.TrnTypePOS, ofxgo.TrnTypeDebit:
		return core.PaymentDebitCard
	case ofxgo.TrnTypeXfer, ofxgo.TrnTypeDirectDebit, ofxgo.TrnTypePayment, ofxgo.TrnTypeRepeatPmt:
		return core.PaymentBankTransfer
	}
	return core.PaymentOther
}
