package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	Monthly   Period = "MONTHLY"
	Quarterly Period = "QUARTERLY"
	Yearly    Period = "YEARLY"
)

const (
	PaymentCash          PaymentMethod = "cash"
	PaymentCreditCard    PaymentMethod = "credit_card"
	PaymentDebitCard     PaymentMethod = "debit_card"
	PaymentBankTransfer  PaymentMethod = "bank_transfer"
	PaymentDigitalWallet PaymentMethod = "digital_wallet"
	PaymentOther         PaymentMethod = "other"

	DefaultPaymentMethod = PaymentOther
)

const (
	maxDescriptionLength = 200
	maxMerchantLength    = 120
	maxTagLength         = 40
	maxTags              = 20
)

// OtherCategoryName is the category every unmatched expense falls back to.
const OtherCategoryName = "Other"

type (
	// Period is the recurrence granularity of a budget.
	Period string

	PaymentMethod string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Email        string
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	Category struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Color     string `json:"color"`
		Icon      string `json:"icon"`
		IsDefault bool   `json:"isDefault"`
	}

	Expense struct {
		ID              int64         `json:"id"`
		UserID          int64         `json:"userId"`
		CategoryID      int64         `json:"categoryId"`
		CategoryName    string        `json:"categoryName,omitempty"`
		Amount          Money         `json:"amount"`
		Description     string        `json:"description"`
		TransactionDate Date          `json:"transactionDate"`
		Merchant        string        `json:"merchant,omitempty"`
		PaymentMethod   PaymentMethod `json:"paymentMethod"`
		IsRecurring     bool          `json:"isRecurring"`
		Tags            []string      `json:"tags"`
		AIConfidence    *float64      `json:"aiConfidence,omitempty"`
		ReceiptKey      string        `json:"receiptKey,omitempty"`
		CreatedAt       time.Time     `json:"createdAt"`
		UpdatedAt       time.Time     `json:"updatedAt"`
	}

	Budget struct {
		ID           int64     `json:"id"`
		UserID       int64     `json:"userId"`
		CategoryID   int64     `json:"categoryId"`
		CategoryName string    `json:"categoryName,omitempty"`
		Amount       Money     `json:"amount"`
		Period       Period    `json:"period"`
		StartDate    Date      `json:"startDate"`
		EndDate      Date      `json:"endDate"`
		IsActive     bool      `json:"isActive"`
		CreatedAt    time.Time `json:"createdAt"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// CategorySuggestion is the output of the rule-based categorizer.
	CategorySuggestion struct {
		CategoryID   int64   `json:"categoryId"`
		CategoryName string  `json:"categoryName"`
		Confidence   float64 `json:"confidence"`
		Reasoning    string  `json:"reasoning"`
		MatchedTerm  string  `json:"matchedTerm,omitempty"`
	}

	// CategorizationFeedback records a user correcting an assigned category.
	// It is append-only and never feeds back into matching.
	CategorizationFeedback struct {
		ExpenseID           int64
		UserID              int64
		Description         string
		Merchant            string
		SuggestedCategoryID int64
		CorrectedCategoryID int64
		Confidence          *float64
		CreatedAt           time.Time
	}
)

var (
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrInvalidPeriod        = errors.New("invalid budget period")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidCategory      = errors.New("invalid category")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, keeping t's wall-clock date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a "2006-01-02" calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// EndOfDay returns the last representable instant of the date.
func (d Date) EndOfDay() time.Time {
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Within reports whether d falls in [start, end] inclusive.
func (d Date) Within(start, end Date) bool {
	return !d.Before(start.Time) && !d.After(end.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps from clients that send them, keeping only the date.
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", s, err)
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (p Period) Validate() error {
	switch p {
	case Monthly, Quarterly, Yearly:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPeriod, string(p))
}

// ParsePeriod accepts any casing of a period name.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	if err := p.Validate(); err != nil {
		return "", Validation(err.Error())
	}
	return p, nil
}

// PaymentMethods lists every accepted payment method in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		PaymentCash, PaymentCreditCard, PaymentDebitCard,
		PaymentBankTransfer, PaymentDigitalWallet, PaymentOther,
	}
}

func (pm PaymentMethod) Validate() error {
	for _, m := range PaymentMethods() {
		if pm == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, string(pm))
}

// ParsePaymentMethod normalizes user input such as "Credit Card" or "CREDIT_CARD".
// Empty input yields the default method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPaymentMethod, nil
	}
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	pm := PaymentMethod(s)
	if err := pm.Validate(); err != nil {
		return "", err
	}
	return pm, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeTags trims, lower-cases, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (e Expense) Validate() error {
	if err := e.TransactionDate.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > maxDescriptionLength {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	}
	if len(e.Merchant) > maxMerchantLength {
		return fmt.Errorf("merchant too long (max %d characters)", maxMerchantLength)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.PaymentMethod.Validate(); err != nil {
		return err
	}
	if e.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if len(e.Tags) > maxTags {
		return fmt.Errorf("too many tags (max %d)", maxTags)
	}
	for _, t := range e.Tags {
		if len(t) > maxTagLength {
			return fmt.Errorf("tag %q too long (max %d characters)", t, maxTagLength)
		}
	}
	if e.AIConfidence != nil && (*e.AIConfidence < 0 || *e.AIConfidence > 1) {
		return errors.New("ai confidence must be within [0,1]")
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if err := b.Period.Validate(); err != nil {
		return err
	}
	if b.CategoryID <= 0 {
		return ErrInvalidCategory
	}
	if err := b.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if err := b.EndDate.Validate(); err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if b.EndDate.Before(b.StartDate.Time) {
		return errors.New("end date must not be before start date")
	}
	return nil
}
