package withdrawal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PaymentKind discriminates payment detail variants.
type PaymentKind string

const (
	PaymentCard        PaymentKind = "CARD"
	PaymentBankAccount PaymentKind = "BANK_ACCOUNT"
)

var (
	ErrPaymentRequired    = errors.New("withdrawal: payment details required")
	ErrInvalidCard        = errors.New("withdrawal: invalid card number")
	ErrInvalidAccount     = errors.New("withdrawal: bank account number must have 20 digits")
	ErrInvalidBIC         = errors.New("withdrawal: BIC must have 9 digits")
	ErrHolderRequired     = errors.New("withdrawal: account holder required")
	ErrUnknownPaymentKind = errors.New("withdrawal: unknown payment kind")
)

// PaymentDetails is where the net amount is paid out to.
type PaymentDetails interface {
	Kind() PaymentKind
	Validate() error
	// Masked returns a copy safe for storage and logs.
	Masked() PaymentDetails
}

// Card pays out to a bank card.
type Card struct {
	Number string `json:"number"`
	Holder string `json:"holder"`
}

func (Card) Kind() PaymentKind { return PaymentCard }

func (c Card) Validate() error {
	if strings.TrimSpace(c.Holder) == "" {
		return ErrHolderRequired
	}
	digits := stripSeparators(c.Number)
	if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) || !luhnValid(digits) {
		return ErrInvalidCard
	}
	return nil
}

func (c Card) Masked() PaymentDetails {
	digits := stripSeparators(c.Number)
	if len(digits) <= 4 {
		return Card{Number: digits, Holder: c.Holder}
	}
	return Card{Number: strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:], Holder: c.Holder}
}

// BankAccount pays out to a domestic bank account.
type BankAccount struct {
	AccountNumber string `json:"accountNumber"`
	BIC           string `json:"bic"`
	BankName      string `json:"bankName,omitempty"`
	Holder        string `json:"holder"`
}

func (BankAccount) Kind() PaymentKind { return PaymentBankAccount }

func (b BankAccount) Validate() error {
	if strings.TrimSpace(b.Holder) == "" {
		return ErrHolderRequired
	}
	account := stripSeparators(b.AccountNumber)
	if len(account) != 20 || !allDigits(account) {
		return ErrInvalidAccount
	}
	bic := stripSeparators(b.BIC)
	if len(bic) != 9 || !allDigits(bic) {
		return ErrInvalidBIC
	}
	return nil
}

func (b BankAccount) Masked() PaymentDetails {
	account := stripSeparators(b.AccountNumber)
	if len(account) > 4 {
		account = strings.Repeat("*", len(account)-4) + account[len(account)-4:]
	}
	return BankAccount{AccountNumber: account, BIC: stripSeparators(b.BIC), BankName: b.BankName, Holder: b.Holder}
}

// EncodePaymentDetails serialises masked details as kind plus JSON payload.
func EncodePaymentDetails(details PaymentDetails) (PaymentKind, []byte, error) {
	if details == nil {
		return "", nil, ErrPaymentRequired
	}
	payload, err := json.Marshal(details.Masked())
	if err != nil {
		return "", nil, fmt.Errorf("withdrawal: encode payment details: %w", err)
	}
	return details.Kind(), payload, nil
}

// DecodePaymentDetails restores stored details.
func DecodePaymentDetails(kind PaymentKind, payload []byte) (PaymentDetails, error) {
	switch kind {
	case PaymentCard:
		var card Card
		if err := json.Unmarshal(payload, &card); err != nil {
			return nil, fmt.Errorf("withdrawal: decode card: %w", err)
		}
		return card, nil
	case PaymentBankAccount:
		var account BankAccount
		if err := json.Unmarshal(payload, &account); err != nil {
			return nil, fmt.Errorf("withdrawal: decode bank account: %w", err)
		}
		return account, nil
	}
	return nil, ErrUnknownPaymentKind
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
