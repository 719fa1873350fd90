package reply

import (
	"errors"
	"strconv"
	"strings"
)

var ErrMalformedParameters = errors.New("malformed command parameters")

const (
	loanPrefix     = "loan:"
	insightsPrefix = "insights:"

	loanArityText       = "Please provide income, expenses, and CIBIL score in the format: loan:income,expenses,cibil_score"
	loanNumericText     = "Please provide numeric values for income, expenses, and CIBIL score."
	insightsArityText   = "Please provide all parameters in the format: insights:income,expenses,cibil_score,loan_amount,interest_rate,tenure"
	insightsNumericText = "Please provide proper numeric values for all parameters."

	loanHeader     = "Loan Eligibility Analysis:\n\n"
	insightsHeader = "Loan Insights Analysis:\n\n"

	loanFailedText     = "Sorry, I couldn't check your loan eligibility right now. Please try again later."
	insightsFailedText = "Sorry, I couldn't generate loan insights right now. Please try again later."
)

// paramError carries the user-facing correction text.
type paramError struct {
	reply string
}

func (e *paramError) Error() string { return ErrMalformedParameters.Error() + ": " + e.reply }
func (e *paramError) Unwrap() error { return ErrMalformedParameters }

type LoanQuery struct {
	Income   int64
	Expenses int64
	CIBIL    int
}

type InsightsQuery struct {
	LoanQuery
	Amount int64
	Rate   float64
	Years  int
}

// IsLoanCommand and IsInsightsCommand match the prefix case-insensitively.
func IsLoanCommand(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), loanPrefix)
}

func IsInsightsCommand(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), insightsPrefix)
}

func splitArgs(text, prefix string) []string {
	text = strings.TrimSpace(text)
	return strings.Split(strings.TrimSpace(text[len(prefix):]), ",")
}

// ParseLoan parses "loan:<income>,<expenses>,<cibil>".
func ParseLoan(text string) (LoanQuery, error) {
	args := splitArgs(text, loanPrefix)
	if len(args) != 3 {
		return LoanQuery{}, &paramError{loanArityText}
	}
	q, ok := parseProfile(args)
	if !ok {
		return LoanQuery{}, &paramError{loanNumericText}
	}
	return q, nil
}

// ParseInsights parses "insights:<income>,<expenses>,<cibil>,<amount>,<rate>,<years>".
// Only the rate may be fractional.
func ParseInsights(text string) (InsightsQuery, error) {
	args := splitArgs(text, insightsPrefix)
	if len(args) != 6 {
		return InsightsQuery{}, &paramError{insightsArityText}
	}
	q, ok := parseProfile(args[:3])
	if !ok {
		return InsightsQuery{}, &paramError{insightsNumericText}
	}
	amount, err1 := strconv.ParseInt(strings.TrimSpace(args[3]), 10, 64)
	rate, err2 := strconv.ParseFloat(strings.TrimSpace(args[4]), 64)
	years, err3 := strconv.Atoi(strings.TrimSpace(args[5]))
	if err1 != nil || err2 != nil || err3 != nil {
		return InsightsQuery{}, &paramError{insightsNumericText}
	}
	return InsightsQuery{LoanQuery: q, Amount: amount, Rate: rate, Years: years}, nil
}

func parseProfile(args []string) (LoanQuery, bool) {
	income, err1 := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	expenses, err2 := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
	cibil, err3 := strconv.Atoi(strings.TrimSpace(args[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return LoanQuery{}, false
	}
	return LoanQuery{Income: income, Expenses: expenses, CIBIL: cibil}, true
}
