package loans

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/types"
)

// NegativeCashFlowMessage answers an eligibility request whose expenses exceed income.
const NegativeCashFlowMessage = "The expenses exceed income. This indicates a negative cash flow, which would likely result in loan rejection. Consider reducing expenses or increasing income before applying for a loan."

// Finder looks up comparable past applications.
type Finder interface {
	Similar(ctx context.Context, income, expenses int64, cibil int) ([]types.LoanRecord, error)
}

// Generator is the language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Advisor struct {
	finder Finder
	gen    Generator
	log    *logrus.Entry
}

func NewAdvisor(finder Finder, gen Generator, log *logrus.Entry) *Advisor {
	return &Advisor{finder: finder, gen: gen, log: log.WithField("component", "loans.advisor")}
}

// Eligibility predicts whether the profile would be approved, using similar
// past applications as context. A failed lookup degrades to no context.
func (a *Advisor) Eligibility(ctx context.Context, income, expenses int64, cibil int) (string, error) {
	similar, err := a.finder.Similar(ctx, income, expenses, cibil)
	if err != nil {
		a.log.WithError(err).Warn("similar loan lookup failed; continuing without history")
		similar = nil
	}
	a.log.WithField("similar", len(similar)).Debug("eligibility context loaded")

	out, err := a.gen.Generate(ctx, EligibilityPrompt(income, expenses, cibil, similar))
	if err != nil {
		return "", fmt.Errorf("eligibility: %w", err)
	}
	return cleanCurrency(out), nil
}

// Insights computes EMI and DTI and asks for an affordability analysis.
func (a *Advisor) Insights(ctx context.Context, income, expenses int64, cibil int, amount int64, rate float64, years int) (string, error) {
	emi := EMI(float64(amount), rate, years)
	dti := DTI(float64(income), float64(expenses), emi)
	a.log.WithFields(logrus.Fields{"emi": emi, "dti": dti}).Debug("insights computed")

	out, err := a.gen.Generate(ctx, InsightsPrompt(income, expenses, cibil, amount, rate, years, emi, dti))
	if err != nil {
		return "", fmt.Errorf("insights: %w", err)
	}
	return cleanCurrency(out), nil
}

// EMI is the monthly instalment for principal at annualRate percent over years.
func EMI(principal, annualRate float64, years int) float64 {
	n := float64(years * 12)
	if n <= 0 {
		return 0
	}
	r := annualRate / 12 / 100
	if r == 0 {
		return round2(principal / n)
	}
	f := math.Pow(1+r, n)
	return round2(principal * r * f / (f - 1))
}

// DTI is (expenses + emi) as a percentage of income.
func DTI(income, expenses, emi float64) float64 {
	if income == 0 {
		return 0
	}
	return round2((expenses + emi) / income * 100)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func cleanCurrency(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "₹", "Rs."))
}

func EligibilityPrompt(income, expenses int64, cibil int, similar []types.LoanRecord) string {
	var b strings.Builder
	b.WriteString("Based on past loan approvals:\n")
	if len(similar) == 0 {
		b.WriteString("(no comparable past applications on record)\n")
	}
	for _, r := range similar {
		fmt.Fprintf(&b, "Income: ₹%d, Expenses: ₹%d, CIBIL: %d, Approved: %s\n", r.Income, r.Expenses, r.CIBILScore, strings.TrimSpace(r.Status))
	}
	if len(similar) > 0 {
		s := Summarize(similar)
		fmt.Fprintf(&b, "(%d of %d similar applications were approved)\n", s.Approved, s.Total)
	}
	fmt.Fprintf(&b, `
Predict whether a new user with:
- Income: Rs%d
- Expenses: Rs%d
- CIBIL Score: %d

would be eligible for a loan. Provide an answer (≤100 words) summarizing eligibility, risks, and ways to improve approval chances.
`, income, expenses, cibil)
	return b.String()
}

func InsightsPrompt(income, expenses int64, cibil int, amount int64, rate float64, years int, emi, dti float64) string {
	return fmt.Sprintf(`Analyze the following financial data and provide brief insights (≤100 words) on loan affordability, eligibility, and risk factors.

User Profile:
- Income: Rs%d
- Expenses: Rs%d
- CIBIL Score: %d

Loan Details:
- Requested Loan Amount: Rs%d
- Interest Rate: %g%% per annum
- Loan Tenure: %d years
- Calculated EMI: Rs%.2f per month
- Debt-to-Income (DTI) Ratio: %.2f%%

Questions for Analysis:
- Based on EMI and DTI, is the loan affordable?
- Are there any risks in approving this loan?
- How can the user improve their eligibility?
- What other financial recommendations can you provide?
`, income, expenses, cibil, amount, rate, years, emi, dti)
}
