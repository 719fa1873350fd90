package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"voice-lending-go/internal/types"
)

type columns struct {
	loanID, income, expenses, cibil, amount, term, status int
}

// detectColumns maps header cells to fields by name heuristics.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1, -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "cibil") || strings.Contains(l, "credit score"):
			if c.cibil == -1 {
				c.cibil = i
			}
		case strings.Contains(l, "income"):
			if c.income == -1 {
				c.income = i
			}
		case strings.Contains(l, "expense"):
			if c.expenses == -1 {
				c.expenses = i
			}
		case strings.Contains(l, "status") || strings.Contains(l, "approved"):
			if c.status == -1 {
				c.status = i
			}
		case strings.Contains(l, "amount"):
			if c.amount == -1 {
				c.amount = i
			}
		case strings.Contains(l, "term") || strings.Contains(l, "tenure"):
			if c.term == -1 {
				c.term = i
			}
		case strings.Contains(l, "id"):
			if c.loanID == -1 {
				c.loanID = i
			}
		}
	}
	return c
}

// Load reads loan history from the first sheet of an xlsx workbook. Rows
// missing income, expenses, CIBIL score or status are skipped.
func Load(path string) ([]types.LoanRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	c := detectColumns(rows[0])
	if c.income == -1 || c.expenses == -1 || c.cibil == -1 || c.status == -1 {
		return nil, fmt.Errorf("missing required columns (income, expenses, cibil, status) in header %q", rows[0])
	}

	var out []types.LoanRecord
	for _, r := range rows[1:] {
		cell := func(i int) string {
			if i >= 0 && i < len(r) {
				return strings.TrimSpace(r[i])
			}
			return ""
		}
		income, err1 := parseAmount(cell(c.income))
		expenses, err2 := parseAmount(cell(c.expenses))
		cibil, err3 := strconv.Atoi(cell(c.cibil))
		status := cell(c.status)
		if err1 != nil || err2 != nil || err3 != nil || status == "" {
			// skip incomplete rows quietly
			continue
		}
		rec := types.LoanRecord{
			LoanID:     cell(c.loanID),
			Income:     income,
			Expenses:   expenses,
			CIBILScore: cibil,
			Status:     status,
		}
		rec.LoanAmount, _ = parseAmount(cell(c.amount))
		rec.LoanTerm, _ = strconv.Atoi(cell(c.term))
		out = append(out, rec)
	}
	return out, nil
}

// parseAmount accepts "1,200,000", "12,00,000" and "1200000.0".
func parseAmount(s string) (int64, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
