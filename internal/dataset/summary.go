package dataset

import (
	"github.com/sirupsen/logrus"

	"voice-lending-go/internal/loans"
	"voice-lending-go/internal/types"
)

// LoadAndSummarize reads the workbook and logs an approval summary of it.
func LoadAndSummarize(path string, log *logrus.Entry) ([]types.LoanRecord, loans.Summary, error) {
	log = log.WithField("component", "dataset.summary").WithField("path", path)
	log.Info("opening loan history workbook")
	records, err := Load(path)
	if err != nil {
		log.WithError(err).Error("load failed")
		return nil, loans.Summary{}, err
	}
	s := loans.Summarize(records)
	log.WithFields(logrus.Fields{
		"total":         s.Total,
		"approved":      s.Approved,
		"approval_rate": s.ApprovalRate,
	}).Info("loan history summarized")
	for _, b := range s.Bands() {
		log.WithField("cibil_band", b).WithField("count", s.BandCounts[b]).Debugf("approval rate %.2f", s.ByCIBILBand[b])
	}
	return records, s, nil
}
