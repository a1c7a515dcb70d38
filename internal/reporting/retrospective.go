package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/payment-gateway/internal/audit"
)

// UnmappedErrorKind keys declines whose gateway code has no standard kind.
const UnmappedErrorKind = "unmapped"

// RetrospectiveReport summarizes recorded gateway calls.
type RetrospectiveReport struct {
	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	DeclinedCalls   int `json:"declined_calls"`
	TransportErrors int `json:"transport_errors"`
	// CapturedByCurrency sums successful captures, the calls that move money.
	CapturedByCurrency map[string]decimal.Decimal `json:"captured_by_currency"`
	RefundedByCurrency map[string]decimal.Decimal `json:"refunded_by_currency"`
	// ErrorBreakdown counts declines by standard error kind.
	ErrorBreakdown     map[string]int `json:"error_breakdown"`
	ActionUsage        map[string]int `json:"action_usage"`
	OperationUsage     map[string]int `json:"operation_usage"`
	DateFrom           time.Time      `json:"date_from"`
	DateTo             time.Time      `json:"date_to"`
	ProcessingDuration time.Duration  `json:"processing_duration"`
}

// RetrospectiveReporter generates retrospective reports from audit entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

func newReport() *RetrospectiveReport {
	return &RetrospectiveReport{
		CapturedByCurrency: make(map[string]decimal.Decimal),
		RefundedByCurrency: make(map[string]decimal.Decimal),
		ErrorBreakdown:     make(map[string]int),
		ActionUsage:        make(map[string]int),
		OperationUsage:     make(map[string]int),
	}
}

// GenerateRetrospective analyzes entries in any order.
func (rr *RetrospectiveReporter) GenerateRetrospective(entries []audit.Entry) (*RetrospectiveReport, error) {
	report := newReport()
	if len(entries) == 0 {
		return report, nil
	}

	report.DateFrom = entries[0].RecordedAt
	report.DateTo = entries[0].RecordedAt
	for _, e := range entries {
		report.TotalCalls++
		if e.RecordedAt.Before(report.DateFrom) {
			report.DateFrom = e.RecordedAt
		}
		if e.RecordedAt.After(report.DateTo) {
			report.DateTo = e.RecordedAt
		}
		if e.Action != "" {
			report.ActionUsage[e.Action]++
		}
		if e.Operation != "" {
			report.OperationUsage[e.Operation]++
		}

		switch {
		case e.Error != "":
			report.TransportErrors++
		case e.Success:
			report.SuccessfulCalls++
			switch e.Action {
			case "capture":
				report.CapturedByCurrency[e.Currency] = report.CapturedByCurrency[e.Currency].Add(e.Amount)
			case "refund":
				report.RefundedByCurrency[e.Currency] = report.RefundedByCurrency[e.Currency].Add(e.Amount)
			}
		default:
			report.DeclinedCalls++
			kind := e.ErrorKind
			if kind == "" {
				kind = UnmappedErrorKind
			}
			report.ErrorBreakdown[kind]++
		}
	}
	report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)
	return report, nil
}
