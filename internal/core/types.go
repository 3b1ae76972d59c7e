package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Column names recognised in an uploaded file. Header matching is
// case-insensitive; these are the normalized keys.
const (
	ColPolicyNumber  = "policy_number"
	ColCustomer      = "customer"
	ColPolicyType    = "policy_type"
	ColStartDate     = "start_date"
	ColEndDate       = "end_date"
	ColPremium       = "premium_usd"
	ColStatus        = "status"
	ColInsuredValue  = "insured_value_usd"
	fieldDateGeneric = "date"
)

// PolicyColumns lists the expected columns in canonical order.
var PolicyColumns = []string{
	ColPolicyNumber,
	ColCustomer,
	ColPolicyType,
	ColStartDate,
	ColEndDate,
	ColPremium,
	ColStatus,
	ColInsuredValue,
}

// PolicyType is the line of business of a policy.
type PolicyType string

const (
	PolicyProperty PolicyType = "Property"
	PolicyAuto     PolicyType = "Auto"
)

// Valid reports whether t is a known policy type. Matching is exact.
func (t PolicyType) Valid() bool {
	return t == PolicyProperty || t == PolicyAuto
}

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus string

const (
	StatusActive    PolicyStatus = "active"
	StatusExpired   PolicyStatus = "expired"
	StatusCancelled PolicyStatus = "cancelled"
)

// Valid reports whether s is a known status. Matching is exact and
// case-sensitive: "Active" is rejected.
func (s PolicyStatus) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Candidate is a row that passed technical validation. It is what business
// rules evaluate and what the store persists.
type Candidate struct {
	PolicyNumber    string          `json:"policy_number"`
	Customer        string          `json:"customer"`
	PolicyType      PolicyType      `json:"policy_type"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	PremiumUSD      decimal.Decimal `json:"premium_usd"`
	Status          PolicyStatus    `json:"status"`
	InsuredValueUSD decimal.Decimal `json:"insured_value_usd"`
}

// Policy is a persisted Candidate.
type Policy struct {
	ID int64 `json:"id"`
	Candidate
	CreatedAt time.Time `json:"created_at"`
}

// Row error codes. Technical codes come from [Normalize], the rest from
// business rules.
const (
	CodeRequired            = "REQUIRED"
	CodeInvalidFormat       = "INVALID_FORMAT"
	CodeInvalidDates        = "INVALID_DATES"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeInvalidPolicyType   = "INVALID_POLICY_TYPE"
	CodeNegativeAmount      = "NEGATIVE_AMOUNT"
	CodePropertyValueTooLow = "PROPERTY_VALUE_TOO_LOW"
	CodeAutoValueTooLow     = "AUTO_VALUE_TOO_LOW"
)

// RowError describes why a single row was rejected.
type RowError struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s: %s: %s", e.RowNumber, e.Field, e.Code, e.Message)
}

// IngestionResult is the outcome of a successful upload.
//
// InsertedCount is the number of rows accepted by validation and handed to
// the store; InsertedCount+RejectedCount always equals the number of parsed
// data rows. DuplicatesSkipped reports how many accepted rows the store
// ignored because their policy number already existed.
type IngestionResult struct {
	InsertedCount     int           `json:"inserted_count"`
	RejectedCount     int           `json:"rejected_count"`
	DuplicatesSkipped int           `json:"duplicates_skipped"`
	Errors            []RowError    `json:"errors"`
	Duration          time.Duration `json:"-"`
}

// Total returns the number of data rows the upload contained.
func (r *IngestionResult) Total() int {
	return r.InsertedCount + r.RejectedCount
}

// OperationStatus is the state of a traced upload.
type OperationStatus string

const (
	OperationReceived  OperationStatus = "RECEIVED"
	OperationCompleted OperationStatus = "COMPLETED"
	OperationFailed    OperationStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed
}

// CanTransition reports whether an operation may move from s to next.
// The only legal moves are RECEIVED to COMPLETED and RECEIVED to FAILED.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	return s == OperationReceived && next.Terminal()
}

// Operation is the audit record of one upload request.
type Operation struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	Endpoint      string          `json:"endpoint"`
	Status        OperationStatus `json:"status"`
	RowsInserted  *int            `json:"rows_inserted,omitempty"`
	RowsRejected  *int            `json:"rows_rejected,omitempty"`
	DurationMS    *int64          `json:"duration_ms,omitempty"`
	ErrorSummary  string          `json:"error_summary,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OperationUpdate moves an operation to a terminal status.
type OperationUpdate struct {
	Status       OperationStatus
	RowsInserted *int
	RowsRejected *int
	DurationMS   int64
	ErrorSummary string
}

// Apply returns op with the update applied. It does not check the
// transition; stores do that with [OperationStatus.CanTransition].
func (u OperationUpdate) Apply(op Operation, now time.Time) Operation {
	op.Status = u.Status
	op.RowsInserted = u.RowsInserted
	op.RowsRejected = u.RowsRejected
	d := u.DurationMS
	op.DurationMS = &d
	op.ErrorSummary = u.ErrorSummary
	op.UpdatedAt = now
	return op
}

// Summary aggregates the policy portfolio.
type Summary struct {
	TotalPolicies   int64                      `json:"total_policies"`
	TotalPremiumUSD decimal.Decimal            `json:"total_premium_usd"`
	CountByStatus   map[string]int64           `json:"count_by_status"`
	PremiumByType   map[string]decimal.Decimal `json:"premium_by_type"`
}

// NewSummary returns an empty summary with initialised maps.
func NewSummary() Summary {
	return Summary{
		TotalPremiumUSD: decimal.Zero,
		CountByStatus:   map[string]int64{},
		PremiumByType:   map[string]decimal.Decimal{},
	}
}

// Add folds a group of count policies with the given status, type and
// premium total into the summary.
func (s *Summary) Add(status PolicyStatus, policyType PolicyType, count int64, premium decimal.Decimal) {
	s.TotalPolicies += count
	s.TotalPremiumUSD = s.TotalPremiumUSD.Add(premium)
	s.CountByStatus[string(status)] += count
	s.PremiumByType[string(policyType)] = s.PremiumByType[string(policyType)].Add(premium)
}

// Policy listing limits.
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
)

// ListFilter selects a page of policies. Query matches policy number or
// customer, case-insensitively, as a substring.
type ListFilter struct {
	Limit      int
	Offset     int
	Status     PolicyStatus
	PolicyType PolicyType
	Query      string
}

// Normalized clamps limit and offset into their allowed ranges.
func (f ListFilter) Normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// PolicyPage is one page of a policy listing.
type PolicyPage struct {
	Items  []Policy `json:"items"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
