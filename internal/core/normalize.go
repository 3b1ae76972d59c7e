package core

// normalize.go performs technical validation: it turns a RawRow into a typed
// Candidate or reports the first structural problem with the row.
//
// Checks run in a fixed order and stop at the first failure:
//  1. policy_number present
//  2. start_date and end_date parse as dates
//  3. start_date strictly before end_date
//  4. status is one of active, expired, cancelled
//  5. policy_type is one of Property, Auto
//  6. premium_usd and insured_value_usd parse as non-negative amounts
//
// Messages are user-facing and kept in Spanish to match the upload UI.

import "github.com/shopspring/decimal"

const (
	msgRequired          = "El número de póliza es obligatorio"
	msgInvalidDateFormat = "Formato de fecha inválido"
	msgInvalidDates      = "La fecha de inicio debe ser anterior a la de fin"
	msgInvalidStatus     = "El estado no es válido (active, expired, cancelled)"
	msgInvalidPolicyType = "El tipo de póliza no es válido (Property, Auto)"
	msgInvalidAmount     = "El monto no tiene un formato numérico válido"
	msgNegativeAmount    = "El monto no puede ser negativo"
)

// Normalize validates raw and converts it into a Candidate. On failure the
// returned RowError carries raw.Number and the Candidate is the zero value.
func Normalize(raw RawRow) (Candidate, *RowError) {
	fail := func(field, code, message string) (Candidate, *RowError) {
		return Candidate{}, &RowError{
			RowNumber: raw.Number,
			Field:     field,
			Code:      code,
			Message:   message,
		}
	}

	policyNumber := raw.Get(ColPolicyNumber)
	if policyNumber == "" {
		return fail(ColPolicyNumber, CodeRequired, msgRequired)
	}

	start, okStart := ParseDate(raw.Get(ColStartDate))
	end, okEnd := ParseDate(raw.Get(ColEndDate))
	if !okStart || !okEnd {
		return fail(fieldDateGeneric, CodeInvalidFormat, msgInvalidDateFormat)
	}
	if !start.Before(end) {
		return fail(ColStartDate, CodeInvalidDates, msgInvalidDates)
	}

	status := PolicyStatus(raw.Get(ColStatus))
	if !status.Valid() {
		return fail(ColStatus, CodeInvalidStatus, msgInvalidStatus)
	}

	policyType := PolicyType(raw.Get(ColPolicyType))
	if !policyType.Valid() {
		return fail(ColPolicyType, CodeInvalidPolicyType, msgInvalidPolicyType)
	}

	amounts := [2]decimal.Decimal{}
	for i, col := range [2]string{ColPremium, ColInsuredValue} {
		v, ok := ParseDecimal(raw.Get(col))
		if !ok {
			return fail(col, CodeInvalidFormat, msgInvalidAmount)
		}
		if v.IsNegative() {
			return fail(col, CodeNegativeAmount, msgNegativeAmount)
		}
		amounts[i] = v
	}

	return Candidate{
		PolicyNumber:    policyNumber,
		Customer:        raw.Get(ColCustomer),
		PolicyType:      policyType,
		StartDate:       start,
		EndDate:         end,
		PremiumUSD:      amounts[0],
		Status:          status,
		InsuredValueUSD: amounts[1],
	}, nil
}
