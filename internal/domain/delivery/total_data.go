package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TotalData is the sheet-wide summary persisted with every delivery sheet.
// The plain fields count ACTIVE short/return logs, the _draft fields count
// logs still waiting for approval.
type TotalData struct {
	TotalOrderAmount  decimal.Decimal `json:"total_order_amount"`
	TotalShortAmount  decimal.Decimal `json:"total_short_amount"`
	TotalReturnAmount decimal.Decimal `json:"total_return_amount"`
	TotalUniqueItem   int             `json:"total_unique_item"`
	TotalItem         decimal.Decimal `json:"total_item"`
	TotalOrderCount   int             `json:"total_order_count"`

	TotalOrderAmountDraft  decimal.Decimal `json:"total_order_amount_draft"`
	TotalShortAmountDraft  decimal.Decimal `json:"total_short_amount_draft"`
	TotalReturnAmountDraft decimal.Decimal `json:"total_return_amount_draft"`
	TotalUniqueItemDraft   int             `json:"total_unique_item_draft"`
	TotalItemDraft         decimal.Decimal `json:"total_item_draft"`
	TotalOrderCountDraft   int             `json:"total_order_count_draft"`
}

var totalDataKeys = []string{
	"total_order_amount", "total_short_amount", "total_return_amount",
	"total_unique_item", "total_item", "total_order_count",
	"total_order_amount_draft", "total_short_amount_draft", "total_return_amount_draft",
	"total_unique_item_draft", "total_item_draft", "total_order_count_draft",
}

// Validate rejects summaries no recompute could have produced
func (t TotalData) Validate() error {
	if t.TotalUniqueItem < 0 || t.TotalOrderCount < 0 || t.TotalUniqueItemDraft < 0 || t.TotalOrderCountDraft < 0 {
		return shared.NewDomainError(CodeInvalidTotalData, "total_data counts cannot be negative")
	}
	amounts := map[string]decimal.Decimal{
		"total_short_amount":        t.TotalShortAmount,
		"total_return_amount":       t.TotalReturnAmount,
		"total_short_amount_draft":  t.TotalShortAmountDraft,
		"total_return_amount_draft": t.TotalReturnAmountDraft,
		"total_item_draft":          t.TotalItemDraft,
	}
	for key, value := range amounts {
		if value.IsNegative() {
			return shared.NewDomainError(CodeInvalidTotalData, fmt.Sprintf("total_data %s cannot be negative", key))
		}
	}
	return nil
}

// Equal compares two summaries field by field
func (t TotalData) Equal(o TotalData) bool {
	return t.TotalOrderAmount.Equal(o.TotalOrderAmount) &&
		t.TotalShortAmount.Equal(o.TotalShortAmount) &&
		t.TotalReturnAmount.Equal(o.TotalReturnAmount) &&
		t.TotalUniqueItem == o.TotalUniqueItem &&
		t.TotalItem.Equal(o.TotalItem) &&
		t.TotalOrderCount == o.TotalOrderCount &&
		t.TotalOrderAmountDraft.Equal(o.TotalOrderAmountDraft) &&
		t.TotalShortAmountDraft.Equal(o.TotalShortAmountDraft) &&
		t.TotalReturnAmountDraft.Equal(o.TotalReturnAmountDraft) &&
		t.TotalUniqueItemDraft == o.TotalUniqueItemDraft &&
		t.TotalItemDraft.Equal(o.TotalItemDraft) &&
		t.TotalOrderCountDraft == o.TotalOrderCountDraft
}

// Marshal validates and encodes the summary
func (t TotalData) Marshal() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// ParseTotalData decodes a persisted summary. Empty input yields a zero
// summary; anything else must carry exactly the known keys.
func ParseTotalData(raw []byte) (TotalData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return TotalData{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return TotalData{}, shared.WrapDomainError(CodeInvalidTotalData, "total_data is not a JSON object", err)
	}
	for _, key := range totalDataKeys {
		if _, ok := fields[key]; !ok {
			return TotalData{}, shared.NewDomainError(CodeInvalidTotalData, fmt.Sprintf("total_data is missing %s", key))
		}
	}
	if len(fields) != len(totalDataKeys) {
		return TotalData{}, shared.NewDomainError(CodeInvalidTotalData, "total_data carries unknown keys")
	}

	var data TotalData
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return TotalData{}, shared.WrapDomainError(CodeInvalidTotalData, "total_data has malformed values", err)
	}
	if err := data.Validate(); err != nil {
		return TotalData{}, err
	}
	return data, nil
}
