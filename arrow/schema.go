package arrow

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"
)

// ResultSchema returns the Arrow schema for processed request results.
//
// Fields:
//   - request_id: int64 - Producer-assigned request id
//   - kind: string - check or transfer
//   - outcome: string - balance, committed or aborted
//   - balance: int64 (nullable) - Set for balance outcomes
//   - violating_account: int64 (nullable) - Set for aborted transfers
//   - submitted_at: timestamp[us] - Submission time
//   - completed_at: timestamp[us] - Completion time
func ResultSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "request_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "kind", Type: arrow.BinaryTypes.String},
			{Name: "outcome", Type: arrow.BinaryTypes.String},
			{Name: "balance", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "violating_account", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "submitted_at", Type: arrow.FixedWidthTypes.Timestamp_us},
			{Name: "completed_at", Type: arrow.FixedWidthTypes.Timestamp_us},
		},
		nil,
	)
}

// AccountSchema returns the Arrow schema for an account balance snapshot.
func AccountSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "account_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "balance", Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return errors.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return errors.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return errors.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
