package arrow

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/VanDung-dev/HieraBank-Engine/engine"
)

var (
	kindsByName = map[string]engine.RequestKind{
		engine.KindCheck.String():    engine.KindCheck,
		engine.KindTransfer.String(): engine.KindTransfer,
	}
	outcomesByName = map[string]engine.OutcomeStatus{
		engine.OutcomeBalance.String():   engine.OutcomeBalance,
		engine.OutcomeCommitted.String(): engine.OutcomeCommitted,
		engine.OutcomeAborted.String():   engine.OutcomeAborted,
	}
)

// Converter builds Arrow records from engine values and back.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{allocator: memory.DefaultAllocator}
}

// NewConverterWithAllocator creates a Converter using mem.
func NewConverterWithAllocator(mem memory.Allocator) *Converter {
	return &Converter{allocator: mem}
}

// ResultsToRecord converts results to a record with ResultSchema.
func (c *Converter) ResultsToRecord(results []engine.Result) (arrow.Record, error) {
	if len(results) == 0 {
		return nil, errors.New("empty results slice")
	}

	builder := array.NewRecordBuilder(c.allocator, ResultSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.Int64Builder)
	kindBuilder := builder.Field(1).(*array.StringBuilder)
	outcomeBuilder := builder.Field(2).(*array.StringBuilder)
	balanceBuilder := builder.Field(3).(*array.Int64Builder)
	violatingBuilder := builder.Field(4).(*array.Int64Builder)
	submittedBuilder := builder.Field(5).(*array.TimestampBuilder)
	completedBuilder := builder.Field(6).(*array.TimestampBuilder)

	for _, r := range results {
		idBuilder.Append(int64(r.RequestID))
		kindBuilder.Append(r.Kind.String())
		outcomeBuilder.Append(r.Outcome.Status.String())

		switch r.Outcome.Status {
		case engine.OutcomeBalance:
			balanceBuilder.Append(r.Outcome.Balance)
			violatingBuilder.AppendNull()
		case engine.OutcomeAborted:
			balanceBuilder.AppendNull()
			violatingBuilder.Append(int64(r.Outcome.Account))
		default:
			balanceBuilder.AppendNull()
			violatingBuilder.AppendNull()
		}

		submittedBuilder.Append(arrow.Timestamp(r.SubmittedAt.UnixMicro()))
		completedBuilder.Append(arrow.Timestamp(r.CompletedAt.UnixMicro()))
	}

	return builder.NewRecord(), nil
}

// RecordToResults converts a ResultSchema record back to results.
// Timestamps come back at microsecond precision.
func (c *Converter) RecordToResults(record arrow.Record) ([]engine.Result, error) {
	if err := ValidateSchema(record, ResultSchema()); err != nil {
		return nil, err
	}

	idCol := record.Column(0).(*array.Int64)
	kindCol := record.Column(1).(*array.String)
	outcomeCol := record.Column(2).(*array.String)
	balanceCol := record.Column(3).(*array.Int64)
	violatingCol := record.Column(4).(*array.Int64)
	submittedCol := record.Column(5).(*array.Timestamp)
	completedCol := record.Column(6).(*array.Timestamp)

	results := make([]engine.Result, record.NumRows())
	for i := range results {
		kind, ok := kindsByName[kindCol.Value(i)]
		if !ok {
			return nil, errors.Errorf("row %d: unknown kind %q", i, kindCol.Value(i))
		}
		status, ok := outcomesByName[outcomeCol.Value(i)]
		if !ok {
			return nil, errors.Errorf("row %d: unknown outcome %q", i, outcomeCol.Value(i))
		}

		out := engine.Outcome{Status: status}
		if !balanceCol.IsNull(i) {
			out.Balance = balanceCol.Value(i)
		}
		if !violatingCol.IsNull(i) {
			out.Account = int(violatingCol.Value(i))
		}

		results[i] = engine.Result{
			RequestID:   int(idCol.Value(i)),
			Kind:        kind,
			Outcome:     out,
			SubmittedAt: time.UnixMicro(int64(submittedCol.Value(i))),
			CompletedAt: time.UnixMicro(int64(completedCol.Value(i))),
		}
	}
	return results, nil
}

// BalancesToRecord converts balances (index i is account i+1) to a record
// with AccountSchema.
func (c *Converter) BalancesToRecord(balances []int64) (arrow.Record, error) {
	if len(balances) == 0 {
		return nil, errors.New("empty balances slice")
	}

	builder := array.NewRecordBuilder(c.allocator, AccountSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.Int64Builder)
	balanceBuilder := builder.Field(1).(*array.Int64Builder)
	for i, b := range balances {
		idBuilder.Append(int64(i + 1))
		balanceBuilder.Append(b)
	}

	return builder.NewRecord(), nil
}

// RecordToBalances reads an AccountSchema record. Rows may come in any
// order but must cover accounts 1..n exactly once.
func (c *Converter) RecordToBalances(record arrow.Record) ([]int64, error) {
	if err := ValidateSchema(record, AccountSchema()); err != nil {
		return nil, err
	}

	idCol := record.Column(0).(*array.Int64)
	balanceCol := record.Column(1).(*array.Int64)

	n := int(record.NumRows())
	balances := make([]int64, n)
	seen := make([]bool, n)
	for i := 0; i < n; i++ {
		id := int(idCol.Value(i))
		if id < 1 || id > n || seen[id-1] {
			return nil, errors.Errorf("row %d: unexpected account id %d", i, id)
		}
		seen[id-1] = true
		balances[id-1] = balanceCol.Value(i)
	}
	return balances, nil
}
