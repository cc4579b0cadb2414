package arrow

import (
	"io"

	"github.com/pkg/errors"
)

// WriteSnapshot writes account balances (index i is account i+1) as an
// Arrow IPC stream with AccountSchema.
func WriteSnapshot(w io.Writer, balances []int64) error {
	record, err := NewConverter().BalancesToRecord(balances)
	if err != nil {
		return err
	}
	defer record.Release()

	return WriteRecords(w, AccountSchema(), record)
}

// ReadSnapshot reads balances written by WriteSnapshot.
func ReadSnapshot(r io.Reader) ([]int64, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	defer releaseAll(records)

	if len(records) != 1 {
		return nil, errors.Errorf("snapshot has %d records, want 1", len(records))
	}
	return NewConverter().RecordToBalances(records[0])
}
