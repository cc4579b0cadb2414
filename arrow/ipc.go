package arrow

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

// WriteRecords writes records as one Arrow IPC stream.
func WriteRecords(w io.Writer, schema *arrow.Schema, records ...arrow.Record) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return errors.Wrapf(err, "failed to write record %d", i)
		}
	}

	return errors.Wrap(writer.Close(), "failed to close writer")
}

// ReadRecords reads every record of an Arrow IPC stream. The caller
// releases the returned records.
func ReadRecords(r io.Reader) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create reader")
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		// Release any records we've already retained
		for _, r := range records {
			r.Release()
		}
		return nil, reader.Err()
	}

	return records, nil
}

func releaseAll(records []arrow.Record) {
	for _, r := range records {
		r.Release()
	}
}
