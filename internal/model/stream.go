package model

// RecordReader yields records from one open input stream.
type RecordReader interface {
	// Read returns the next record, or io.EOF when the stream is done.
	Read() (FlowRec, error)
	Close() error
}

// RecordWriter is one open output stream for records.
type RecordWriter interface {
	Write(r *FlowRec) error
	Close() error
}
