package snapshot

// SerializationError reports a record that cannot be decoded into a run tree.
type SerializationError struct {
	Path   string
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return "decode snapshot: " + e.Reason
	}
	return "decode snapshot at " + e.Path + ": " + e.Reason
}
