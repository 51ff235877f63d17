package delta

// ProtocolError reports a delta that does not fit the local tree. The local
// copy was built from a different definition or has drifted; it must be
// replaced by a full snapshot rather than patched again.
type ProtocolError struct {
	Path   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return "apply delta at " + e.Path + ": " + e.Reason
}
