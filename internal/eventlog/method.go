package eventlog

// MethodName labels call data by the method it selects. Empty data is a
// plain value transfer.
func MethodName(data []byte) string {
	if len(data) == 0 {
		return "transfer"
	}
	if len(data) < 4 {
		return "unknown"
	}
	for _, a := range sources {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m.Name
		}
	}
	return "unknown"
}
