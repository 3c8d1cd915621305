package sse

// Done is the terminator record in wire form.
var Done = []byte("data: [DONE]\n\n")

// Encode frames a payload as a complete data record, prefix and blank-line
// separator included.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(dataTag)+len(payload)+2)
	out = append(out, dataTag...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}

// EncodeVerbatim re-frames a data line exactly as it arrived, keeping
// whatever prefix variant the upstream used.
func EncodeVerbatim(line []byte) []byte {
	out := make([]byte, 0, len(line)+2)
	out = append(out, line...)
	out = append(out, '\n', '\n')
	return out
}

// EncodeOpaque restores the line terminator on a line that is forwarded
// without interpretation.
func EncodeOpaque(line []byte) []byte {
	out := make([]byte, 0, len(line)+1)
	out = append(out, line...)
	out = append(out, '\n')
	return out
}
