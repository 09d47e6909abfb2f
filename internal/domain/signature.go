package domain

import (
	"encoding/json"
	"sort"
)

// EncodeHeaderSignature marshals headers as a JSON array in the order they
// were received. The signature is stored verbatim, not hashed, so stored
// templates stay inspectable.
func EncodeHeaderSignature(headers []string) json.RawMessage {
	if headers == nil {
		headers = []string{}
	}
	raw, _ := json.Marshal(headers)
	return raw
}

// DecodeHeaderSignature parses a stored signature back into a header list.
// Empty or malformed signatures return ErrCorruptRecord so callers can skip
// the record rather than abort a scan.
func DecodeHeaderSignature(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, &ErrCorruptRecord{Resource: "template", Reason: "empty header signature"}
	}
	var headers []string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, &ErrCorruptRecord{Resource: "template", Reason: "header signature is not a JSON string array"}
	}
	return headers, nil
}

// HeadersEqual reports whether two header sets contain exactly the same
// columns, ignoring order. Duplicate columns must appear the same number of
// times on both sides.
func HeadersEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	as := make([]string, len(a))
	bs := make([]string, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Strings(as)
	sort.Strings(bs)

	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
