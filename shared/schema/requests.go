package schema

import (
	"encoding/json"
)

// RequestID is a JSON-RPC request identifier. The client may choose a string
// or an integer; responses must echo the same value and type.
type RequestID struct {
	Value interface{}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var i interface{}
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	id.Value = i
	return nil
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value)
}

func RequestID_FromUInt64(value uint64) RequestID {
	return RequestID{Value: value}
}

func (id *RequestID) String() string {
	if id == nil || id.Value == nil {
		return "nil"
	}
	bytes, err := json.Marshal(id.Value)
	if err != nil {
		return err.Error()
	}
	return string(bytes)
}

func (id *RequestID) IsEmpty() bool {
	return id == nil || id.Value == nil
}

// PaginatedRequestParams carries an opaque pagination cursor.
type PaginatedRequestParams struct {
	Cursor *string `json:"cursor,omitempty"`
}

// PaginatedResult carries the cursor for the next page, if any.
type PaginatedResult struct {
	NextCursor *string `json:"nextCursor,omitempty"`
}
