package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ResultCode is the provider's result code. The wire value may be a string,
// a number, or missing; it is always compared as a string.
type ResultCode string

func (c *ResultCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ResultCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = ResultCode(n.String())
	return nil
}

func (c ResultCode) String() string {
	return string(c)
}

// RawResponse is the provider answer before normalization. FullData keys vary
// in casing between provider versions and environments.
type RawResponse struct {
	ResultCode ResultCode     `json:"ResultCode"`
	ResultText string         `json:"ResultText"`
	SmileJobID string         `json:"SmileJobID,omitempty"`
	FullData   map[string]any `json:"FullData,omitempty"`

	StatusCode int    `json:"-"`
	Body       []byte `json:"-"`
}

// FullDataString returns the first non-empty string value among keys.
// Numbers are formatted without exponent so phone numbers survive.
func (r *RawResponse) FullDataString(keys ...string) string {
	if r == nil || r.FullData == nil {
		return ""
	}
	for _, k := range keys {
		switch v := r.FullData[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
