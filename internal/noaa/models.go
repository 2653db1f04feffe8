package noaa

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CDO v2 endpoint paths, relative to the API base URL.
const (
	EndpointDatatypes = "datatypes"
	EndpointDatasets  = "datasets"
	EndpointStations  = "stations"
	EndpointData      = "data"
)

// Record is a single result object returned by the CDO API.
// The schema is owned by the API; keys keep the order in which the API sent them
// so that tabular output follows the upstream column order.
type Record struct {
	keys   []string
	values map[string]any
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// String returns the value under key when it is a JSON string.
func (r Record) String(key string) string {
	s, _ := r.values[key].(string)
	return s
}

// Set stores v under key. A new key is appended after the existing ones;
// an existing key keeps its position.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Keys returns the record's keys in insertion order.
func (r Record) Keys() []string {
	return r.keys
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// UnmarshalJSON decodes a JSON object while keeping its key order.
// Numbers are decoded as json.Number so they survive unchanged. A JSON null
// decodes as an empty record.
func (r *Record) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		r.keys = nil
		r.values = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("noaa: record is not a JSON object")
	}

	r.keys = nil
	r.values = make(map[string]any)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("noaa: unexpected key token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("noaa: decode field %q: %w", key, err)
		}
		r.Set(key, v)
	}

	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// page is the envelope of a CDO list response. An empty result set is sent as {}.
type page struct {
	Metadata struct {
		ResultSet struct {
			Offset int `json:"offset"`
			Count  int `json:"count"`
			Limit  int `json:"limit"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []Record `json:"results"`
}
