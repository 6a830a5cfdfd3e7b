package types

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// RawObject models the open AS2 "object" field: either a bare URL reference
// or an embedded document of unknown shape.
type RawObject struct {
	ref string
	doc map[string]any
}

// NewRefObject returns an object holding a bare URL reference.
func NewRefObject(ref string) *RawObject {
	return &RawObject{ref: ref}
}

// NewDocObject returns an object holding an embedded document.
func NewDocObject(doc map[string]any) *RawObject {
	return &RawObject{doc: doc}
}

func (o *RawObject) UnmarshalJSON(b []byte) error {
	var ref string
	if err := json.Unmarshal(b, &ref); err == nil {
		o.ref = ref
		o.doc = nil
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.Wrap(err, "object is neither a reference nor a document")
	}
	o.doc = doc
	o.ref = ""
	return nil
}

func (o RawObject) MarshalJSON() ([]byte, error) {
	if o.doc != nil {
		return json.Marshal(o.doc)
	}
	return json.Marshal(o.ref)
}

// IsRef reports whether the object is a bare URL reference.
func (o *RawObject) IsRef() bool {
	return o != nil && o.doc == nil && o.ref != ""
}

// Ref returns the bare URL reference, if any.
func (o *RawObject) Ref() (string, bool) {
	if !o.IsRef() {
		return "", false
	}
	return o.ref, true
}

// Type returns the embedded document's "type" field, or "" for references
// and documents without one.
func (o *RawObject) Type() string {
	s, _ := o.GetString("type")
	return s
}

// GetString reads a string value at a dotted key path inside the embedded
// document.
func (o *RawObject) GetString(key string) (string, bool) {
	if o == nil || o.doc == nil {
		return "", false
	}

	var value any = o.doc
	for _, k := range strings.Split(key, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return "", false
		}
		value, ok = m[k]
		if !ok {
			return "", false
		}
	}

	str, ok := value.(string)
	return str, ok
}
