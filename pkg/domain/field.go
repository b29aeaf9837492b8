package domain

import (
	"encoding"
	"strings"
)

// FieldType tags a model input. The set is closed: anything the backend sends
// that is not listed here parses to FieldUnknown and is ignored by the form.
type FieldType string

const (
	FieldImage     FieldType = "image"
	FieldText      FieldType = "text"
	FieldNumber    FieldType = "number"
	FieldBoolean   FieldType = "boolean"
	FieldEnumImage FieldType = "preDefinedImages"
	FieldVideo     FieldType = "video"
	FieldAudio     FieldType = "audio"
	FieldUnknown   FieldType = ""
)

var knownFieldTypes = map[FieldType]struct{}{
	FieldImage:     {},
	FieldText:      {},
	FieldNumber:    {},
	FieldBoolean:   {},
	FieldEnumImage: {},
	FieldVideo:     {},
	FieldAudio:     {},
}

// ParseFieldType maps a wire tag to a FieldType. "enumImage" is accepted as an
// alias of the wire name preDefinedImages.
func ParseFieldType(s string) FieldType {
	t := FieldType(strings.TrimSpace(s))
	if strings.EqualFold(string(t), "enumImage") {
		return FieldEnumImage
	}
	if _, ok := knownFieldTypes[t]; ok {
		return t
	}
	return FieldUnknown
}

// Known reports whether t is one of the supported tags.
func (t FieldType) Known() bool {
	_, ok := knownFieldTypes[t]
	return ok
}

// IsAsset reports whether values of this type are files (uploaded or local).
func (t FieldType) IsAsset() bool {
	return t == FieldImage || t == FieldVideo || t == FieldAudio
}

var _ encoding.TextMarshaler = FieldType("")

func (t FieldType) MarshalText() ([]byte, error) { return []byte(string(t)), nil }

// FieldDescriptor describes one input of a model. Produced by the backend and
// immutable for the lifetime of a workflow.
type FieldDescriptor struct {
	Key         string    `json:"key"`
	Type        FieldType `json:"type"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	// Options holds the reference values of an enumImage field.
	Options []string `json:"preDefinedImages,omitempty"`
	// RawType keeps the tag as sent when it did not parse.
	RawType string `json:"-"`
}

// HasOption reports whether v is one of the descriptor's enum values.
func (f FieldDescriptor) HasOption(v string) bool {
	for _, o := range f.Options {
		if o == v {
			return true
		}
	}
	return false
}

// Label returns the display name, falling back to the key.
func (f FieldDescriptor) Label() string {
	if strings.TrimSpace(f.DisplayName) != "" {
		return f.DisplayName
	}
	return f.Key
}
