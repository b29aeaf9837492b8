package domain

import (
	"encoding/json"
	"time"
)

type Model struct {
	ID             string            `json:"_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Category       string            `json:"category,omitempty"`
	CreditCost     int               `json:"creditCost"`
	RequiredInputs []FieldDescriptor `json:"requiredInputs"`
	ExampleOutputs []string          `json:"exampleOutputs,omitempty"`
	MainImage      string            `json:"mainImage,omitempty"`
}

// FirstField returns the first descriptor of type t.
func (m Model) FirstField(t FieldType) (FieldDescriptor, bool) {
	for _, f := range m.RequiredInputs {
		if f.Type == t {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Field looks a descriptor up by key.
func (m Model) Field(key string) (FieldDescriptor, bool) {
	for _, f := range m.RequiredInputs {
		if f.Key == key {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// UnmarshalJSON normalises field types so unknown tags never leak as valid.
func (f *FieldDescriptor) UnmarshalJSON(b []byte) error {
	type alias FieldDescriptor
	var raw struct {
		alias
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = FieldDescriptor(raw.alias)
	f.Type = ParseFieldType(raw.Type)
	if f.Type == FieldUnknown {
		f.RawType = raw.Type
	}
	return nil
}

type UserImage struct {
	ID        string    `json:"_id"`
	URL       string    `json:"url"`
	ModelID   string    `json:"modelId,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ImagePage struct {
	Images     []UserImage `json:"images"`
	Page       int         `json:"page"`
	TotalPages int         `json:"totalPages"`
}
