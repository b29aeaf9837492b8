package form

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/osvaldoandrade/modelhub/pkg/domain"
)

// InputConfig configures a single-line prompt.
type InputConfig struct {
	Message   string
	Default   string
	Help      string
	Validator func(string) error
}

// TextAreaConfig configures a multi-line prompt.
type TextAreaConfig struct {
	Message string
	Default string
	Help    string
}

// ConfirmConfig configures a yes/no prompt.
type ConfirmConfig struct {
	Message string
	Default bool
	Help    string
}

// SelectConfig configures a single-choice prompt.
type SelectConfig struct {
	Message      string
	Options      []string
	DefaultIndex int
	Help         string
}

// Prompter abstracts the terminal so controls can be driven by scripted
// answers in tests.
type Prompter interface {
	Input(ctx context.Context, cfg InputConfig) (string, error)
	TextArea(ctx context.Context, cfg TextAreaConfig) (string, error)
	Confirm(ctx context.Context, cfg ConfirmConfig) (bool, error)
	Select(ctx context.Context, cfg SelectConfig) (int, error)
	Info(ctx context.Context, msg string) error
}

// Env is what a control needs to do its job. Set is the setValue callback
// into the input value store; Upload runs the image upload sub-flow.
type Env struct {
	Prompter Prompter
	Set      func(key string, value any)
	Upload   func(ctx context.Context, key string, file *domain.LocalFile) error
}

// Control renders one field type.
type Control interface {
	Kind() domain.FieldType
	Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error
}

var controls = map[domain.FieldType]Control{
	domain.FieldText:      textControl{},
	domain.FieldNumber:    numberControl{},
	domain.FieldBoolean:   booleanControl{},
	domain.FieldEnumImage: enumImageControl{},
	domain.FieldImage:     imageControl{},
	domain.FieldVideo:     fileControl{kind: domain.FieldVideo},
	domain.FieldAudio:     fileControl{kind: domain.FieldAudio},
}

// ControlFor dispatches on the field type. Unknown tags get a control that
// renders nothing.
func ControlFor(t domain.FieldType) Control {
	if c, ok := controls[t]; ok {
		return c
	}
	return noopControl{}
}

// Render draws field with the control for its type.
func Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	if env.Prompter == nil || env.Set == nil {
		return errors.New("form: prompter and setter are required")
	}
	return ControlFor(field.Type).Render(ctx, env, field, current)
}

type noopControl struct{}

func (noopControl) Kind() domain.FieldType { return domain.FieldUnknown }

func (noopControl) Render(context.Context, Env, domain.FieldDescriptor, any) error { return nil }

type textControl struct{}

func (textControl) Kind() domain.FieldType { return domain.FieldText }

func (textControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	def, _ := current.(string)
	resp, err := env.Prompter.TextArea(ctx, TextAreaConfig{
		Message: Label(field),
		Default: def,
		Help:    Placeholder(field),
	})
	if err != nil {
		return err
	}
	if resp == "" && current == nil {
		return nil
	}
	env.Set(field.Key, resp)
	return nil
}

type numberControl struct{}

func (numberControl) Kind() domain.FieldType { return domain.FieldNumber }

func (numberControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	def := ""
	if f, ok := current.(float64); ok {
		def = formatNumber(f)
	}
	for {
		resp, err := env.Prompter.Input(ctx, InputConfig{
			Message: Label(field),
			Default: def,
			Help:    Help(field),
		})
		if err != nil {
			return err
		}
		resp = strings.TrimSpace(resp)
		if resp == "" {
			return nil
		}
		n, err := strconv.ParseFloat(resp, 64)
		if err != nil {
			_ = env.Prompter.Info(ctx, fmt.Sprintf("Invalid %s: not a number", Label(field)))
			continue
		}
		if OutOfRange(field, n) {
			_ = env.Prompter.Info(ctx, fmt.Sprintf("%s is outside the suggested range (%s)", Label(field), Help(field)))
		}
		env.Set(field.Key, n)
		return nil
	}
}

type booleanControl struct{}

func (booleanControl) Kind() domain.FieldType { return domain.FieldBoolean }

func (booleanControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	def, set := current.(bool)
	resp, err := env.Prompter.Confirm(ctx, ConfirmConfig{
		Message: Label(field),
		Default: def,
		Help:    Help(field),
	})
	if err != nil {
		return err
	}
	// An untouched boolean stays unset so the server default applies.
	if !set && resp == def {
		return nil
	}
	env.Set(field.Key, resp)
	return nil
}

type enumImageControl struct{}

func (enumImageControl) Kind() domain.FieldType { return domain.FieldEnumImage }

func (enumImageControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	options := make([]string, 0, len(field.Options)+1)
	options = append(options, "Select "+strings.ToLower(Label(field)))
	defIdx := 0
	cur, _ := current.(string)
	for i, o := range field.Options {
		options = append(options, fmt.Sprintf("Image %d (%s)", i+1, o))
		if o == cur {
			defIdx = i + 1
		}
	}
	idx, err := env.Prompter.Select(ctx, SelectConfig{
		Message:      Label(field),
		Options:      options,
		DefaultIndex: defIdx,
		Help:         Help(field),
	})
	if err != nil {
		return err
	}
	if idx <= 0 || idx > len(field.Options) {
		return nil
	}
	env.Set(field.Key, field.Options[idx-1])
	return nil
}

type imageControl struct{}

func (imageControl) Kind() domain.FieldType { return domain.FieldImage }

func (imageControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	def, _ := current.(string)
	resp, err := env.Prompter.Input(ctx, InputConfig{
		Message: Label(field) + " (path or URL)",
		Default: def,
		Help:    "PNG, JPG or Webp",
	})
	if err != nil {
		return err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" || resp == def {
		return nil
	}
	if IsRemoteRef(resp) {
		env.Set(field.Key, resp)
		return nil
	}
	file, err := OpenLocal(resp, domain.FieldImage)
	if err != nil {
		_ = env.Prompter.Info(ctx, fmt.Sprintf("Cannot use %s: %v", resp, err))
		return nil
	}
	if env.Upload == nil {
		return errors.New("form: image upload is not configured")
	}
	if err := env.Upload(ctx, field.Key, file); err != nil {
		// Upload failures stay local to the field.
		_ = env.Prompter.Info(ctx, fmt.Sprintf("Upload failed for %s", Label(field)))
	}
	return nil
}

type fileControl struct {
	kind domain.FieldType
}

func (c fileControl) Kind() domain.FieldType { return c.kind }

func (c fileControl) Render(ctx context.Context, env Env, field domain.FieldDescriptor, current any) error {
	def := ""
	if lf, ok := current.(*domain.LocalFile); ok && lf != nil {
		def = lf.Path
	}
	for {
		resp, err := env.Prompter.Input(ctx, InputConfig{
			Message: fmt.Sprintf("%s (%s file path)", Label(field), c.kind),
			Default: def,
			Help:    Help(field),
		})
		if err != nil {
			return err
		}
		resp = strings.TrimSpace(resp)
		if resp == "" || resp == def {
			return nil
		}
		file, err := OpenLocal(resp, c.kind)
		if err != nil {
			_ = env.Prompter.Info(ctx, fmt.Sprintf("Cannot use %s: %v", resp, err))
			continue
		}
		env.Set(field.Key, file)
		return nil
	}
}

// Parse converts a raw flag value for field f. Image paths come back as
// *domain.LocalFile and still need the upload sub-flow. Enum values outside
// the options are rejected so the field stays unset.
func Parse(f domain.FieldDescriptor, raw string) (any, error) {
	switch f.Type {
	case domain.FieldText:
		return raw, nil
	case domain.FieldNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: not a number: %q", f.Key, raw)
		}
		return n, nil
	case domain.FieldBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: not a boolean: %q", f.Key, raw)
		}
		return b, nil
	case domain.FieldEnumImage:
		if !f.HasOption(raw) {
			return nil, fmt.Errorf("%s: %q is not one of the predefined images", f.Key, raw)
		}
		return raw, nil
	case domain.FieldImage:
		if IsRemoteRef(raw) {
			return raw, nil
		}
		return OpenLocal(raw, domain.FieldImage)
	case domain.FieldVideo, domain.FieldAudio:
		return OpenLocal(raw, f.Type)
	default:
		return nil, fmt.Errorf("%w: %s has unsupported type %q", domain.ErrUnknownField, f.Key, f.RawType)
	}
}

// IsRemoteRef reports whether s is an http(s) reference rather than a local
// path.
func IsRemoteRef(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
