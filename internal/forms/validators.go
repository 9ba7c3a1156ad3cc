package forms

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/query"
)

// Validator checks a single field once its submitted value has been parsed
type Validator interface {
	Validate(ctx context.Context, f *Form, field *Field) error
}

// StopValidation ends the validator chain of a field. A non-empty Message is reported.
type StopValidation struct {
	Message string
}

func (e *StopValidation) Error() string {
	return e.Message
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc func(ctx context.Context, f *Form, field *Field) error

func (fn ValidatorFunc) Validate(ctx context.Context, f *Form, field *Field) error {
	return fn(ctx, f, field)
}

// requiredMarker is implemented by validators that make a field mandatory
type requiredMarker interface {
	required()
}

// DataRequired rejects empty values and stops the chain
type DataRequired struct {
	Message string
}

func (DataRequired) required() {}

func (v DataRequired) Validate(_ context.Context, f *Form, field *Field) error {
	if field.Spec.Kind == File {
		if field.Upload != nil || (field.Stored != "" && !field.Clear) {
			return nil
		}
	} else if !isEmpty(field.Value) {
		return nil
	}
	return &StopValidation{Message: or(v.Message, "Обязательное поле.")}
}

// Optional stops the chain silently when the value is empty
type Optional struct{}

func (Optional) Validate(_ context.Context, _ *Form, field *Field) error {
	if isEmpty(field.Value) && field.Upload == nil {
		field.Errors = nil
		return &StopValidation{}
	}
	return nil
}

// Length bounds the number of characters of a text value; zero means unbounded
type Length struct {
	Min, Max int
	Message  string
}

func (v Length) Validate(_ context.Context, _ *Form, field *Field) error {
	s, ok := field.Value.(string)
	if !ok {
		return nil
	}
	n := utf8.RuneCountInString(s)
	switch {
	case v.Max > 0 && n > v.Max:
		return errors.New(or(v.Message, fmt.Sprintf("Поле не может быть длиннее %d символов.", v.Max)))
	case v.Min > 0 && n < v.Min:
		return errors.New(or(v.Message, fmt.Sprintf("Поле должно быть не короче %d символов.", v.Min)))
	}
	return nil
}

// NumberRange bounds an integer value, inclusive
type NumberRange struct {
	Min, Max int64
	Message  string
}

func (v NumberRange) Validate(_ context.Context, _ *Form, field *Field) error {
	n, ok := field.Value.(int64)
	if !ok {
		return nil
	}
	if n < v.Min || n > v.Max {
		return errors.New(or(v.Message, fmt.Sprintf("Число должно быть от %d до %d.", v.Min, v.Max)))
	}
	return nil
}

var validate = validator.New()

// EmailAddress checks the syntax of an e-mail value
type EmailAddress struct {
	Message string
}

func (v EmailAddress) Validate(_ context.Context, _ *Form, field *Field) error {
	s, ok := field.Value.(string)
	if !ok {
		return nil
	}
	if err := validate.Var(s, "email"); err != nil {
		return errors.New(or(v.Message, "Некорректный адрес электронной почты."))
	}
	return nil
}

// EqualTo requires the raw value to match another field of the form
type EqualTo struct {
	Field   string
	Message string
}

func (v EqualTo) Validate(_ context.Context, f *Form, field *Field) error {
	other := f.Field(v.Field)
	if other == nil {
		return fmt.Errorf("unknown field %q", v.Field)
	}
	if other.Raw != field.Raw {
		return errors.New(or(v.Message, "Значения полей не совпадают."))
	}
	return nil
}

// Unique rejects a value another row of the model already has. The row being edited is excluded.
type Unique struct {
	Message string
}

func (v Unique) Validate(ctx context.Context, f *Form, field *Field) error {
	if isEmpty(field.Value) {
		return nil
	}
	column, ok := f.Descriptor.Field(field.Name)
	if !ok {
		return nil
	}
	taken, err := f.exists(ctx, column, field.Value)
	if err != nil {
		return err
	}
	if taken {
		return errors.New(or(v.Message, "Такая запись уже существует"))
	}
	return nil
}

// UniqueFile rejects an uploaded file whose stored name another row already references
type UniqueFile struct {
	Message string
}

func (v UniqueFile) Validate(ctx context.Context, f *Form, field *Field) error {
	if field.Upload == nil {
		return nil
	}
	column, ok := f.Descriptor.Field(field.Name)
	if !ok {
		return nil
	}
	taken, err := f.exists(ctx, column, files.SecureFilename(field.Upload.Filename))
	if err != nil {
		return err
	}
	if taken {
		return errors.New(or(v.Message, "Такой файл уже существует"))
	}
	return nil
}

// OldPassword checks the submitted value against the password of the signed in user
type OldPassword struct {
	Check   func(user meta.User, password string) bool
	Message string
}

func (v OldPassword) Validate(ctx context.Context, _ *Form, field *Field) error {
	var user meta.User
	if r := meta.FromContext(ctx); r != nil {
		user = r.User
	}
	if user == nil || v.Check == nil || !v.Check(user, field.Raw) {
		return errors.New(or(v.Message, "Старый пароль неверен"))
	}
	return nil
}

func (f *Form) exists(ctx context.Context, column *meta.Field, value any) (bool, error) {
	table := f.Descriptor.Table()
	preds := []query.Predicate{query.Eq(table+"."+column.Name, value)}
	if id := f.Instance.PrimaryKey(); id != 0 {
		pk := table + "." + f.Descriptor.Bound().PrimaryKey()
		preds = append(preds, query.Predicate{SQL: pk + " <> ?", Args: []any{id}})
	}
	return f.env.Repo.Exists(ctx, f.Descriptor, preds...)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

func or(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
