package forms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/localnerve/reestrsi/internal/fields"
	"github.com/localnerve/reestrsi/internal/files"
	"github.com/localnerve/reestrsi/internal/meta"
	"github.com/localnerve/reestrsi/internal/query"
	"github.com/localnerve/reestrsi/internal/repository"
	"github.com/localnerve/reestrsi/internal/types"
)

// BlankChoice is the "nothing selected" option of every select
var BlankChoice = meta.Choice{Value: "", Label: "---------"}

// InputDateFormat is the wire format of date inputs
const InputDateFormat = "2006-01-02"

// Upload is a file received with a submission
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// NewUpload wraps in-memory content
func NewUpload(filename string, content []byte) *Upload {
	return &Upload{
		Filename: filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// UploadFromHeader wraps a multipart file part
func UploadFromHeader(fh *multipart.FileHeader) *Upload {
	return &Upload{
		Filename: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Submission is what the client sent: the method, form values and uploaded files
type Submission struct {
	Method string
	Values url.Values
	Files  map[string]*Upload
}

// IsPost reports whether the form was submitted
func (s Submission) IsPost() bool {
	return strings.EqualFold(s.Method, http.MethodPost)
}

// Env bundles the collaborators a form needs
type Env struct {
	Repo      *repository.Repository
	Files     *files.Store
	Formatter fields.Formatter
}

// Field is one bound form field
type Field struct {
	Spec        FieldSpec
	Name        string
	Label       string
	LabelClass  string // "required" for mandatory fields
	Description string
	Required    bool
	ReadOnly    bool

	Raw     string        // submitted, or the instance value formatted for the input
	Value   any           // parsed Raw: nil, string, int64, uint64 (selects), bool or time.Time
	Choices []meta.Choice // selects only

	UploadDir   string  // file fields: upload subdirectory
	Stored      string  // file fields: persisted file name
	StoredHash  string  // file fields: persisted content hash
	Upload      *Upload // file fields: a new file differing from Stored
	UploadHash  string  // content hash of Upload
	Clear       bool    // file fields: "remove the file" was ticked
	DownloadURL string

	Errors []string

	column   *meta.Field
	relation *meta.Relation
	fk       *meta.Field
	parsed   bool
}

// Bound reports whether the field maps onto a column or relation of the model
func (fl *Field) Bound() bool {
	return fl.column != nil || fl.fk != nil
}

// Column returns the column behind the field, or nil
func (fl *Field) Column() *meta.Field {
	return fl.column
}

// Form is a class bound to an instance and a submission
type Form struct {
	Class      *Class
	Descriptor *meta.Descriptor
	Instance   meta.Entity
	Fields     []*Field
	Multipart  bool
	Created    bool // the instance was allocated by the form
	ViewOnly   bool

	env       Env
	sub       Submission
	byName    map[string]*Field
	errors    map[string][]string
	changed   []string
	validated bool
}

type options struct {
	fields   []string
	exclude  []string
	readOnly []string
	initial  map[string]string
	viewOnly bool
}

// Option customises form construction
type Option func(*options)

// WithFields restricts the form to names, in that order
func WithFields(names ...string) Option {
	return func(o *options) { o.fields = names }
}

// WithExclude drops fields from the form
func WithExclude(names ...string) Option {
	return func(o *options) { o.exclude = append(o.exclude, names...) }
}

// WithReadOnly marks extra fields read-only
func WithReadOnly(names ...string) Option {
	return func(o *options) { o.readOnly = append(o.readOnly, names...) }
}

// WithInitial provides display data for fields the instance cannot supply
func WithInitial(data map[string]string) Option {
	return func(o *options) { o.initial = data }
}

// WithViewOnly renders every field read-only
func WithViewOnly() Option {
	return func(o *options) { o.viewOnly = true }
}

// New binds class to instance and sub. A nil instance starts a new record.
func New(ctx context.Context, env Env, class *Class, instance meta.Entity, sub Submission, opts ...Option) (*Form, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	desc, ok := env.Repo.Registry().Get(class.Model)
	if !ok {
		return nil, fmt.Errorf("form %s: %w", class.Name, errUnknownModel(class.Model))
	}

	f := &Form{
		Class:      class,
		Descriptor: desc,
		Instance:   instance,
		ViewOnly:   o.viewOnly || meta.IsViewOnly(ctx),
		env:        env,
		sub:        sub,
		byName:     map[string]*Field{},
		errors:     map[string][]string{},
	}
	if f.Instance == nil {
		f.Instance = desc.New()
		f.Created = true
	}
	if f.env.Formatter.EmptyValue == "" {
		f.env.Formatter = fields.NewFormatter(files.DownloadURL)
	}

	excluded := set(class.Exclude, o.exclude, []string{CSRFField})
	readOnly := set(class.ReadOnly, o.readOnly)
	if class.ReadOnlyFunc != nil {
		for _, name := range class.ReadOnlyFunc(f.Instance) {
			readOnly[name] = true
		}
	}

	specs := class.Fields
	if len(o.fields) > 0 {
		specs = make([]FieldSpec, 0, len(o.fields))
		for _, name := range o.fields {
			s, ok := class.Spec(name)
			if !ok {
				return nil, fmt.Errorf("form %s: %w", class.Name, errUnknownField(name))
			}
			specs = append(specs, s)
		}
	}

	for _, spec := range specs {
		if excluded[spec.Name] {
			continue
		}
		fl, err := f.bind(ctx, spec, readOnly[spec.Name] || f.ViewOnly, o.initial)
		if err != nil {
			return nil, fmt.Errorf("form %s field %s: %w", class.Name, spec.Name, err)
		}
		f.Fields = append(f.Fields, fl)
		f.byName[fl.Name] = fl
		if fl.Spec.Kind == File && !fl.ReadOnly {
			f.Multipart = true
		}
	}
	return f, nil
}

func (f *Form) bind(ctx context.Context, spec FieldSpec, readOnly bool, initial map[string]string) (*Field, error) {
	fl := &Field{Spec: spec, Name: spec.Name, ReadOnly: readOnly, Description: spec.Description}

	if column, ok := f.Descriptor.Field(spec.Name); ok {
		fl.column = column
	} else if rel, ok := f.Descriptor.Relation(spec.Name); ok {
		fl.relation = rel
		fl.fk, _ = f.Descriptor.Field(spec.Name + "_id")
	}

	fl.Label = spec.Label
	if fl.Label == "" {
		label, err := fields.Label(f.Descriptor, spec.Name)
		if err != nil {
			label = spec.Name
		}
		fl.Label = label
	}
	for _, v := range spec.Validators {
		if _, ok := v.(requiredMarker); ok {
			fl.Required = true
			fl.LabelClass = "required"
		}
	}

	if fl.ReadOnly {
		fl.Raw = f.instanceRaw(fl)
		if fl.Raw == "" && initial != nil {
			fl.Raw = initial[fl.Name]
		}
		return fl, nil
	}

	switch spec.Kind {
	case Select:
		choices, err := f.choices(ctx, fl)
		if err != nil {
			return nil, err
		}
		fl.Choices = choices
	case File:
		if err := f.bindFile(fl); err != nil {
			return nil, err
		}
		return fl, nil
	}

	if f.sub.IsPost() {
		fl.Raw = strings.TrimSpace(f.sub.Values.Get(fl.Name))
		if spec.Kind == Password {
			fl.Raw = f.sub.Values.Get(fl.Name)
		}
		if spec.Kind == Boolean {
			fl.Raw = checkbox(f.sub.Values, fl.Name)
		}
	} else {
		fl.Raw = f.instanceRaw(fl)
		if fl.Raw == "" && initial != nil {
			fl.Raw = initial[fl.Name]
		}
	}
	return fl, nil
}

func (f *Form) bindFile(fl *Field) error {
	upload := fl.Spec.Upload
	if upload == "" && fl.column != nil {
		upload = fl.column.Upload
	}
	fl.UploadDir = upload
	if fl.Description == "" && f.env.Files != nil {
		fl.Description = fmt.Sprintf("Допустимые расширения файлов: %s. Максимальная длинна имени файла %d.",
			strings.Join(f.env.Files.Allowed(), ", "), files.MaxNameLength)
	}
	fl.Stored = text(f.columnValue(fl.Name))
	fl.StoredHash = text(f.columnValue(fl.Name + HashSuffix))
	fl.Raw = fl.Stored

	if !f.sub.IsPost() {
		if fl.Stored != "" {
			fl.DownloadURL = files.DownloadURL(upload, fl.Stored)
		}
		return nil
	}

	fl.Clear = f.sub.Values.Has(fl.Name + ClearSuffix)
	up := f.sub.Files[fl.Name]
	if up == nil || up.Filename == "" {
		return nil
	}
	if files.SecureFilename(up.Filename) == fl.Stored {
		return nil
	}
	rc, err := up.Open()
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	defer rc.Close()
	hash, err := files.Hash(rc)
	if err != nil {
		return fmt.Errorf("failed to hash upload: %w", err)
	}
	fl.Upload = up
	fl.UploadHash = hash
	fl.Raw = up.Filename
	return nil
}

func (f *Form) choices(ctx context.Context, fl *Field) ([]meta.Choice, error) {
	var related *meta.Descriptor
	reg := f.env.Repo.Registry()
	if fl.Spec.Related != "" {
		d, ok := reg.Get(fl.Spec.Related)
		if !ok {
			return nil, errUnknownModel(fl.Spec.Related)
		}
		related = d
	} else if fl.relation != nil {
		d, ok := reg.ForModel(fl.relation.Target)
		if !ok {
			return nil, errUnknownModel(fl.relation.Target.Table)
		}
		related = d
	} else {
		return nil, errUnknownField(fl.Name)
	}
	rows, err := f.env.Repo.Choices(ctx, related)
	if err != nil {
		return nil, err
	}
	return append([]meta.Choice{BlankChoice}, rows...), nil
}

// instanceRaw formats the current value of a bound field as an input value
func (f *Form) instanceRaw(fl *Field) string {
	switch {
	case fl.fk != nil:
		v := fl.fk.Value(f.Instance)
		if v == nil || fmt.Sprint(v) == "0" {
			return ""
		}
		return fmt.Sprint(v)
	case fl.column != nil:
		return rawValue(fl.column.Value(f.Instance))
	}
	return ""
}

func (f *Form) columnValue(name string) any {
	column, ok := f.Descriptor.Field(name)
	if !ok {
		return nil
	}
	return column.Value(f.Instance)
}

// Field returns a field by name, nil when the form has none
func (f *Form) Field(name string) *Field {
	return f.byName[name]
}

// Names lists the field names in render order
func (f *Form) Names() []string {
	out := make([]string, 0, len(f.Fields))
	for _, fl := range f.Fields {
		out = append(out, fl.Name)
	}
	return out
}

// AddError reports a problem on a field, or on the form for an empty name
func (f *Form) AddError(name, message string) {
	f.errors[name] = append(f.errors[name], message)
	if fl := f.byName[name]; fl != nil {
		fl.Errors = append(fl.Errors, message)
	}
}

// Errors returns the problems found by Validate, keyed by field name
func (f *Form) Errors() map[string][]string {
	return f.errors
}

// Validate runs the field validators, then records the changed fields, writes the submitted values
// onto the instance and finally runs the class PostValidate hook
func (f *Form) Validate(ctx context.Context) bool {
	f.errors = map[string][]string{}
	ok := true
	for _, fl := range f.Fields {
		if fl.ReadOnly {
			continue
		}
		fl.Errors = nil
		if !f.validateField(ctx, fl) {
			ok = false
		}
	}
	if !ok {
		return false
	}

	f.changed = f.computeChanged()
	f.validated = true
	if err := f.write(); err != nil {
		f.AddError("", err.Error())
		return false
	}

	if f.Class.PostValidate != nil && !f.Class.PostValidate(ctx, f) {
		return false
	}
	return len(f.errors) == 0
}

func (f *Form) validateField(ctx context.Context, fl *Field) bool {
	if err := f.parse(fl); err != nil {
		f.AddError(fl.Name, err.Error())
		return false
	}
	for _, v := range fl.Spec.Validators {
		err := v.Validate(ctx, f, fl)
		if err == nil {
			continue
		}
		var stop *StopValidation
		if errors.As(err, &stop) {
			if stop.Message != "" {
				f.AddError(fl.Name, stop.Message)
			}
			break
		}
		f.AddError(fl.Name, err.Error())
	}
	return len(fl.Errors) == 0
}

// parse converts Raw into Value according to the field kind
func (f *Form) parse(fl *Field) error {
	fl.parsed = true
	raw := fl.Raw
	switch fl.Spec.Kind {
	case Boolean:
		fl.Value = raw != ""
	case Integer:
		if raw == "" {
			fl.Value = nil
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fl.Value = nil
			return errors.New("Некорректное целое число.")
		}
		fl.Value = n
	case Date:
		if raw == "" {
			fl.Value = nil
			return nil
		}
		d, err := query.ParseDate(raw)
		if err != nil {
			fl.Value = nil
			return errors.New("Некорректная дата.")
		}
		fl.Value = d
	case Select:
		if raw == "" || raw == "0" {
			fl.Value = nil
			return nil
		}
		if fl.Choices != nil && !hasChoice(fl.Choices, raw) {
			return errors.New("Недопустимый вариант.")
		}
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return errors.New("Недопустимый вариант.")
		}
		fl.Value = n
	case File:
		fl.Value = nil
		if fl.Stored != "" && !fl.Clear {
			fl.Value = fl.Stored
		}
		if fl.Upload != nil {
			name := files.SecureFilename(fl.Upload.Filename)
			if f.env.Files != nil {
				if err := f.env.Files.Check(name); err != nil {
					return err
				}
			}
			fl.Value = name
		}
	default:
		if raw == "" {
			fl.Value = nil
		} else {
			fl.Value = raw
		}
	}
	return nil
}

// HasChanged reports whether any bound field differs from the instance
func (f *Form) HasChanged() bool {
	return len(f.ChangedData()) > 0
}

// ChangedData lists the bound fields whose submitted value differs from the instance.
// After Validate it is the set recorded before the instance was written.
func (f *Form) ChangedData() []string {
	if f.validated {
		return f.changed
	}
	for _, fl := range f.Fields {
		if !fl.ReadOnly && !fl.parsed {
			_ = f.parse(fl)
		}
	}
	return f.computeChanged()
}

func (f *Form) computeChanged() []string {
	var changed []string
	for _, fl := range f.Fields {
		if fl.ReadOnly || !fl.Bound() {
			continue
		}
		if f.fieldChanged(fl) {
			changed = append(changed, fl.Name)
		}
	}
	return changed
}

func (f *Form) fieldChanged(fl *Field) bool {
	switch {
	case fl.Spec.Kind == File:
		if fl.Clear && fl.Stored != "" {
			return true
		}
		if fl.Upload == nil {
			return false
		}
		return files.SecureFilename(fl.Upload.Filename) != fl.Stored && fl.UploadHash != fl.StoredHash
	case fl.fk != nil:
		return !sameValue(fl.Value, zeroToNil(fl.fk.Value(f.Instance)))
	case fl.column != nil:
		return !sameValue(fl.Value, fl.column.Value(f.Instance))
	}
	return false
}

// write copies the parsed values onto the instance. File columns are left to the save pipeline.
func (f *Form) write() error {
	for _, fl := range f.Fields {
		if fl.ReadOnly || fl.Spec.Kind == File {
			continue
		}
		switch {
		case fl.fk != nil:
			if err := fl.fk.SetValue(f.Instance, fl.Value); err != nil {
				return fmt.Errorf("%s: %w", fl.Name, err)
			}
			fl.relation.Clear(f.Instance)
		case fl.column != nil:
			if err := fl.column.SetValue(f.Instance, fl.Value); err != nil {
				return fmt.Errorf("%s: %w", fl.Name, err)
			}
		}
	}
	return nil
}

// ChangedFiles lists the file fields with a new upload or a cleared file
func (f *Form) ChangedFiles() []*Field {
	var out []*Field
	for _, fl := range f.Fields {
		if fl.Spec.Kind != File || fl.ReadOnly {
			continue
		}
		if fl.Upload != nil || (fl.Clear && fl.Stored != "") {
			out = append(out, fl)
		}
	}
	return out
}

// Contents renders a read-only field. The instance column or relation comes first, then a computed
// attribute of the model, then data bound to the field, then the empty placeholder.
func (f *Form) Contents(name string) string {
	fm := f.env.Formatter
	r, err := fields.Resolve(f.Descriptor, name, f.Instance)
	if err == nil {
		switch v := r.(type) {
		case fields.Column:
			if v.Value != nil {
				return fm.ForField(v.Value, v.Field)
			}
		case fields.Relation:
			if v.Value != nil {
				return html.EscapeString(fields.Text(v.Value))
			}
		case fields.Computed:
			if v.Value != nil {
				return fm.ForValue(v.Value, v.Attr.Boolean)
			}
		}
	}
	if fl := f.byName[name]; fl != nil && fl.Raw != "" {
		return html.EscapeString(fl.Raw)
	}
	return fm.ForValue(nil, false)
}

func errUnknownModel(name string) error {
	return types.Configf("unknown model %q", name)
}

func errUnknownField(name string) error {
	return types.Configf("unknown field %q", name)
}

func rawValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "y"
		}
		return ""
	case time.Time:
		return x.Format(InputDateFormat)
	}
	return fmt.Sprint(v)
}

func text(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func checkbox(values url.Values, name string) string {
	if !values.Has(name) {
		return ""
	}
	switch strings.ToLower(values.Get(name)) {
	case "", "0", "false", "off", "n":
		return ""
	}
	return "y"
}

func hasChoice(choices []meta.Choice, value string) bool {
	for _, c := range choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

func zeroToNil(v any) any {
	switch x := v.(type) {
	case uint64:
		if x == 0 {
			return nil
		}
	case int64:
		if x == 0 {
			return nil
		}
	}
	return v
}

// sameValue compares a parsed form value with a normalised column value
func sameValue(a, b any) bool {
	if b == "" {
		b = nil
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return false
		}
		ay, am, ad := x.Date()
		by, bm, bd := y.Date()
		return ay == by && am == bm && ad == bd
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case uint64:
			return x >= 0 && uint64(x) == y
		}
		return false
	case uint64:
		switch y := b.(type) {
		case uint64:
			return x == y
		case int64:
			return y >= 0 && x == uint64(y)
		}
		return false
	}
	return a == b
}

func set(lists ...[]string) map[string]bool {
	out := map[string]bool{}
	for _, l := range lists {
		for _, name := range l {
			out[name] = true
		}
	}
	return out
}
