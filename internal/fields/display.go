package fields

import (
	"fmt"
	"html"
	"reflect"
	"strings"
	"time"

	"github.com/localnerve/reestrsi/internal/meta"
	"gorm.io/datatypes"
)

const (
	// EmptyValue is the default placeholder for missing values
	EmptyValue = "-"
	// DateFormat is the display format of dates
	DateFormat = "02.01.2006"
	// DefaultIconURL is where the boolean icons are served from
	DefaultIconURL = "/static/img/"
)

// Formatter renders values as HTML fragments. Its methods are pure and never fail.
type Formatter struct {
	EmptyValue  string
	IconURL     string
	DownloadURL func(upload, filename string) string
}

// NewFormatter returns a formatter with the default placeholder and icon location
func NewFormatter(downloadURL func(upload, filename string) string) Formatter {
	return Formatter{EmptyValue: EmptyValue, IconURL: DefaultIconURL, DownloadURL: downloadURL}
}

func (fm Formatter) empty() string {
	if fm.EmptyValue == "" {
		return EmptyValue
	}
	return html.EscapeString(fm.EmptyValue)
}

// BooleanIcon renders the yes/no/unknown icon; any non-bool value is unknown
func (fm Formatter) BooleanIcon(value any) string {
	display := "unknown"
	if b, ok := deref(value).(bool); ok {
		display = "no"
		if b {
			display = "yes"
		}
	}
	base := fm.IconURL
	if base == "" {
		base = DefaultIconURL
	}
	url := base + "icon-" + display + ".svg"
	return fmt.Sprintf(`<img src="%s" alt="%s">`, html.EscapeString(url), display)
}

// ForField renders the value of a column according to its kind
func (fm Formatter) ForField(value any, f *meta.Field) string {
	if f != nil && f.Kind == meta.KindBool {
		return fm.BooleanIcon(value)
	}
	value = deref(value)
	if value == nil {
		return fm.empty()
	}
	if f != nil && f.Kind == meta.KindFile {
		name := Text(value)
		if name == "" {
			return fm.empty()
		}
		if fm.DownloadURL == nil {
			return html.EscapeString(name)
		}
		url := fm.DownloadURL(f.Upload, name)
		if url == "" {
			return html.EscapeString(name)
		}
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), html.EscapeString(name))
	}
	return fm.ForValue(value, false)
}

// ForValue renders a value of unknown origin; boolean forces the icon
func (fm Formatter) ForValue(value any, boolean bool) string {
	if boolean {
		return fm.BooleanIcon(value)
	}
	value = deref(value)
	if value == nil {
		return fm.empty()
	}
	return html.EscapeString(Text(value))
}

// Text converts a value to plain text: dates as DD.MM.YYYY, slices comma joined
func Text(value any) string {
	value = deref(value)
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case time.Time:
		return v.Format(DateFormat)
	case datatypes.Date:
		return time.Time(v).Format(DateFormat)
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Text(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(value)
}

// deref follows pointers, turning nil pointers into nil
func deref(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
