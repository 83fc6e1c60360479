package localization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/pitabwire/util"
)

// Text is a display string that is either plain or keyed by language code.
// The zero value is an absent text and resolves to "".
type Text struct {
	plain     string
	values    map[string]string
	localized bool
	set       bool
}

// PlainText returns a Text that resolves to s in every language.
func PlainText(s string) Text {
	return Text{plain: s, set: true}
}

// LocalizedMap returns a Text resolved per language. The map is copied.
func LocalizedMap(values map[string]string) Text {
	return Text{values: maps.Clone(values), localized: true, set: true}
}

// IsZero reports whether the text is absent.
func (t Text) IsZero() bool {
	return !t.set
}

// IsLocalized reports whether the text carries a language mapping.
func (t Text) IsLocalized() bool {
	return t.localized
}

// Values returns a copy of the language mapping, nil for plain texts.
func (t Text) Values() map[string]string {
	return maps.Clone(t.values)
}

// String resolves the text in English without logging.
func (t Text) String() string {
	value, _ := pick(t, DefaultLanguage)
	return value
}

// UnmarshalJSON accepts a JSON string, an object of language code to string, or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*t = Text{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = PlainText(s)
		return nil
	case data[0] == '{':
		var raw map[string]*string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		values := make(map[string]string, len(raw))
		for code, v := range raw {
			if v != nil {
				values[code] = *v
			}
		}
		*t = Text{values: values, localized: true, set: true}
		return nil
	default:
		return fmt.Errorf("localization: text must be a string or an object, got %s", data)
	}
}

// MarshalJSON writes the same shape that was decoded.
func (t Text) MarshalJSON() ([]byte, error) {
	switch {
	case !t.set:
		return []byte("null"), nil
	case t.localized:
		if t.values == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(t.values)
	default:
		return json.Marshal(t.plain)
	}
}

// Resolve picks the display string for lang: the requested language, then English,
// then the first non-empty value in Supported order, then "".
func Resolve(ctx context.Context, t Text, lang string) string {
	if !t.set {
		util.Log(ctx).Warn("localized text is missing")
		return ""
	}

	value, source := pick(t, lang)
	switch {
	case !t.localized:
	case source == "":
		util.Log(ctx).WithField("requested", lang).Warn("localized text has no value in any language")
	case source != lang && source != DefaultLanguage:
		util.Log(ctx).
			WithField("requested", lang).
			WithField("fallback", source).
			Warn("localized text fell back to another language")
	}
	return value
}

// pick returns the resolved value and the language it came from, "" when nothing matched.
func pick(t Text, lang string) (string, string) {
	if !t.localized {
		return t.plain, lang
	}
	if v := t.values[lang]; v != "" {
		return v, lang
	}
	if v := t.values[DefaultLanguage]; v != "" {
		return v, DefaultLanguage
	}
	for _, code := range Supported {
		if v := t.values[code]; v != "" {
			return v, code
		}
	}
	return "", ""
}
