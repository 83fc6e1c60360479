package internal

import (
	"encoding/json"
	"errors"
	"reflect"
)

func Marshal(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v.MarshalJSON()
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(payload)
	}
}

// Unmarshal decodes data into holder, which must be a non-nil pointer.
// Byte, raw message and string holders receive the data unchanged.
func Unmarshal(data []byte, holder any) error {
	if holder == nil {
		return errors.New("holder is nil")
	}

	rv := reflect.ValueOf(holder)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("holder must be a non-nil pointer")
	}

	switch v := holder.(type) {
	case *[]byte:
		*v = append((*v)[:0], data...)
	case *json.RawMessage:
		*v = append((*v)[:0], data...)
	case *string:
		*v = string(data)
	default:
		return json.Unmarshal(data, holder)
	}
	return nil
}
