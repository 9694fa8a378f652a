package format

import (
	"fmt"
	"io"
	"reflect"

	"github.com/bytedance/sonic"
)

const (
	JSON   = "json"
	NDJSON = "ndjson"
)

// Envelope is the shape of every CLI result.
type Envelope struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Write writes output in the requested format.
//
// Supported formats:
// - json (default): one {"data": ...} document
// - ndjson: one line per element when data is a slice, else a single line
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "", JSON:
		return WriteJSON(w, wrap(v), pretty)
	case NDJSON:
		return WriteNDJSON(w, unwrap(v))
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func wrap(v any) any {
	switch x := v.(type) {
	case Envelope, *Envelope:
		return x
	default:
		return Envelope{Data: v}
	}
}

func unwrap(v any) any {
	switch x := v.(type) {
	case Envelope:
		return x.Data
	case *Envelope:
		return x.Data
	default:
		return v
	}
}

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = sonic.ConfigStd.MarshalIndent(v, "", "  ")
	} else {
		b, err = sonic.ConfigStd.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteNDJSON writes one compact JSON document per line.
func WriteNDJSON(w io.Writer, v any) error {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return WriteLine(w, v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := WriteLine(w, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// WriteLine writes v as a single compact JSON line (streaming output).
func WriteLine(w io.Writer, v any) error {
	return WriteJSON(w, v, false)
}
