package levels

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decode parses an sfm_maps document. Either the whole Level is returned or
// an error wrapping ErrDecode; there are no partial results.
func Decode(text string) (*Level, error) {
	l, _, err := decode(text)
	return l, err
}

// DecodeDeclared is Decode that also reports the num_objects each map
// declared. The values play no part in the returned Level.
func DecodeDeclared(text string) (*Level, []uint32, error) {
	return decode(text)
}

func decode(text string) (*Level, []uint32, error) {
	var w wireLevel
	d := xml.NewDecoder(strings.NewReader(text))
	start, err := rootElement(d)
	if err != nil {
		return nil, nil, &DecodeError{Err: err}
	}
	if err := d.DecodeElement(&w, &start); err != nil {
		return nil, nil, &DecodeError{Err: err}
	}
	if err := trailer(d); err != nil {
		return nil, nil, &DecodeError{Err: err}
	}
	l, err := fromWire(&w)
	if err != nil {
		return nil, nil, err
	}
	declared := make([]uint32, len(w.Maps))
	for i, m := range w.Maps {
		declared[i] = uint32(*m.Head.NumObjects)
	}
	return l, declared, nil
}

// rootElement skips the prolog. Only whitespace, comments, processing
// instructions and a doctype may precede the root.
func rootElement(d *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return xml.StartElement{}, errors.New("no root element")
		}
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return xml.StartElement{}, fmt.Errorf("text %q before root element", clip(t))
			}
		}
	}
}

// trailer consumes what follows the root. A second element or stray text
// makes the document malformed.
func trailer(d *xml.Decoder) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("element <%s> after root element", t.Name.Local)
		case xml.EndElement:
			return fmt.Errorf("unexpected </%s> after root element", t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("text %q after root element", clip(t))
			}
		}
	}
}

func clip(b []byte) string {
	const max = 32
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// Encode writes l as a compact sfm_maps document.
func Encode(l *Level) (string, error) {
	return encode(l, "", "")
}

// EncodeIndent is like Encode but puts each element on its own line.
func EncodeIndent(l *Level, prefix, indent string) (string, error) {
	return encode(l, prefix, indent)
}

// encoding/xml never self-closes, so <map id="0"></map> and empty events come
// out as explicit pairs, which is what the game's parser requires.
func encode(l *Level, prefix, indent string) (string, error) {
	if l == nil {
		return "", &EncodeError{Err: errors.New("nil level")}
	}
	w, err := toWire(l)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if prefix != "" || indent != "" {
		e.Indent(prefix, indent)
	}
	if err := e.Encode(w); err != nil {
		return "", &EncodeError{Err: err}
	}
	if err := e.Close(); err != nil {
		return "", &EncodeError{Err: err}
	}
	return buf.String(), nil
}
