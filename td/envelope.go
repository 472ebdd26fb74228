package td

import (
	"encoding/json"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Envelope holds the routing fields of an engine object.
type Envelope struct {
	Type     string
	Extra    string
	ClientID int32
}

// Peek reads the routing fields of the object without decoding the rest of
// it. Numeric "@extra" values are returned in their decimal form.
func Peek(data []byte) (Envelope, error) {
	var env Envelope
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "@type":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "@type")
			}
			env.Type = s
		case "@extra":
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				if err != nil {
					return errors.Wrap(err, "@extra")
				}
				env.Extra = s
			case jx.Number:
				n, err := d.Int64()
				if err != nil {
					return errors.Wrap(err, "@extra")
				}
				env.Extra = strconv.FormatInt(n, 10)
			default:
				return d.Skip()
			}
		case "@client_id":
			n, err := d.Int32()
			if err != nil {
				return errors.Wrap(err, "@client_id")
			}
			env.ClientID = n
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return Envelope{}, errors.Wrap(err, "peek")
	}
	if env.Type == "" {
		return Envelope{}, errors.New("object has no @type")
	}
	return env, nil
}

// encode marshals v and prepends the "@type" and, if not empty, "@extra"
// fields to it. v must marshal to a JSON object.
func encode(typ string, extra string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", typ)
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("@type")
	e.Str(typ)
	if extra != "" {
		e.FieldStart("@extra")
		e.Str(extra)
	}
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if len(key) > 0 && key[0] == '@' {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		e.FieldStart(string(key))
		e.Raw(raw)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "encode %s", typ)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}
