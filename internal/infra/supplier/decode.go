package supplier

import (
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// The panel mixes strings and numbers for the same field, so every scalar is
// read through looseString.
func looseString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

func looseInt(d *jx.Decoder) (int, error) {
	s, err := looseString(d)
	if err != nil || s == "" {
		return 0, err
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse int %q", s)
	}
	return int(f), nil
}

func looseDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := looseString(d)
	if err != nil || s == "" {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse decimal %q", s)
	}
	return v, nil
}

func looseBool(d *jx.Decoder) (bool, error) {
	s, err := looseString(d)
	if err != nil {
		return false, err
	}
	return s == "true" || s == "1", nil
}

// checkError returns an *APIError when body is an object with an "error" key.
func checkError(action string, body []byte) error {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil
	}

	var apiErr *APIError
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "error" {
			return d.Skip()
		}
		msg, err := looseString(d)
		if err != nil {
			return err
		}
		apiErr = &APIError{Action: action, Message: msg}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "decode body")
	}
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func decodeOrderStatus(d *jx.Decoder) (*OrderStatus, error) {
	var (
		out    OrderStatus
		apiErr string
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			out.Status, err = looseString(d)
		case "start_count":
			out.StartCount, err = looseInt(d)
		case "remains":
			out.Remains, err = looseInt(d)
		case "charge":
			out.Charge, err = looseDecimal(d)
		case "currency":
			out.Currency, err = looseString(d)
		case "error":
			apiErr, err = looseString(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if apiErr != "" {
		return nil, &APIError{Action: "status", Message: apiErr}
	}
	return &out, nil
}

func decodeBatchStatus(body []byte) (map[string]BatchResult, error) {
	out := make(map[string]BatchResult)
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		status, err := decodeOrderStatus(d)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				out[key] = BatchResult{Err: apiErr}
				return nil
			}
			return errors.Wrap(err, key)
		}
		out[key] = BatchResult{Status: status}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode batch status")
	}
	return out, nil
}

// decodeField reads a single scalar field from a flat object.
func decodeField(body []byte, field string) (string, error) {
	var value string
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		v, err := looseString(d)
		value = v
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", field)
	}
	if value == "" {
		return "", errors.Errorf("missing %q in answer", field)
	}
	return value, nil
}

func decodeBalance(body []byte) (*Balance, error) {
	var out Balance
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "balance":
			out.Amount, err = looseDecimal(d)
		case "currency":
			out.Currency, err = looseString(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode balance")
	}
	return &out, nil
}

func decodeServices(body []byte) ([]Service, error) {
	var out []Service
	d := jx.DecodeBytes(body)
	err := d.Arr(func(d *jx.Decoder) error {
		var s Service
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "service":
				s.ID, err = looseString(d)
			case "name":
				s.Name, err = looseString(d)
			case "type":
				s.Type, err = looseString(d)
			case "category":
				s.Category, err = looseString(d)
			case "rate":
				s.Rate, err = looseDecimal(d)
			case "min":
				s.Min, err = looseInt(d)
			case "max":
				s.Max, err = looseInt(d)
			case "refill":
				s.Refill, err = looseBool(d)
			case "cancel":
				s.Cancel, err = looseBool(d)
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode services")
	}
	return out, nil
}
