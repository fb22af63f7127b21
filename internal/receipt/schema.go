package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
)

const schemaURL = "receipt.json"

const receiptSchema = `{
  "type": "object",
  "required": ["date", "currency", "vendorName", "items", "tax", "total"],
  "properties": {
    "date": {"type": "string", "format": "date"},
    "currency": {"type": "string", "pattern": "^[A-Za-z]{3}$"},
    "vendorName": {"type": "string", "minLength": 1, "pattern": "\\S"},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "cost"],
        "properties": {
          "name": {"type": "string", "minLength": 1, "pattern": "\\S"},
          "qty": {"type": "integer", "minimum": 1},
          "cost": {"type": "number", "minimum": 0}
        }
      }
    },
    "tax": {"type": "number", "minimum": 0},
    "total": {"type": "number", "minimum": 0}
  }
}`

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaURL, strings.NewReader(receiptSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Decode validates a Valid document against the receipt schema and converts
// it into model.ReceiptData. Quantities default to 1 and the currency code is
// upper-cased. Violations are returned as apperr.ErrParse.
func Decode(doc json.RawMessage) (*model.ReceiptData, error) {
	s, err := schema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(string(doc)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Parse("decode receipt", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, apperr.Parse("Validation failed: "+describe(err), nil)
	}

	var w wireReceipt
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, apperr.Parse("decode receipt", err)
	}
	data := &model.ReceiptData{
		Date:       w.Date,
		Currency:   strings.ToUpper(w.Currency),
		VendorName: strings.TrimSpace(w.VendorName),
		Items:      make([]model.ReceiptItem, 0, len(w.Items)),
		Tax:        w.Tax,
		Total:      w.Total,
	}
	for _, it := range w.Items {
		qty := int(math.Round(it.Qty))
		if qty <= 0 {
			qty = 1
		}
		data.Items = append(data.Items, model.ReceiptItem{Name: it.Name, Quantity: qty, Cost: it.Cost})
	}
	return data, nil
}

// wireReceipt accepts qty as any JSON number ("3" or "3.0").
type wireReceipt struct {
	Date       string  `json:"date"`
	Currency   string  `json:"currency"`
	VendorName string  `json:"vendorName"`
	Tax        float64 `json:"tax"`
	Total      float64 `json:"total"`
	Items      []struct {
		Name string  `json:"name"`
		Qty  float64 `json:"qty"`
		Cost float64 `json:"cost"`
	} `json:"items"`
}

func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	collect(ve, &msgs)
	if len(msgs) == 0 {
		return ve.Message
	}
	return strings.Join(msgs, "; ")
}

func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, loc+": "+ve.Message)
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
