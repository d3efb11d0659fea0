package core

// validation.go checks built records before they are persisted.
//
// Field rules live in the records' validate tags. This file wires the
// validator for the types a broker export needs: decimals are compared as
// floats, currency codes are checked against the ISO 4217 table of go-money,
// and pending orders need a price unless they are market orders.

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator validates record candidates. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a validator with the record rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return money.GetCurrency(fl.Field().String()) != nil
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		o := sl.Current().Interface().(PendingOrder)
		if o.Type != OrderMarket && !o.Price.IsPositive() {
			sl.ReportError(o.Price, "price", "Price", "price_required", "")
		}
	}, PendingOrder{})

	return &Validator{v: v}
}

// Check returns one FieldError per failing field, in struct field order.
// Values are left empty; the caller fills in the raw cell text.
func (v *Validator) Check(rec Record) []FieldError {
	err := v.v.Struct(rec)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "ne":
		if fe.Param() == "0" {
			return "must not be zero"
		}
		return "must not be " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "currency":
		return "is not a valid ISO 4217 currency code"
	case "price_required":
		return "must be greater than 0 unless the order type is market"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
