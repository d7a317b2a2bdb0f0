package validation

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Amount must match the sum of (price * quantity) of items.
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	// An enabled config needs somewhere to send to.
	v.RegisterStructValidation(updateConfigStructValidation, UpdateConfigRequest{})
	_ = v.RegisterValidation("order_status", func(fl validatorv10.FieldLevel) bool {
		return orders.ValidStatus(fl.Field().String())
	})

	return v
}

// createOrderStructValidation verifies the aggregated total of items equals Amount (within cents)
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum float64
	for _, it := range req.Items {
		sum += float64(it.Quantity) * it.Price
	}

	sumCents := int(math.Round(sum * 100))
	amountCents := int(math.Round(req.Amount * 100))
	if sumCents != amountCents {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items", fmt.Sprintf("items sum %.2f != amount %.2f", sum, req.Amount))
	}
}

func updateConfigStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateConfigRequest)
	if req.Enabled != nil && *req.Enabled && strings.TrimSpace(req.Destination) == "" {
		sl.ReportError(req.Destination, "destination", "Destination", "required_when_enabled", "")
	}
}
