package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()

	now := time.Now()
	req := CreateOrderRequest{
		CustomerID:   "cust-123",
		CustomerName: "Ada",
		Items: []Item{
			{SKU: "sku-1", Name: "pho", Quantity: 2, Price: 10.0},
			{SKU: "sku-2", Name: "tea", Quantity: 1, Price: 5.5},
		},
		Amount:    25.5, // 2*10 + 1*5.5 = 25.5
		Metadata:  map[string]interface{}{"note": "test"},
		CreatedAt: &now,
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_InvalidAmountMismatch(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		CustomerID: "cust-123",
		Items: []Item{
			{SKU: "sku-1", Name: "pho", Quantity: 1, Price: 10.0},
		},
		Amount: 9.99, // mismatch
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for amount mismatch, got nil")
	}
}

func TestCreateOrderRequest_MissingFields(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		// CustomerID missing
		Items:  []Item{},
		Amount: 0,
	}

	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestUpdateStatusRequest(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(UpdateStatusRequest{From: "pending", To: "cancelled"}))
	assert.Error(t, v.Struct(UpdateStatusRequest{From: "pending", To: "lost"}))
	assert.Error(t, v.Struct(UpdateStatusRequest{From: "pending", To: "pending"}))
	assert.Error(t, v.Struct(UpdateStatusRequest{To: "served"}))
}

func TestUpdateConfigRequest(t *testing.T) {
	v := New()
	yes, no := true, false

	assert.NoError(t, v.Struct(UpdateConfigRequest{Enabled: &yes, Destination: "shop@x.com"}))
	assert.NoError(t, v.Struct(UpdateConfigRequest{Enabled: &no}))
	assert.Error(t, v.Struct(UpdateConfigRequest{Enabled: &yes}))
	assert.Error(t, v.Struct(UpdateConfigRequest{Enabled: &yes, Destination: "shop"}))
	assert.Error(t, v.Struct(UpdateConfigRequest{Destination: "shop@x.com"}))
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		name  string
		body  string
		code  int
		error string
	}{
		{"ok", `{"enabled":true,"destination":"shop@x.com"}`, http.StatusOK, ""},
		{"bad json", `{"enabled":`, http.StatusBadRequest, "invalid_request_body"},
		{"invalid", `{"enabled":true}`, http.StatusBadRequest, "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPut, "/notification-config", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req UpdateConfigRequest
			err := BindAndValidate(c, &req, v)
			if tc.error == "" {
				require.NoError(t, err)
				assert.True(t, *req.Enabled)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), tc.error)
		})
	}
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	yes := true
	err := New().Struct(UpdateConfigRequest{Enabled: &yes, Destination: "shop"})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"destination": "email"}, validationErrorsToMap(err))
}
