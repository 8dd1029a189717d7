package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/request" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["merchant"] != "mk-123" {
			t.Errorf("merchant = %v", req["merchant"])
		}
		if req["amount"] != 9.99 {
			t.Errorf("amount = %v", req["amount"])
		}
		if req["orderId"] == "" {
			t.Error("missing orderId")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": 100, "trackId": "t-55", "payLink": "https://pay.example/t-55",
		})
	}))
	defer srv.Close()

	c := NewClient("mk-123", srv.URL)
	inv, err := c.CreateInvoice(context.Background(), 9.99, "premium plan")
	if err != nil {
		t.Fatal(err)
	}
	if inv.TrackID != "t-55" || inv.PayLink == "" || inv.OrderID == "" {
		t.Errorf("invoice = %+v", inv)
	}
}

func TestCreateInvoiceAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": 102, "message": "invalid merchant"})
	}))
	defer srv.Close()

	c := NewClient("bad", srv.URL)
	if _, err := c.CreateInvoice(context.Background(), 5, ""); err == nil {
		t.Fatal("expected error for non-100 result")
	}
}

func TestInvoiceStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/merchants/inquiry" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["trackId"] != "t-55" {
			t.Errorf("trackId = %v", req["trackId"])
		}
		json.NewEncoder(w).Encode(map[string]any{"result": 100, "status": "Paid"})
	}))
	defer srv.Close()

	c := NewClient("mk-123", srv.URL)
	status, err := c.InvoiceStatus(context.Background(), "t-55")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusPaid {
		t.Errorf("status = %q, want %q", status, StatusPaid)
	}
}
