package erp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signup-middleware/errs"
)

func TestEnvelopeDataUnwrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/cust-1/invoices" {
			t.Errorf("unexpected path %v", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":[{"id":"inv-1","amount":120}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 30*time.Second)
	data, err := c.GetInvoices(context.Background(), "cust-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `[{"id":"inv-1","amount":120}]` {
		t.Errorf("unexpected data: %v", string(data))
	}
}

func TestErrorFieldSurfacesAsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":"customer not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 30*time.Second)
	_, err := c.GetInvoices(context.Background(), "nobody")
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "customer not found" {
		t.Errorf("error message %v, want the envelope's error field", err.Error())
	}
}

func TestFailureEnvelopeOn200(t *testing.T) {
	// the gateway sometimes reports business failures with a 2xx status
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"autopay not configured"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 30*time.Second)
	_, err := c.GetAutopayStatus(context.Background(), "cust-1")
	if err == nil || err.Error() != "autopay not configured" {
		t.Errorf("got %v, want the envelope error", err)
	}
}

func TestTimeoutIsDistinctKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 20*time.Millisecond)
	_, err := c.GetPayments(context.Background(), "cust-1")
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if !errs.IsTimeout(err) {
		t.Errorf("want a timeout kind, got %T: %v", err, err)
	}
}

func TestAuthorizationHeaderSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("missing bearer token, got %v", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", 30*time.Second)
	if _, err := c.UpsertCustomer(context.Background(), "cust-1", map[string]string{"name": "Ada"}); err != nil {
		t.Fatal(err)
	}
}
