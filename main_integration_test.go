package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ledgerly/einvoice/internal/auth"
	"ledgerly/einvoice/internal/invoicing"
)

const (
	testAppBinary         = "./einvoice_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091"
	testServiceApiPortBg  = "8092"
	testAppURL            = "http://localhost:" + testAppPort
	testJwtSecret         = "integration-test-secret"
	testDbName            = "einvoice_integration"
	testBookID            = "book-int"
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

var (
	integrationEnabled bool
	workerRunning      bool
	accountingAPI      = &fakeAccountingAPI{}
)

// fakeAccountingAPI plays the external accounting service for one book.
type fakeAccountingAPI struct {
	mu              sync.Mutex
	created         []invoicing.InvoiceRequest
	idempotencyKeys []string
}

func (f *fakeAccountingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/books/" + testBookID
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "/taxrates":
		_, _ = io.WriteString(w, `[{"id":"tr-gst","code":"GST","name":"Goods and Services Tax","percent":"10"}]`)
	case r.Method == http.MethodGet && path == "/items/prod-1":
		_, _ = io.WriteString(w, `{"id":"prod-1","saleDescription":"Consulting hour","salePrice":"150","taxCode":"GST"}`)
	case r.Method == http.MethodPost && path == "/invoices":
		var req invoicing.InvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.created = append(f.created, req)
		f.idempotencyKeys = append(f.idempotencyKeys, r.Header.Get("Idempotency-Key"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"inv-int-1","invoiceNumber":"INV-0001"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAccountingAPI) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// TestMain builds the binary and starts the API (and, with an S3 bucket configured, the worker)
// against a fake accounting API. Nothing runs unless INTEGRATION is set.
func TestMain(m *testing.M) {
	godotenv.Load()
	if os.Getenv("INTEGRATION") == "" || os.Getenv("MONGO_URI") == "" {
		os.Exit(m.Run())
	}
	integrationEnabled = true
	os.Exit(runIntegration(m))
}

func runIntegration(m *testing.M) int {
	defer func() { _ = os.Remove(testAppBinary) }()

	log.Println("Integration Test Setup: Building application...")
	buildOutput, err := exec.Command("go", "build", "-o", testAppBinary, ".").CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		return 1
	}

	fakeServer := httptest.NewServer(accountingAPI)
	defer fakeServer.Close()
	defer dropTestDatabase()

	env := append(os.Environ(),
		"JWT_SECRET="+testJwtSecret,
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"MONGO_DB_NAME="+testDbName,
		"ACCOUNTING_API_URL="+fakeServer.URL,
		"SMTP_FROM_ADDRESS=test@example.com",
	)

	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(env, "API_PORT="+testAppPort, "SERVICE_API_PORT="+testServiceApiPortApi)
	apiCmd.Stdout, apiCmd.Stderr = os.Stdout, os.Stderr
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		return 1
	}
	defer stopProcess(apiCmd)

	if os.Getenv("AWS_S3_BUCKET") != "" {
		bgCmd := exec.Command(testAppBinary, "-m", "bg")
		bgCmd.Env = append(env, "SERVICE_API_PORT="+testServiceApiPortBg)
		bgCmd.Stdout, bgCmd.Stderr = os.Stdout, os.Stderr
		if err := bgCmd.Start(); err != nil {
			log.Printf("Failed to start Background Worker process: %v", err)
			return 1
		}
		defer stopProcess(bgCmd)
		workerRunning = true
	}

	if !waitForPing() {
		log.Printf("Application failed to start within %v", startupTimeout)
		return 1
	}
	return m.Run()
}

func waitForPing() bool {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(pingEndpoint)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK && string(body) == "pong" {
				return true
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func stopProcess(cmd *exec.Cmd) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_, _ = cmd.Process.Wait()
}

func dropTestDatabase() {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(os.Getenv("MONGO_URI")))
	if err != nil {
		log.Printf("Integration Test Teardown: cannot connect to MongoDB: %v", err)
		return
	}
	defer client.Disconnect(context.Background())
	_ = client.Database(testDbName).Drop(context.Background())
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if !integrationEnabled {
		t.Skip("INTEGRATION not set, skipping end-to-end test")
	}
}

func call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, testAppURL+path, &buf)
	require.NoError(t, err)
	tok, err := auth.GenerateJWT("user-int", testBookID, false, testJwtSecret, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestIntegration_Ping(t *testing.T) {
	requireIntegration(t)
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_TaxRatesAndTotals(t *testing.T) {
	requireIntegration(t)

	var rates struct {
		TaxRates []invoicing.TaxRate `json:"tax_rates"`
	}
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, "/v1/tax-rates", nil, &rates))
	found := false
	for _, r := range rates.TaxRates {
		if r.Code == "GST" {
			found = true
			assert.Equal(t, "tr-gst", r.ID)
		}
	}
	assert.True(t, found, "GST should come from the accounting API")

	var item invoicing.LineItem
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, "/v1/products/prod-1/line-item", nil, &item))
	assert.Equal(t, "150.00", item.UnitPrice)

	item.Quantity = "3"
	var totals struct {
		Totals invoicing.InvoiceTotals `json:"totals"`
	}
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, "/v1/invoices/totals", map[string]interface{}{"line_items": []invoicing.LineItem{item}}, &totals))
	assert.Equal(t, "450.00", totals.Totals.Subtotal)
	assert.Equal(t, "45.00", totals.Totals.Tax)
	assert.Equal(t, "495.00", totals.Totals.Total)
}

func TestIntegration_DraftLifecycle(t *testing.T) {
	requireIntegration(t)

	form := invoicing.InvoiceFormValues{CustomerID: "cust-1", InvoiceDate: "2026-03-01"}
	var draft struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	}
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, "/v1/drafts", map[string]interface{}{"form": form}, &draft))
	assert.True(t, strings.HasPrefix(draft.Reference, "DRF-"))

	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, "/v1/drafts/"+draft.Reference, nil, nil))
	assert.Equal(t, http.StatusNoContent, call(t, http.MethodDelete, "/v1/drafts/"+draft.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, "/v1/drafts/"+draft.ID, nil, nil))
}

func TestIntegration_SubmitInvoice(t *testing.T) {
	requireIntegration(t)

	form := invoicing.InvoiceFormValues{
		CustomerID:  "cust-1",
		InvoiceDate: "2026-03-01",
		LineItems:   []invoicing.LineItem{{ProductID: "prod-1", UnitPrice: "150", Quantity: "2", TaxCode: "GST"}},
	}

	assert.Equal(t, http.StatusUnprocessableEntity, call(t, http.MethodPost, "/v1/invoices", invoicing.InvoiceFormValues{}, nil))

	var accepted struct {
		SubmissionID string                   `json:"submission_id"`
		Request      invoicing.InvoiceRequest `json:"request"`
	}
	require.Equal(t, http.StatusAccepted, call(t, http.MethodPost, "/v1/invoices", form, &accepted))
	require.NotEmpty(t, accepted.SubmissionID)
	assert.Equal(t, "330.00", accepted.Request.Total)

	if !workerRunning {
		t.Skip("AWS_S3_BUCKET not set, background worker not started")
	}

	var sub struct {
		Status    string `json:"status"`
		InvoiceID string `json:"invoice_id"`
	}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		require.Equal(t, http.StatusOK, call(t, http.MethodGet, "/v1/submissions/"+accepted.SubmissionID, nil, &sub))
		if sub.Status != "queued" {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	assert.Equal(t, "sent", sub.Status)
	assert.Equal(t, "inv-int-1", sub.InvoiceID)
	require.Equal(t, 1, accountingAPI.createdCount())

	accountingAPI.mu.Lock()
	defer accountingAPI.mu.Unlock()
	assert.NotEmpty(t, accountingAPI.idempotencyKeys[0])
}
