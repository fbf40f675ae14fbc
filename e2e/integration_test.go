//go:build e2e

// Package e2e contains end-to-end integration tests against a real DynamoDB
// table (AWS or DynamoDB Local).
// Run with: E2E_STORAGE_CONN_STR="Endpoint=http://localhost:8000;Region=us-east-1;AccessKeyId=x;SecretAccessKey=x" go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jacentio/telemetry-gateway/api"
	"github.com/jacentio/telemetry-gateway/store"
	"github.com/jacentio/telemetry-gateway/telemetry"
)

// Test configuration
const (
	connStrEnv = "E2E_STORAGE_CONN_STR"
	apiKey     = "e2e-key"

	// Table names are unique per test run to avoid conflicts
	tablePrefix = "telemetry-e2e-test"
)

var (
	testTable string

	ddbClient *dynamodb.Client
	connector *store.Connector
	server    *httptest.Server
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	connStr := os.Getenv(connStrEnv)
	if connStr == "" {
		fmt.Printf("%s not set, skipping e2e tests\n", connStrEnv)
		os.Exit(0)
	}

	testTable = fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8])
	fmt.Printf("Table: %s\n", testTable)

	ctx := context.Background()
	cs, err := store.ParseConnectionString(connStr)
	if err != nil {
		fmt.Printf("Invalid %s: %v\n", connStrEnv, err)
		os.Exit(1)
	}
	client, err := store.DialDynamo(ctx, cs)
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}
	ddbClient = client.(*dynamodb.Client)

	cfg := store.DefaultConfig()
	cfg.TableName = testTable
	cfg.CreateTable = true

	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	connector = store.NewConnector(connStr, cfg, logger)

	// Acquiring with CreateTable set creates the table and waits for it.
	if _, err := connector.Acquire(ctx); err != nil {
		fmt.Printf("Failed to acquire store: %v\n", err)
		os.Exit(1)
	}

	router := api.NewRouter(connector, api.Options{APIKey: apiKey}, logger)
	server = httptest.NewServer(router.Handler())

	code := m.Run()

	server.Close()
	if err := deleteTable(ctx); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}

	os.Exit(code)
}

func deleteTable(ctx context.Context) error {
	fmt.Println("Deleting test table...")
	_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(testTable),
	})
	if err != nil {
		return fmt.Errorf("delete table %s: %w", testTable, err)
	}
	fmt.Println("Table deleted")
	return nil
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := connector.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return st
}

func call(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// --- Store Tests ---

func TestStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	device := "store-" + uuid.New().String()[:8]

	rec := telemetry.NewRecord(map[string]any{"deviceId": device, "temp": json.Number("21.5")})
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	records, err := st.List(ctx, device)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.RowKey != rec.RowKey || got.Fields["temp"] != json.Number("21.5") {
		t.Errorf("unexpected record: %+v", got)
	}
	if _, ok := got.Fields[store.TimestampAttr]; !ok {
		t.Error("expected Timestamp to be stamped")
	}
}

func TestStore_Merge(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	device := "merge-" + uuid.New().String()[:8]

	rec := telemetry.NewRecord(map[string]any{"deviceId": device, "temp": json.Number("1"), "unit": "C"})
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.Merge(ctx, telemetry.MergeRecord(map[string]any{"deviceId": device, "temp": json.Number("2")}, rec.RowKey)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	records, err := st.List(ctx, device)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if records[0].Fields["temp"] != json.Number("2") || records[0].Fields["unit"] != "C" {
		t.Errorf("expected merged record, got %v", records[0].Fields)
	}
}

func TestStore_MergeMissing(t *testing.T) {
	st := testStore(t)

	err := st.Merge(context.Background(), telemetry.MergeRecord(map[string]any{"deviceId": "nobody"}, uuid.New().String()))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Ping(t *testing.T) {
	if err := testStore(t).Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

// --- HTTP Tests ---

func TestHTTP_Lifecycle(t *testing.T) {
	device := "http-" + uuid.New().String()[:8]

	resp, body := call(t, http.MethodPost, "/telemetry",
		fmt.Sprintf(`{"deviceId":%q,"timestamp":"2024-01-01T00:00:00Z","temp":20}`, device))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		Entity map[string]any `json:"entity"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	rowKey, _ := created.Entity["RowKey"].(string)

	resp, body = call(t, http.MethodPost, "/telemetry",
		fmt.Sprintf(`{"deviceId":%q,"timestamp":"2024-02-01T00:00:00Z","temp":30}`, device))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second create: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, body = call(t, http.MethodGet, "/telemetry?deviceId="+device+"&top=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(records) != 1 || records[0]["timestamp"] != "2024-02-01T00:00:00Z" {
		t.Errorf("expected newest record only, got %v", records)
	}

	resp, body = call(t, http.MethodPut, "/telemetry/"+rowKey, fmt.Sprintf(`{"deviceId":%q,"temp":25}`, device))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, body)
	}

	for i := range 2 {
		resp, body = call(t, http.MethodDelete, "/telemetry/"+rowKey+"?deviceId="+device, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete #%d: expected 200, got %d: %s", i+1, resp.StatusCode, body)
		}
	}

	resp, body = call(t, http.MethodGet, "/telemetry?deviceId="+device, "")
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.StatusCode != http.StatusOK || len(records) != 1 {
		t.Errorf("expected 1 remaining record, got %d (status %d)", len(records), resp.StatusCode)
	}
}

func TestHTTP_Healthz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/healthz", nil)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHTTP_Unauthorized(t *testing.T) {
	resp, err := server.Client().Get(server.URL + "/telemetry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}
