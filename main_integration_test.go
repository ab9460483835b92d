//go:build integration

package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	testAppBinary         = "./equimarket_test_app"
	testAppPort           = "8089"
	testServiceApiPortApi = "8091"
	testServiceApiPortBg  = "8092"
	testDbName            = "equimarket_integration"
	testAppURL            = "http://localhost:" + testAppPort
	testSocketURL         = "ws://localhost:" + testAppPort + "/v1/socket"
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

// TestMain builds the binary, starts an API and a background process against
// a scratch database and tears everything down afterwards.
func TestMain(m *testing.M) {
	_ = godotenv.Load()
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		log.Println("MONGO_URI not set, skipping integration tests")
		return
	}

	defer func() { _ = os.Remove(testAppBinary) }()

	buildOutput, err := exec.Command("go", "build", "-o", testAppBinary, ".").CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}

	dropTestDatabase(mongoURI)
	defer dropTestDatabase(mongoURI)

	commonEnv := append(os.Environ(),
		"MONGO_DB_NAME="+testDbName,
		"JWT_SECRET=integration-test-secret",
		"APP_ENV=test",
		"GIN_MODE=release",
		"AWS_S3_BUCKET=integration-test-bucket",
		"RATE_LIMIT_BUCKET_SIZE=200",
		"RATE_LIMIT_REFILL_RATE=100",
		"REALTIME_BACKPLANE=redis",
		"JOBS_STARTUP_DELAY=1h",
	)

	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(commonEnv, "API_PORT="+testAppPort, "SERVICE_API_PORT="+testServiceApiPortApi)
	apiCmd.Stdout, apiCmd.Stderr = os.Stdout, os.Stderr

	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = append(commonEnv, "SERVICE_API_PORT="+testServiceApiPortBg)
	bgCmd.Stdout, bgCmd.Stderr = os.Stdout, os.Stderr

	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	defer stopProcess("API", apiCmd)
	if err := bgCmd.Start(); err != nil {
		log.Printf("Failed to start background process: %v", err)
		return
	}
	defer stopProcess("background", bgCmd)

	if !waitForPing() {
		log.Printf("Application failed to start within %v", startupTimeout)
		return
	}

	code := m.Run()
	if code != 0 {
		log.Printf("Integration tests failed with exit code %d", code)
	}
}

func stopProcess(name string, cmd *exec.Cmd) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Failed to send SIGTERM to %s process: %v. Killing.", name, err)
		_ = cmd.Process.Kill()
		return
	}
	_, _ = cmd.Process.Wait()
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

func dropTestDatabase(uri string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Printf("Failed to connect to MongoDB for cleanup: %v", err)
		return
	}
	defer client.Disconnect(ctx)
	if err := client.Database(testDbName).Drop(ctx); err != nil {
		log.Printf("Failed to drop test database: %v", err)
	}
}

func promoteToAdmin(t *testing.T, email string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(os.Getenv("MONGO_URI")))
	require.NoError(t, err)
	defer client.Disconnect(ctx)
	res, err := client.Database(testDbName).Collection("users").
		UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": bson.M{"role": "admin"}})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.MatchedCount)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func call(t *testing.T, method, url, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func register(t *testing.T, name, email string) (token, id string) {
	t.Helper()
	status, resp := call(t, http.MethodPost, testAppURL+"/v1/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "correct-horse-battery", "city": "İzmir",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var auth struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	return auth.Token, auth.User.ID
}

func login(t *testing.T, email string) string {
	t.Helper()
	status, resp := call(t, http.MethodPost, testAppURL+"/v1/auth/login", "", map[string]any{
		"email": email, "password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &auth))
	return auth.Token
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// waitForEvent reads frames until event arrives or the deadline passes.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		err := conn.ReadJSON(&f)
		require.NoError(t, err, "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestIntegration_ListingOfferFlow(t *testing.T) {
	suffix := time.Now().UnixNano()
	sellerEmail := fmt.Sprintf("seller-%d@example.com", suffix)
	buyerEmail := fmt.Sprintf("buyer-%d@example.com", suffix)
	adminEmail := fmt.Sprintf("admin-%d@example.com", suffix)

	sellerToken, sellerID := register(t, "Ayşe Satıcı", sellerEmail)
	buyerToken, _ := register(t, "Mehmet Alıcı", buyerEmail)
	register(t, "Yönetici", adminEmail)
	promoteToAdmin(t, adminEmail)
	adminToken := login(t, adminEmail)

	// Create: listings start pending and stay hidden from other users.
	status, resp := call(t, http.MethodPost, testAppURL+"/v1/horses", sellerToken, map[string]any{
		"name": "Rüzgar", "breed": "Arap", "gender": "erkek", "age": 5, "price": 150000, "city": "İzmir",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var listing struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Equal(t, "pending", listing.Status)

	status, _ = call(t, http.MethodGet, testAppURL+"/v1/horses/"+listing.ID, buyerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, http.MethodPost, testAppURL+"/v1/admin/horses/"+listing.ID+"/approve", buyerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = call(t, http.MethodPost, testAppURL+"/v1/admin/horses/"+listing.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, &listing))
	assert.Equal(t, "active", listing.Status)

	// Seller listens on the socket while the buyer makes an offer.
	conn, _, err := websocket.DefaultDialer.Dial(testSocketURL+"?token="+sellerToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	status, resp = call(t, http.MethodGet, testAppURL+"/v1/users/"+sellerID+"/online", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"online":true}`, string(resp.Data))

	status, resp = call(t, http.MethodPost, testAppURL+"/v1/messages/send", buyerToken, map[string]any{
		"recipientId": sellerID, "horseId": listing.ID, "type": "offer", "offerAmount": 120000,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var offer struct {
		ID           string `json:"id"`
		Conversation string `json:"conversation"`
		Content      string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &offer))
	assert.Equal(t, "₺120.000 teklif gönderildi", offer.Content)

	pushed := waitForEvent(t, conn, "notification:message")
	var preview struct {
		ConversationID string `json:"conversationId"`
		MessageID      string `json:"messageId"`
	}
	require.NoError(t, json.Unmarshal(pushed.Data, &preview))
	assert.Equal(t, offer.Conversation, preview.ConversationID)
	assert.Equal(t, offer.ID, preview.MessageID)

	status, resp = call(t, http.MethodGet, testAppURL+"/v1/messages/unread-count", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":1}`, string(resp.Data))

	// Only the recipient may answer, and only once.
	status, _ = call(t, http.MethodPut, testAppURL+"/v1/messages/"+offer.ID+"/offer-response", buyerToken,
		map[string]any{"response": "accept"})
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = call(t, http.MethodPut, testAppURL+"/v1/messages/"+offer.ID+"/offer-response", sellerToken,
		map[string]any{"response": "accept"})
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, _ = call(t, http.MethodPut, testAppURL+"/v1/messages/"+offer.ID+"/offer-response", sellerToken,
		map[string]any{"response": "reject"})
	assert.Equal(t, http.StatusConflict, status)

	status, resp = call(t, http.MethodGet, testAppURL+"/v1/notifications/unread-count", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"count":1}`, string(resp.Data))

	// The background worker delivers the offer email to the Redis test mailbox.
	status, resp = call(t, http.MethodPost, testServiceApiURL+"/api", "", map[string]any{
		"method": "getTestEmail", "arguments": []string{buyerEmail},
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Contains(t, string(resp.Data), "Teklifiniz kabul edildi")
}

func TestIntegration_Healthz(t *testing.T) {
	resp, err := http.Get(testServiceApiURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "onlineCount")
}
