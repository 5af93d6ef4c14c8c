// Package testserver runs an in-process stand-in for the order service's
// HTTP contract: password-grant token endpoint, health probe, analytics and
// order creation.
package testserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpggio/hubwatch/internal/transport"
)

// Default credentials accepted by the token endpoint.
const (
	Username = "admin"
	Password = "admin123"
)

const tokenTTL = 30 * time.Minute

type orderItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type createOrderRequest struct {
	CustomerName *string     `json:"customer_name"`
	Items        []orderItem `json:"items"`
}

// Order is an order accepted by the test server.
type Order struct {
	OrderUUID    string    `json:"order_uuid"`
	CustomerName string    `json:"customer_name"`
	Status       string    `json:"status"`
	TotalAmount  float64   `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// TestServer is a fake order service.
type TestServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	secret   []byte
	users    map[string][]byte
	health   string
	orders   []Order
	hits     map[string]int
	auth     map[string]string
	failures map[string]int
	delay    time.Duration
}

// New starts a server with the default user and a healthy status.
func New(t *testing.T) *TestServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	ts := &TestServer{
		secret:   newSecret(t),
		users:    map[string][]byte{Username: hash},
		health:   "healthy",
		hits:     make(map[string]int),
		auth:     make(map[string]string),
		failures: make(map[string]int),
	}
	ts.Server = httptest.NewServer(ts.routes())

	t.Cleanup(ts.Server.Close)
	return ts
}

// URL returns the server base URL.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

func (ts *TestServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(ts.record)

	r.Post("/token", ts.handleToken)
	r.Get("/health", ts.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(transport.AuthMiddleware(ts))
		r.Get("/analytics/dashboard", ts.handleAnalytics)
		r.Post("/orders", ts.handleCreateOrder)
	})
	return r
}

// VerifyToken implements transport.TokenVerifier for issued JWTs.
func (ts *TestServer) VerifyToken(_ context.Context, token string) (string, error) {
	ts.mu.Lock()
	secret := ts.secret
	ts.mu.Unlock()

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", transport.ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// SetHealth changes the status string reported by /health.
func (ts *TestServer) SetHealth(status string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.health = status
}

// Fail makes every request to "METHOD /path" answer with status until cleared with 0.
func (ts *TestServer) Fail(route string, status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if status == 0 {
		delete(ts.failures, route)
		return
	}
	ts.failures[route] = status
}

// SetDelay delays every response.
func (ts *TestServer) SetDelay(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.delay = d
}

// RevokeTokens rotates the signing key so every issued token is rejected.
func (ts *TestServer) RevokeTokens(t *testing.T) {
	t.Helper()
	secret := newSecret(t)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.secret = secret
}

// Hits returns how many requests reached "METHOD /path".
func (ts *TestServer) Hits(route string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.hits[route]
}

// TotalHits returns the number of requests received on any route.
func (ts *TestServer) TotalHits() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	total := 0
	for _, n := range ts.hits {
		total += n
	}
	return total
}

// LastAuthorization returns the Authorization header of the latest request to route.
func (ts *TestServer) LastAuthorization(route string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.auth[route]
}

// Orders returns the accepted orders.
func (ts *TestServer) Orders() []Order {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]Order(nil), ts.orders...)
}

func (ts *TestServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		ts.mu.Lock()
		ts.hits[route]++
		ts.auth[route] = r.Header.Get("Authorization")
		status := ts.failures[route]
		delay := ts.delay
		ts.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid form"})
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	ts.mu.Lock()
	hash, ok := ts.users[username]
	secret := ts.secret
	ts.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "incorrect username or password"})
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		ID:        uuid.NewString(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": signed, "token_type": "bearer"})
}

func (ts *TestServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ts.mu.Lock()
	status := ts.health
	ts.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (ts *TestServer) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var sales float64
	byStatus := map[string]int{"PENDING": 0, "CONFIRMED": 0}
	for _, o := range ts.orders {
		sales += o.TotalAmount
		byStatus[o.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_orders": len(ts.orders),
		"total_sales":  sales,
		"by_status":    byStatus,
	})
}

func (ts *TestServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerName == nil || req.Items == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid order"})
		return
	}

	var total float64
	for _, item := range req.Items {
		total += item.Price * float64(item.Quantity)
	}

	o := Order{
		OrderUUID:    uuid.NewString(),
		CustomerName: *req.CustomerName,
		Status:       "PENDING",
		TotalAmount:  total,
		CreatedAt:    time.Now().UTC(),
	}
	ts.mu.Lock()
	ts.orders = append(ts.orders, o)
	ts.mu.Unlock()

	writeJSON(w, http.StatusCreated, o)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}
