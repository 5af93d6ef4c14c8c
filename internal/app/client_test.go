package app_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rpggio/hubwatch/internal/app"
	"github.com/rpggio/hubwatch/internal/credential"
	"github.com/rpggio/hubwatch/internal/domain/dashboard"
	"github.com/rpggio/hubwatch/internal/domain/order"
	"github.com/rpggio/hubwatch/internal/domain/session"
	"github.com/rpggio/hubwatch/internal/sqlite"
	"github.com/rpggio/hubwatch/internal/telemetry"
	"github.com/rpggio/hubwatch/internal/testserver"
	"github.com/stretchr/testify/require"
)

const (
	healthRoute  = "GET /health"
	metricsRoute = "GET /analytics/dashboard"
	ordersRoute  = "POST /orders"
)

func newClient(t *testing.T, ts *testserver.TestServer, store credential.Store, interval time.Duration) *app.Client {
	t.Helper()
	client, err := app.New(context.Background(), store, app.Options{
		BaseURL:        ts.URL(),
		RequestTimeout: 2 * time.Second,
		PollInterval:   interval,
		NudgeDelay:     20 * time.Millisecond,
		Metrics:        telemetry.New(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func login(t *testing.T, client *app.Client) {
	t.Helper()
	require.NoError(t, client.Login(context.Background(), testserver.Username, testserver.Password))
}

func TestClient_LoginStartsSync(t *testing.T) {
	ts := testserver.New(t)
	store := credential.NewMemoryStore()
	client := newClient(t, ts, store, 50*time.Millisecond)
	client.Start(context.Background())

	require.Equal(t, session.StateAnonymous, client.State())
	require.False(t, client.Running())
	require.Equal(t, 0, ts.TotalHits())

	login(t, client)
	require.Equal(t, session.StateAuthenticated, client.State())
	require.True(t, client.Running())

	token, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		snap := client.Snapshot()
		return snap.Health == dashboard.HealthOnline && snap.MetricsKnown
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Bearer "+token, ts.LastAuthorization(metricsRoute))

	require.Eventually(t, func() bool { return ts.Hits(healthRoute) >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RejectedLogin(t *testing.T) {
	ts := testserver.New(t)
	store := credential.NewMemoryStore()
	client := newClient(t, ts, store, 50*time.Millisecond)
	client.Start(context.Background())

	err := client.Login(context.Background(), testserver.Username, "wrong")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	require.Equal(t, session.StateAnonymous, client.State())
	require.False(t, client.Running())

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClient_FailedReloginKeepsSession(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)

	err := client.Login(context.Background(), testserver.Username, "wrong")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, session.StateAuthenticated, client.State())
	require.True(t, client.Running())
}

func TestClient_SubmitOrders(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)

	require.Eventually(t, func() bool { return ts.Hits(metricsRoute) == 1 }, 2*time.Second, 5*time.Millisecond)

	alice, err := client.SubmitOrder(context.Background(), "Alice")
	require.NoError(t, err)
	require.Equal(t, order.OutcomeQueued, alice.PredictedOutcome)
	require.Equal(t, 100.0, alice.TotalAmount)

	// The submission schedules one follow-up pass.
	require.Eventually(t, func() bool { return ts.Hits(metricsRoute) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return client.Snapshot().Metrics.TotalOrders == 1 }, 2*time.Second, 5*time.Millisecond)

	bob, err := client.SubmitOrder(context.Background(), "Bob ERROR")
	require.NoError(t, err)
	require.Equal(t, order.OutcomeFailed, bob.PredictedOutcome)

	orders := client.Orders()
	require.Len(t, orders, 2)
	require.Equal(t, bob.CorrelationID, orders[0].CorrelationID)
	require.Equal(t, alice.CorrelationID, orders[1].CorrelationID)

	accepted := ts.Orders()
	require.Len(t, accepted, 2)
	require.Equal(t, alice.CorrelationID, accepted[0].OrderUUID)
}

func TestClient_SubmitRequiresSession(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())

	_, err := client.SubmitOrder(context.Background(), "Alice")
	require.ErrorIs(t, err, app.ErrNotAuthenticated)
	require.ErrorIs(t, client.Refresh(context.Background()), app.ErrNotAuthenticated)
	require.Equal(t, 0, ts.Hits(ordersRoute))
}

func TestClient_FailedSubmitRecordsNothing(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)

	ts.Fail(ordersRoute, http.StatusInternalServerError)
	_, err := client.SubmitOrder(context.Background(), "Alice")
	require.ErrorIs(t, err, order.ErrSubmitFailed)
	require.Empty(t, client.Orders())
	require.Equal(t, session.StateAuthenticated, client.State())
}

func TestClient_LogoutStopsSyncAndResets(t *testing.T) {
	ts := testserver.New(t)
	store := credential.NewMemoryStore()
	client := newClient(t, ts, store, 20*time.Millisecond)
	client.Start(context.Background())
	login(t, client)

	_, err := client.SubmitOrder(context.Background(), "Alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.Snapshot().MetricsKnown }, 2*time.Second, 5*time.Millisecond)

	client.Logout(context.Background())
	require.Equal(t, session.StateAnonymous, client.State())
	require.Equal(t, session.ReasonLogout, client.Reason())
	require.False(t, client.Running())
	require.Empty(t, client.Orders())
	require.Equal(t, dashboard.HealthUnknown, client.Snapshot().Health)
	require.False(t, client.Snapshot().MetricsKnown)

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	after := ts.TotalHits()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, after, ts.TotalHits())
}

func TestClient_RevokedTokenExpiresSession(t *testing.T) {
	ts := testserver.New(t)
	store := credential.NewMemoryStore()
	client := newClient(t, ts, store, 20*time.Millisecond)
	client.Start(context.Background())
	login(t, client)

	require.Eventually(t, func() bool { return client.Snapshot().MetricsKnown }, 2*time.Second, 5*time.Millisecond)

	ts.RevokeTokens(t)
	require.Eventually(t, func() bool { return client.State() == session.StateAnonymous }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, session.ReasonExpired, client.Reason())
	require.Eventually(t, func() bool { return !client.Running() }, 2*time.Second, 5*time.Millisecond)

	_, ok, err := store.Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	// Logging in again resumes synchronizing with the new token.
	login(t, client)
	require.Eventually(t, func() bool { return client.Snapshot().Health == dashboard.HealthOnline }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_ResumesStoredSession(t *testing.T) {
	ts := testserver.New(t)
	db := sqlite.NewTestDB(t)

	first := newClient(t, ts, sqlite.NewCredentialStore(db, "default"), time.Hour)
	first.Start(context.Background())
	login(t, first)
	first.Close()

	before := ts.Hits("POST /token")
	second := newClient(t, ts, sqlite.NewCredentialStore(db, "default"), time.Hour)
	require.Equal(t, session.StateAuthenticated, second.State())
	require.False(t, second.Running())

	second.Start(context.Background())
	require.True(t, second.Running())
	require.Eventually(t, func() bool { return second.Snapshot().Health == dashboard.HealthOnline }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, before, ts.Hits("POST /token"))

	other := newClient(t, ts, sqlite.NewCredentialStore(db, "other"), time.Hour)
	require.Equal(t, session.StateAnonymous, other.State())
}

func TestClient_HealthDegraded(t *testing.T) {
	ts := testserver.New(t)
	ts.SetHealth("degraded")
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)

	require.Eventually(t, func() bool { return client.Snapshot().Health == dashboard.HealthDown }, 2*time.Second, 5*time.Millisecond)

	ts.SetHealth("healthy")
	require.NoError(t, client.Refresh(context.Background()))
	require.Equal(t, dashboard.HealthOnline, client.Snapshot().Health)
}

func TestClient_CloseStopsLoop(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), 20*time.Millisecond)
	client.Start(context.Background())
	login(t, client)
	require.Eventually(t, func() bool { return ts.Hits(healthRoute) >= 2 }, 2*time.Second, 5*time.Millisecond)

	client.Close()
	require.False(t, client.Running())
	require.Equal(t, session.StateAuthenticated, client.State())

	after := ts.TotalHits()
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, after, ts.TotalHits())
}

func TestClient_LogoutDuringRefreshDiscardsPass(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)
	require.Eventually(t, func() bool { return client.Snapshot().MetricsKnown }, 2*time.Second, 5*time.Millisecond)

	ts.SetDelay(300 * time.Millisecond)
	result := make(chan error, 1)
	go func() { result <- client.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return ts.Hits(healthRoute) == 2 }, 2*time.Second, 5*time.Millisecond)

	client.Logout(context.Background())
	select {
	case err := <-result:
		require.ErrorIs(t, err, app.ErrNotAuthenticated)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return after logout")
	}

	// Outlive the delayed responses; none of them may land.
	time.Sleep(400 * time.Millisecond)
	require.Equal(t, session.StateAnonymous, client.State())
	require.Equal(t, dashboard.HealthUnknown, client.Snapshot().Health)
	require.False(t, client.Snapshot().MetricsKnown)
}

func TestClient_LogoutDuringSubmitRecordsNothing(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	client.Start(context.Background())
	login(t, client)
	require.Eventually(t, func() bool { return client.Snapshot().MetricsKnown }, 2*time.Second, 5*time.Millisecond)

	ts.SetDelay(200 * time.Millisecond)
	result := make(chan error, 1)
	go func() {
		_, err := client.SubmitOrder(context.Background(), "Alice")
		result <- err
	}()
	require.Eventually(t, func() bool { return ts.Hits(ordersRoute) == 1 }, 2*time.Second, 5*time.Millisecond)

	client.Logout(context.Background())
	select {
	case err := <-result:
		require.ErrorIs(t, err, app.ErrNotAuthenticated)
		require.ErrorIs(t, err, order.ErrSessionEnded)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return")
	}
	require.Empty(t, client.Orders())

	ts.SetDelay(0)
	login(t, client)
	require.Empty(t, client.Orders())
	_, err := client.SubmitOrder(context.Background(), "Bob")
	require.NoError(t, err)
	require.Len(t, client.Orders(), 1)
}

func TestClient_RefreshBeforeStart(t *testing.T) {
	ts := testserver.New(t)
	client := newClient(t, ts, credential.NewMemoryStore(), time.Hour)
	login(t, client)

	require.ErrorIs(t, client.Refresh(context.Background()), app.ErrNotRunning)
	require.Equal(t, 0, ts.Hits(healthRoute))
}
