package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func TestStore(t *testing.T) {
	requireDB(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		require.NoError(t, testDB.WipeData(context.Background()))
		return testDB
	})
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	requireDB(t)
	assert.NoError(t, testDB.InitSchema(context.Background()))
}

func TestSaveJobWithoutOptionalFields(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.SaveJob(ctx, models.HarvestJob{
		ID:        "plain123",
		Source:    "sdk",
		Status:    "pending",
		StartedAt: time.Now(),
	}))

	job, err := testDB.GetJob(ctx, "plain123")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Empty(t, job.CreatedBy)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.CompletedAt)
}

func TestWrapQueryErrorPassesThrough(t *testing.T) {
	assert.NoError(t, wrapQueryError(nil))
	err := fmt.Errorf("plain")
	assert.Equal(t, err, wrapQueryError(err))
}

func TestRetryConflicts(t *testing.T) {
	calls := 0
	err := retryConflicts(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrTransactionConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryConflicts(context.Background(), func() error {
		calls++
		return ErrTransactionConflict
	})
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.Equal(t, conflictAttempts, calls)

	calls = 0
	boom := fmt.Errorf("boom")
	err = retryConflicts(context.Background(), func() error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Config{
		SurrealDBURL:       "ws://db:8000/rpc",
		SurrealDBNamespace: "harvest",
		SurrealDBDatabase:  "stadtzh",
		SurrealDBUser:      "u",
		SurrealDBPass:      "p",
		SurrealDBAuthLevel: "database",
	})
	assert.Equal(t, "ws://db:8000", cfg.baseURL())
	auth := cfg.auth()
	assert.Equal(t, "harvest", auth.Namespace)
	assert.Equal(t, "stadtzh", auth.Database)

	cfg.AuthLevel = "root"
	assert.Empty(t, cfg.auth().Namespace)
}
