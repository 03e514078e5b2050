package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/sources/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["name"] {
		case "busy":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"a job is already running for this source"}`))
		case "dropzone":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(models.HarvestJob{ID: "j1", Source: "dropzone", CreatedBy: r.Header.Get(server.UserHeader)})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}).Methods(http.MethodPost)
	r.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]models.HarvestJob{{ID: "j1"}})
	})
	r.HandleFunc("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(server.JobDetail{
			Job:    models.HarvestJob{ID: mux.Vars(r)["id"], Status: "completed"},
			Errors: []models.HarvestError{{Stage: models.StageImport, Message: "boom"}},
		})
	})
	r.HandleFunc("/jobs/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for i := 1; i <= 3; i++ {
			_ = conn.WriteJSON(models.HarvestJob{ID: "j1", Total: 3, Progress: i})
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func TestClientRun(t *testing.T) {
	ts := fakeServer(t)
	c := New(ts.URL)
	c.user = "ops"

	require.NoError(t, c.Health(context.Background()))

	job, err := c.Run(context.Background(), "dropzone")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "ops", job.CreatedBy)

	_, err = c.Run(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = c.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientJobs(t *testing.T) {
	ts := fakeServer(t)
	c := New(ts.URL + "/")

	jobs, err := c.Jobs(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	detail, err := c.Job(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "completed", detail.Job.Status)
	require.Len(t, detail.Errors, 1)
	assert.Equal(t, "boom", detail.Errors[0].Message)
}

func TestClientWatch(t *testing.T) {
	ts := fakeServer(t)
	c := New(ts.URL)

	var progress []int
	err := c.Watch(context.Background(), "j1", func(j models.HarvestJob) error {
		progress = append(progress, j.Progress)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestNewDefaultsEndpoint(t *testing.T) {
	t.Setenv("HARVEST_SERVER_URL", "")
	c := New("")
	assert.True(t, strings.HasPrefix(c.endpoint, "http://localhost:8484"))
}
