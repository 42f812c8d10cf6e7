package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTags(t *testing.T) {
	job := NewJob("vm-101", "sr-local")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, []string{
		"job=" + job.ID,
		"sr=sr-local",
		"vm=vm-101",
	}, job.Tags())

	spec := job.Spec()
	assert.Equal(t, "delta", spec.Mode)
	assert.Equal(t, 1, spec.Retention)
}

func TestHttpEngineRun(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/jobs/job-1/run", r.URL.Path)
			var spec map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
			assert.Equal(t, "delta", spec["mode"])
			assert.Equal(t, "vm-1", spec["vm"])
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			state := "interrupted"
			if polls.Add(1) > 1 {
				state = "success"
			}
			fmt.Fprintf(w, `{"state":%q,"bytesTransferred":42}`, state)
		}
	}))
	defer srv.Close()

	engine := NewHttpEngine(srv.URL, "token", time.Millisecond)
	spec := Job{ID: "job-1", SourceVmID: "vm-1", StorageID: "sr-1"}.Spec()

	err := engine.Run(context.Background(), spec)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestHttpEngineRunFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, `{"state":"failure","error":"source unreachable"}`)
	}))
	defer srv.Close()

	engine := NewHttpEngine(srv.URL, "token", time.Millisecond)
	err := engine.Run(context.Background(), Job{ID: "job-2"}.Spec())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "source unreachable")
}

func TestHttpEngineRunCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, `{"state":"pending"}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	engine := NewHttpEngine(srv.URL, "token", time.Millisecond)
	err := engine.Run(ctx, Job{ID: "job-3"}.Spec())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
