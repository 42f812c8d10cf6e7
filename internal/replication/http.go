package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

var _ Engine = (*httpEngine)(nil)

// httpEngine drives a replication engine over its job API: submit the spec,
// then poll the run until it reports durable completion. Polling is jittered
// so many concurrent migrations do not hammer the engine in lockstep.
type httpEngine struct {
	endpoint     string
	token        string
	client       *http.Client
	pollInterval time.Duration
}

func NewHttpEngine(endpoint, token string, pollInterval time.Duration) Engine {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &httpEngine{
		endpoint:     endpoint,
		token:        token,
		client:       &http.Client{Timeout: time.Minute},
		pollInterval: pollInterval,
	}
}

type runDocument struct {
	State            string `json:"state"`
	Error            string `json:"error,omitempty"`
	BytesTransferred int64  `json:"bytesTransferred"`
}

func (e *httpEngine) Run(ctx context.Context, spec Spec) error {
	body, err := json.Marshal(map[string]any{
		"id":        spec.ID,
		"mode":      spec.Mode,
		"vm":        spec.SourceVmID,
		"sr":        spec.StorageID,
		"retention": spec.Retention,
		"tags":      spec.Tags(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/jobs/"+spec.ID+"/run", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("starting replication job %s: %w", spec.ID, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("starting replication job %s: %s", spec.ID, resp.Status)
	}

	return e.waitDurable(ctx, spec.ID)
}

func (e *httpEngine) waitDurable(ctx context.Context, jobID string) error {
	ticker := jitterbug.New(e.pollInterval, &jitterbug.Norm{Stdev: e.pollInterval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		run, err := e.getRun(ctx, jobID)
		if err != nil {
			return err
		}
		switch run.State {
		case "success":
			zap.S().Named("replication").Infof("job %s durable, %d bytes transferred", jobID, run.BytesTransferred)
			return nil
		case "failure":
			return fmt.Errorf("replication job %s failed: %s", jobID, run.Error)
		default:
			zap.S().Named("replication").Debugf("job %s still %s", jobID, run.State)
		}
	}
}

func (e *httpEngine) getRun(ctx context.Context, jobID string) (*runDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/jobs/"+jobID+"/run", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling replication job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling replication job %s: %s", jobID, resp.Status)
	}

	var run runDocument
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return nil, fmt.Errorf("polling replication job %s: decoding response: %w", jobID, err)
	}
	return &run, nil
}
