package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/models"
)

func report(err string) *models.RunReport {
	return &models.RunReport{
		ExecutionID: "3f1c0c9e-7a55-4f3e-9d0b-2c2f1b2a0001",
		FinishedAt:  time.Unix(1760000000, 0),
		OutputFile:  "output/unicamp-2019-1.json",
		Error:       err,
	}
}

func TestDeliverSignsBody(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", NewRunEvent(report(""))))
	assert.Equal(t, Sign("s3cret", gotBody), gotSig)

	var ev Event
	require.NoError(t, json.Unmarshal(gotBody, &ev))
	assert.Equal(t, EventRunCompleted, ev.Type)
	assert.Equal(t, int64(1760000000), ev.Timestamp)
	assert.Equal(t, "output/unicamp-2019-1.json", ev.Report.OutputFile)
}

func TestNewRunEventFailed(t *testing.T) {
	assert.Equal(t, EventRunFailed, NewRunEvent(report("NO_QUESTIONS_EXTRACTED")).Type)
}

func TestDeliverWithRetry(t *testing.T) {
	orig := RetryDelays
	RetryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { RetryDelays = orig }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	require.NoError(t, DeliverWithRetry(context.Background(), srv.URL, "", NewRunEvent(report(""))))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetryGivesUp(t *testing.T) {
	orig := RetryDelays
	RetryDelays = []time.Duration{time.Millisecond}
	defer func() { RetryDelays = orig }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := DeliverWithRetry(context.Background(), srv.URL, "", NewRunEvent(report("")))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	RetryDelays = []time.Duration{time.Hour}
	err = DeliverWithRetry(ctx, srv.URL, "", NewRunEvent(report("")))
	assert.True(t, errors.Is(err, context.Canceled))
}
