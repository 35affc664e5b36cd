package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"
)

// eventLog serves GET /v1/events over a fixed history
func eventLog(t *testing.T, events []Event, failFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.Equal(t, "/v1/events", r.URL.Path)
		after, err := strconv.ParseUint(r.URL.Query().Get("after"), 10, 64)
		require.NoError(t, err)
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)

		page := eventPage{Events: []Event{}}
		for _, ev := range events {
			if ev.Seq > after && len(page.Events) < limit {
				page.Events = append(page.Events, ev)
			}
			page.LastSeq = ev.Seq
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestBackfillPagesThroughLog(t *testing.T) {
	events := history()
	srv, _ := eventLog(t, events, 0)

	ix := New(NewMemoryStore(), log.NewNopLogger(), nil)
	b := NewBackfiller(srv.URL, srv.Client())
	b.pageSize = 3

	n, err := b.Run(context.Background(), ix)
	require.NoError(t, err)
	require.Equal(t, len(events), n)

	last, err := ix.Store().LastSeq(context.Background())
	require.NoError(t, err)
	require.Equal(t, events[len(events)-1].Seq, last)

	// Nothing new on a second run
	n, err = b.Run(context.Background(), ix)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBackfillResumesFromCursor(t *testing.T) {
	events := history()
	srv, _ := eventLog(t, events, 0)

	ix := New(NewMemoryStore(), log.NewNopLogger(), nil)
	_, err := ix.ApplyAll(context.Background(), events[:3])
	require.NoError(t, err)

	n, err := NewBackfiller(srv.URL, srv.Client()).Run(context.Background(), ix)
	require.NoError(t, err)
	require.Equal(t, len(events)-3, n)
}

func TestBackfillRetriesTransientErrors(t *testing.T) {
	srv, calls := eventLog(t, history(), 2)

	ix := New(NewMemoryStore(), log.NewNopLogger(), nil)
	b := NewBackfiller(srv.URL, srv.Client())
	b.maxWait = 10 * time.Second

	n, err := b.Run(context.Background(), ix)
	require.NoError(t, err)
	require.Equal(t, len(history()), n)
	require.GreaterOrEqual(t, atomic.LoadInt32(calls), int32(3))
}

func TestBackfillDetectsGap(t *testing.T) {
	events := history()[2:]
	srv, _ := eventLog(t, events, 0)

	ix := New(NewMemoryStore(), log.NewNopLogger(), nil)
	_, err := NewBackfiller(srv.URL, srv.Client()).Run(context.Background(), ix)
	require.ErrorContains(t, err, "gap")
}

func TestBackfillPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	ix := New(NewMemoryStore(), log.NewNopLogger(), nil)
	_, err := NewBackfiller(srv.URL, srv.Client()).Run(context.Background(), ix)
	require.ErrorContains(t, err, "404")
}
