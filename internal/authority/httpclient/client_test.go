package httpclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/authority/httpclient"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

type fakeAuthority struct {
	mu       sync.Mutex
	idemKeys []string
	status   atomic.Int32
}

func (f *fakeAuthority) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		if code := f.status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /v1/validation-records", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Records []types.ValidationRecord `json:"records"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var out struct {
			Results []authority.PushResult `json:"results"`
		}
		for _, rec := range req.Records {
			res := authority.PushResult{RecordID: rec.ID, Accepted: rec.TicketID != "T-dup"}
			if !res.Accepted {
				res.Reason = authority.ReasonDuplicateAdmission
			}
			out.Results = append(out.Results, res)
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		eventID := r.URL.Query().Get("event_id")
		if eventID != "E1" {
			http.Error(w, "unknown event", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(types.Snapshot{
			EventID: "E1",
			Tickets: []types.Ticket{{TicketID: "T1", EventID: "E1", Tier: "vip"}},
			Staff:   []types.StaffMember{{StaffID: "s1", Role: types.RoleScanner, IsActive: true}},
		})
	})
	mux.HandleFunc("POST /v1/actions/{type}", func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, k := range f.idemKeys {
			if k == key {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		if r.PathValue("type") == "purchase-ticket" {
			http.Error(w, "payments down", http.StatusServiceUnavailable)
			return
		}
		f.idemKeys = append(f.idemKeys, key)
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func newClient(t *testing.T, f *fakeAuthority) *httpclient.Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := httpclient.New(srv.URL+"/", time.Second, nil)
	require.NoError(t, err)
	return c
}

func TestClient_PingAndStatusMapping(t *testing.T) {
	f := &fakeAuthority{}
	c := newClient(t, f)
	require.NoError(t, c.Ping(context.Background()))

	f.status.Store(http.StatusBadGateway)
	assert.ErrorIs(t, c.Ping(context.Background()), authority.ErrUnavailable)

	f.status.Store(http.StatusForbidden)
	assert.ErrorIs(t, c.Ping(context.Background()), authority.ErrRejected)
}

func TestClient_PushValidations(t *testing.T) {
	c := newClient(t, &fakeAuthority{})

	res, err := c.PushValidations(context.Background(), []types.ValidationRecord{
		{ID: "r1", TicketID: "T1", Status: types.StatusValid},
		{ID: "r2", TicketID: "T-dup", Status: types.StatusValid},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].Accepted)
	assert.Equal(t, authority.PushResult{RecordID: "r2", Reason: authority.ReasonDuplicateAdmission}, res[1])
}

func TestClient_FetchSnapshot(t *testing.T) {
	c := newClient(t, &fakeAuthority{})

	snap, err := c.FetchSnapshot(context.Background(), "E1")
	require.NoError(t, err)
	require.Len(t, snap.Tickets, 1)
	assert.Equal(t, "vip", snap.Tickets[0].Tier)
	assert.Equal(t, types.RoleScanner, snap.Staff[0].Role)

	_, err = c.FetchSnapshot(context.Background(), "E404")
	assert.ErrorIs(t, err, authority.ErrRejected)
}

func TestClient_ExecuteIsIdempotent(t *testing.T) {
	f := &fakeAuthority{}
	c := newClient(t, f)
	a := types.QueuedAction{ID: "act-1", Type: types.ActionValidateTicket, Payload: types.Payload{"ticket_id": "T1"}}

	require.NoError(t, c.Execute(context.Background(), a))
	require.NoError(t, c.Execute(context.Background(), a), "conflict on replay means already applied")
	f.mu.Lock()
	assert.Equal(t, []string{"act-1"}, f.idemKeys)
	f.mu.Unlock()

	err := c.Execute(context.Background(), types.QueuedAction{ID: "act-2", Type: types.ActionPurchaseTicket})
	assert.ErrorIs(t, err, authority.ErrUnavailable)
}

func TestClient_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := httpclient.New(url, 200*time.Millisecond, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Ping(context.Background()), authority.ErrUnavailable)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := httpclient.New("authority.local", time.Second, nil)
	assert.Error(t, err)
}
