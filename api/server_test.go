package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cosmossdk.io/log"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/sharepool/api/middleware"
	apitypes "github.com/openalpha/sharepool/api/types"
	"github.com/openalpha/sharepool/api/websocket"
	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/x/pool/types"
)

type testServer struct {
	svc     *LedgerService
	index   *indexer.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	svc, err := NewLedgerService(ServiceOptions{Denom: "uusdc", Metrics: collector, Clock: fixedClock})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	store := indexer.NewMemoryStore()
	svc.AddSink("indexer", indexer.New(store, log.NewNopLogger(), collector))

	cfg := DefaultConfig()
	cfg.Ledger.FaucetEnabled = true
	cfg.Ledger.FaucetMax = "1000000"
	if mutate != nil {
		mutate(cfg)
	}
	hub := websocket.NewHub(cfg.HubConfig(), log.NewNopLogger(), collector)
	srv, err := NewServer(cfg, svc, store, hub, log.NewNopLogger(), collector)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	return &testServer{svc: svc, index: store, handler: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path, account string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:4000"
	if account != "" {
		req.Header.Set(middleware.AccountHeader, account)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (ts *testServer) faucet(t *testing.T, addr, amount string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/faucet", addr, &apitypes.FaucetRequest{Address: addr, Amount: amount})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) createPool(t *testing.T) uint64 {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/pools", creator, &apitypes.CreatePoolRequest{
		Title:       "Community garden",
		Members:     []string{alice, bob},
		Percentages: []int64{3000, 2000},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp apitypes.CreatePoolResponse
	decode(t, rec, &resp)
	return resp.PoolID
}

func TestServerPoolFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/v1/pools/next-id", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"next_pool_id":1}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/v1/pools", creator, &apitypes.CreatePoolRequest{
		Title:       "Community garden",
		Members:     []string{alice, bob},
		Percentages: []int64{3000, 2000},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "/v1/pools/1", rec.Header().Get("Location"))
	var created apitypes.CreatePoolResponse
	decode(t, rec, &created)
	require.Equal(t, uint64(1), created.PoolID)
	require.True(t, created.Pool.Active)
	require.Len(t, created.Events, 1)

	ts.faucet(t, donor, "1000")
	rec = ts.do(t, http.MethodPost, "/v1/pools/1/donate", donor, &apitypes.DonateRequest{Amount: "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var donated apitypes.DonateResponse
	decode(t, rec, &donated)
	require.Equal(t, "1000", donated.NewTotalBalance)

	rec = ts.do(t, http.MethodGet, "/v1/pools/1/members", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		Members []struct {
			Address    string `json:"address"`
			Percentage uint32 `json:"percentage"`
			IsCreator  bool   `json:"is_creator"`
		} `json:"members"`
	}
	decode(t, rec, &members)
	require.Len(t, members.Members, 3)
	var creatorShare uint32
	for _, m := range members.Members {
		if m.IsCreator {
			creatorShare = m.Percentage
		}
	}
	require.Equal(t, uint32(5000), creatorShare)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/pools/1/available/%s", bob), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var avail apitypes.AvailableBalanceResponse
	decode(t, rec, &avail)
	require.Equal(t, "200", avail.Available)

	rec = ts.do(t, http.MethodPost, "/v1/pools/1/withdraw", bob, &apitypes.WithdrawRequest{Amount: "150"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var withdrew apitypes.WithdrawResponse
	decode(t, rec, &withdrew)
	require.Equal(t, "50", withdrew.Available)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%s/balance", bob), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal apitypes.AccountBalanceResponse
	decode(t, rec, &bal)
	require.Equal(t, "150", bal.Balance)
	require.Equal(t, "uusdc", bal.Denom)

	rec = ts.do(t, http.MethodGet, "/v1/pools/1/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pool_id":1,"balance":"850","denom":"uusdc"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/v1/pools/1/deactivate", creator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/v1/pools/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"active":false`)

	rec = ts.do(t, http.MethodGet, "/v1/custody", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"balanced":true`)
}

var custodyAddr = authtypes.NewModuleAddress(types.ModuleName).String()

func TestServerErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createPool(t)
	ts.faucet(t, donor, "100")
	rec := ts.do(t, http.MethodPost, "/v1/pools/1/donate", donor, &apitypes.DonateRequest{Amount: "100"})
	require.Equal(t, http.StatusOK, rec.Code)

	cases := []struct {
		name    string
		method  string
		path    string
		account string
		body    interface{}
		status  int
		code    string
	}{
		{"empty title", http.MethodPost, "/v1/pools", creator, &apitypes.CreatePoolRequest{Title: ""}, http.StatusBadRequest, "EmptyTitle"},
		{"length mismatch", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Title: "x", Members: []string{alice}}, http.StatusBadRequest, "ArrayLengthMismatch"},
		{"zero percentage", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Title: "x", Members: []string{alice}, Percentages: []int64{0}}, http.StatusBadRequest, "InvalidMemberPercentage"},
		{"negative percentage", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Title: "x", Members: []string{alice}, Percentages: []int64{-5}}, http.StatusBadRequest, "InvalidMemberPercentage"},
		{"percentage over 100%", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Title: "x", Members: []string{alice}, Percentages: []int64{10001}}, http.StatusBadRequest, "InvalidMemberPercentage"},
		{"empty title before bad percentage", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Members: []string{alice}, Percentages: []int64{-5}}, http.StatusBadRequest, "EmptyTitle"},
		{"custody faucet", http.MethodPost, "/v1/faucet", donor,
			&apitypes.FaucetRequest{Address: custodyAddr, Amount: "1"}, http.StatusBadRequest, "InvalidAddress"},
		{"total 100%", http.MethodPost, "/v1/pools", creator,
			&apitypes.CreatePoolRequest{Title: "x", Members: []string{alice}, Percentages: []int64{10000}}, http.StatusBadRequest, "InvalidTotalPercentage"},
		{"zero donation", http.MethodPost, "/v1/pools/1/donate", donor, &apitypes.DonateRequest{Amount: "0"}, http.StatusBadRequest, "InvalidDonationAmount"},
		{"zero withdrawal", http.MethodPost, "/v1/pools/1/withdraw", alice, &apitypes.WithdrawRequest{Amount: "0"}, http.StatusBadRequest, "InvalidWithdrawalAmount"},
		{"not creator", http.MethodPost, "/v1/pools/1/deactivate", alice, nil, http.StatusForbidden, "NotPoolCreator"},
		{"not member", http.MethodPost, "/v1/pools/1/withdraw", donor, &apitypes.WithdrawRequest{Amount: "1"}, http.StatusForbidden, "NotPoolMember"},
		{"missing pool", http.MethodGet, "/v1/pools/42", "", nil, http.StatusNotFound, "PoolNotFound"},
		{"donate missing pool", http.MethodPost, "/v1/pools/42/donate", donor, &apitypes.DonateRequest{Amount: "1"}, http.StatusNotFound, "PoolNotFound"},
		{"over entitlement", http.MethodPost, "/v1/pools/1/withdraw", alice, &apitypes.WithdrawRequest{Amount: "31"}, http.StatusUnprocessableEntity, "InsufficientBalance"},
		{"unfunded donor", http.MethodPost, "/v1/pools/1/donate", bob, &apitypes.DonateRequest{Amount: "5"}, http.StatusBadGateway, "TransferFailed"},
		{"no account", http.MethodPost, "/v1/pools/1/donate", "", &apitypes.DonateRequest{Amount: "5"}, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, tc.method, tc.path, tc.account, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.code != "" {
				var body apitypes.ErrorResponse
				decode(t, rec, &body)
				require.Equal(t, tc.code, body.Code)
			}
		})
	}

	rec = ts.do(t, http.MethodPost, "/v1/pools/1/deactivate", creator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/v1/pools/1/donate", donor, &apitypes.DonateRequest{Amount: "1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodPost, "/v1/pools/1/deactivate", creator, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/pools/1/available/"+donor, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":"0"`)
}

func TestServerIndexRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createPool(t)
	ts.faucet(t, donor, "300")
	ts.faucet(t, alice, "50")
	for _, d := range []struct {
		who    string
		amount string
	}{{donor, "100"}, {donor, "200"}, {alice, "50"}} {
		rec := ts.do(t, http.MethodPost, "/v1/pools/1/donate", d.who, &apitypes.DonateRequest{Amount: d.amount})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/v1/events?after=1&limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events  []indexer.Event `json:"events"`
		LastSeq uint64          `json:"last_seq"`
	}
	decode(t, rec, &events)
	require.Len(t, events.Events, 3)
	require.Equal(t, uint64(2), events.Events[0].Seq)
	require.Equal(t, uint64(4), events.LastSeq)

	rec = ts.do(t, http.MethodGet, "/v1/index/pools/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pool struct {
		Summary   indexer.PoolSummary `json:"summary"`
		Balance   string              `json:"balance"`
		Donations []indexer.Donation  `json:"donations"`
	}
	decode(t, rec, &pool)
	require.Equal(t, uint64(3), pool.Summary.DonationCount)
	require.Equal(t, uint64(2), pool.Summary.UniqueDonors)
	require.Equal(t, "350", pool.Balance)
	require.Len(t, pool.Donations, 3)

	rec = ts.do(t, http.MethodGet, "/v1/index/donors/"+donor, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_donated":"300"`)

	rec = ts.do(t, http.MethodGet, "/v1/index/leaderboard?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Leaderboard []indexer.DonorStat `json:"leaderboard"`
	}
	decode(t, rec, &board)
	require.Len(t, board.Leaderboard, 1)
	require.Equal(t, donor, board.Leaderboard[0].Address)

	rec = ts.do(t, http.MethodGet, "/v1/index/donors/"+bob, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/v1/events?after=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRoutingAndHealth(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Ledger.FaucetEnabled = false })

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"custody_balanced":true`)

	rec = ts.do(t, http.MethodGet, "/v1/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/pools/1", creator, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/faucet", donor, &apitypes.FaucetRequest{Address: donor, Amount: "1"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/pools", bytes.NewBufferString(`{"title":`))
	req.Header.Set(middleware.AccountHeader, creator)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "InvalidRequest")

	req = httptest.NewRequest(http.MethodOptions, "/v1/pools", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerMutationRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.RateLimit.MutationsPerSecond = 1
		c.RateLimit.MutationBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/v1/pools", creator, &apitypes.CreatePoolRequest{Title: fmt.Sprintf("pool %d", i)})
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	// reads are not mutation limited
	rec := ts.do(t, http.MethodGet, "/v1/pools", creator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list apitypes.PoolListResponse
	decode(t, rec, &list)
	require.Equal(t, uint64(2), list.Total)
}
