package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonpurse/commonpurse/internal/database"
	"github.com/commonpurse/commonpurse/internal/export"
	cpHttp "github.com/commonpurse/commonpurse/internal/http"
	activityHandler "github.com/commonpurse/commonpurse/internal/http/activity"
	"github.com/commonpurse/commonpurse/internal/http/auth"
	communityHandler "github.com/commonpurse/commonpurse/internal/http/community"
	exportHandler "github.com/commonpurse/commonpurse/internal/http/export"
	"github.com/commonpurse/commonpurse/internal/http/importcsv"
	proposalHandler "github.com/commonpurse/commonpurse/internal/http/proposal"
	txHandler "github.com/commonpurse/commonpurse/internal/http/transaction"
	"github.com/commonpurse/commonpurse/internal/roster"
	"github.com/commonpurse/commonpurse/internal/treasury"
	"github.com/commonpurse/commonpurse/internal/treasury/store"
)

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type community struct {
	ID             uuid.UUID       `json:"id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	LeaderCount    int             `json:"leader_count"`
	MemberCount    int             `json:"member_count"`
}

type proposal struct {
	ID     uuid.UUID       `json:"id"`
	Status treasury.Status `json:"status"`
}

type approval struct {
	ApprovalCount int             `json:"approval_count"`
	TotalLeaders  int             `json:"total_leaders"`
	Status        treasury.Status `json:"status"`
}

type client struct {
	t     *testing.T
	srv   *httptest.Server
	token string
}

func newTestServer(t *testing.T, authn *auth.Authenticator) *client {
	t.Helper()

	db, err := database.New(database.SQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))

	repo := store.New(db, database.SQLite)
	svc := treasury.NewService(repo)

	router := cpHttp.New(cpHttp.Options{
		AllowedOrigins: []string{"*"},
		Auth:           authn,
		Health:         repo,
	}, cpHttp.Handlers{
		Communities:  communityHandler.NewHandler(svc),
		Proposals:    proposalHandler.NewHandler(svc),
		Transactions: txHandler.NewHandler(svc),
		Activities:   activityHandler.NewHandler(svc),
		Roster:       importcsv.NewHandler(roster.NewService(svc)),
		Export:       exportHandler.NewHandler(export.NewService(svc, "")),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &client{t: t, srv: srv}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func (c *client) createCommunity(balance string, leaders ...string) community {
	c.t.Helper()

	in := make([]map[string]string, 0, len(leaders))
	for _, l := range leaders {
		in = append(in, map[string]string{"wallet_address": l})
	}

	var out community

	status := c.do(http.MethodPost, "/api/v1/communities", map[string]any{
		"name":               "Riverside Garden",
		"description":        "Allotment upkeep",
		"treasury_address":   "0xTREASURY",
		"initial_balance":    balance,
		"approval_threshold": len(leaders),
		"created_by":         leaders[0],
		"leaders":            in,
		"members":            []string{"M1"},
	}, &out)
	require.Equal(c.t, http.StatusCreated, status)

	return out
}

func (c *client) createProposal(communityID uuid.UUID, amount string) (proposal, int) {
	c.t.Helper()

	var out proposal

	status := c.do(http.MethodPost, "/api/v1/proposals", map[string]any{
		"community_id":      communityID,
		"title":             "Seeds",
		"description":       "Spring planting",
		"amount":            amount,
		"recipient_address": "R1",
		"created_by":        "M1",
	}, &out)

	return out, status
}

func TestAPI_ProposalLifecycle(t *testing.T) {
	c := newTestServer(t, nil)

	comm := c.createCommunity("100", "L1", "L2")
	assert.Equal(t, 2, comm.LeaderCount)

	p, status := c.createProposal(comm.ID, "40")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, treasury.StatusPending, p.Status)

	var res approval
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/approve",
		map[string]string{"leader_address": "L1"}, &res))
	assert.Equal(t, approval{ApprovalCount: 1, TotalLeaders: 2, Status: treasury.StatusPending}, res)

	var early apiError
	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/execute",
		map[string]string{"executed_by": "L1"}, &early))
	assert.Equal(t, "INVALID_STATE", early.Error.Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/approve",
		map[string]string{"leader_address": "L2"}, &res))
	assert.Equal(t, treasury.StatusApproved, res.Status)

	var tx struct {
		Amount     decimal.Decimal `json:"amount"`
		ExecutedBy string          `json:"executed_by"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/execute",
		map[string]string{"executed_by": "L1", "settlement_hash": "0xhash"}, &tx))
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "L1", tx.ExecutedBy)

	var got community
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/communities/"+comm.ID.String(), nil, &got))
	assert.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(60)), "balance %s", got.CurrentBalance)

	var txs []map[string]any
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/transactions?community_id="+comm.ID.String(), nil, &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "Seeds", txs[0]["proposal_title"])

	var activities []struct {
		Kind    treasury.ActivityKind `json:"kind"`
		Summary string                `json:"summary"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/activities?community_id="+comm.ID.String(), nil, &activities))
	require.Len(t, activities, 5)
	assert.Equal(t, treasury.KindProposalExecuted, activities[0].Kind)
	assert.Equal(t, "L1 released 40.00 to R1", activities[0].Summary)

	var again apiError
	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/execute",
		map[string]string{"executed_by": "L1"}, &again))
	assert.Equal(t, "INVALID_STATE", again.Error.Code)

	var executed []proposal
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/proposals?status=executed", nil, &executed))
	require.Len(t, executed, 1)
	assert.Equal(t, p.ID, executed[0].ID)
}

func TestAPI_Errors(t *testing.T) {
	c := newTestServer(t, nil)
	comm := c.createCommunity("100", "L1", "L2")

	t.Run("ExceedsBalance", func(t *testing.T) {
		var e apiError

		_, status := c.createProposal(comm.ID, "150")
		assert.Equal(t, http.StatusUnprocessableEntity, status)

		var list []proposal
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/proposals?community_id="+comm.ID.String(), nil, &list))
		assert.Empty(t, list)

		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/v1/proposals?status=bogus", nil, &e))
		assert.Equal(t, "VALIDATION_ERROR", e.Error.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		var e apiError
		assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/proposals/"+uuid.NewString(), nil, &e))
		assert.Equal(t, "NOT_FOUND", e.Error.Code)
	})

	t.Run("BadID", func(t *testing.T) {
		var e apiError
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/v1/communities/not-a-uuid", nil, &e))
	})

	t.Run("DuplicateAndForeignApproval", func(t *testing.T) {
		p, status := c.createProposal(comm.ID, "10")
		require.Equal(t, http.StatusCreated, status)

		path := "/api/v1/proposals/" + p.ID.String() + "/approve"
		require.Equal(t, http.StatusOK, c.do(http.MethodPost, path, map[string]string{"leader_address": "L1"}, nil))

		var dup apiError
		assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, path, map[string]string{"leader_address": "L1"}, &dup))
		assert.Equal(t, "CONFLICT", dup.Error.Code)

		var foreign apiError
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, path, map[string]string{"leader_address": "M1"}, &foreign))
		assert.Equal(t, "AUTHORIZATION_ERROR", foreign.Error.Code)
	})

	t.Run("WrongContentType", func(t *testing.T) {
		resp, err := http.Post(c.srv.URL+"/api/v1/proposals", "text/plain", bytes.NewBufferString("x"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})
}

func TestAPI_Auth(t *testing.T) {
	authn := auth.New("s3cret", time.Hour)
	c := newTestServer(t, authn)

	var e apiError
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/api/v1/communities", map[string]any{}, &e))
	assert.Equal(t, "UNAUTHENTICATED", e.Error.Code)

	token, err := authn.Issue("L1")
	require.NoError(t, err)
	c.token = token

	comm := c.createCommunity("100", "L1")

	p, status := c.createProposal(comm.ID, "5")
	assert.Equal(t, http.StatusForbidden, status, "session L1 cannot create as M1")

	c.token = ""
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/communities/"+comm.ID.String(), nil, nil))
	assert.Equal(t, uuid.Nil, p.ID)

	memberToken, err := authn.Issue("M1")
	require.NoError(t, err)
	c.token = memberToken

	p, status = c.createProposal(comm.ID, "5")
	require.Equal(t, http.StatusCreated, status)

	c.token = token

	var res approval
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID.String()+"/approve",
		map[string]string{}, &res))
	assert.Equal(t, treasury.StatusApproved, res.Status)
}

func TestAPI_RosterImport(t *testing.T) {
	c := newTestServer(t, nil)
	comm := c.createCommunity("0", "L1")

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("wallet_address;name;role\nM1;Existing;member\nM2;Maria;member\nL2;Leo;leader\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(c.srv.URL+"/api/v1/communities/"+comm.ID.String()+"/members/import",
		mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Added     []map[string]any `json:"added"`
		Conflicts []map[string]any `json:"conflicts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Added, 2)
	assert.Len(t, out.Conflicts, 1)

	var got community
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/communities/"+comm.ID.String(), nil, &got))
	assert.Equal(t, 2, got.LeaderCount)
}

func TestAPI_ExportAndHealth(t *testing.T) {
	c := newTestServer(t, nil)
	comm := c.createCommunity("100", "L1")

	var meta struct {
		Transactions []map[string]any `json:"transactions"`
		Summary      string           `json:"summary"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/communities/"+comm.ID.String()+"/export", nil, &meta))
	assert.Empty(t, meta.Transactions)
	assert.Contains(t, meta.Summary, "Community: Riverside Garden")

	resp, err := http.Get(c.srv.URL + "/api/v1/communities/" + comm.ID.String() + "/export/download")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))

	var health map[string]string
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth_Unavailable(t *testing.T) {
	router := cpHttp.New(cpHttp.Options{Health: downPinger{}}, cpHttp.Handlers{
		Communities:  communityHandler.NewHandler(nil),
		Proposals:    proposalHandler.NewHandler(nil),
		Transactions: txHandler.NewHandler(nil),
		Activities:   activityHandler.NewHandler(nil),
		Roster:       importcsv.NewHandler(nil),
		Export:       exportHandler.NewHandler(nil),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
