package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/louisbranch/raceline/internal/auth"
	"github.com/louisbranch/raceline/internal/race/dice"
	"github.com/louisbranch/raceline/internal/race/domain"
	"github.com/louisbranch/raceline/internal/race/service"
	"github.com/louisbranch/raceline/internal/race/storage/sqlite"
)

const testOperator = "operator"

type testAPI struct {
	server *httptest.Server
	authn  *auth.Authenticator
}

func newTestAPI(t *testing.T, seed int64) *testAPI {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "race.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	roller, err := dice.NewRoller(dice.NewSeededSource(seed), domain.DiceSides)
	if err != nil {
		t.Fatalf("new roller: %v", err)
	}
	svc := service.New(store, roller, zerolog.Nop())

	authn, err := auth.New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}

	handler := NewHandler(svc, authn, testOperator, zerolog.Nop())
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &testAPI{server: server, authn: authn}
}

func (api *testAPI) token(t *testing.T, identity string) string {
	t.Helper()
	token, err := api.authn.Mint(identity, time.Hour)
	if err != nil {
		t.Fatalf("mint token for %s: %v", identity, err)
	}
	return token
}

func (api *testAPI) do(t *testing.T, method, path, identity string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, api.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+api.token(t, identity))
	}
	resp, err := api.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var value T
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return value
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[errorResponse](t, resp).Error.Code
}

func (api *testAPI) fund(t *testing.T, identity string, amount int64) {
	t.Helper()
	resp := api.do(t, http.MethodPost, "/accounts/"+identity+"/fund", testOperator, fundRequest{Amount: amount})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fund %s: status %d", identity, resp.StatusCode)
	}
}

func (api *testAPI) createSession(t *testing.T, authority string, entryFee int64, trackLength int) sessionView {
	t.Helper()
	resp := api.do(t, http.MethodPost, "/sessions", authority, createSessionRequest{
		EntryFee:    entryFee,
		TrackLength: trackLength,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	return decode[sessionView](t, resp)
}

func TestActionsRequireBearerToken(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodPost, "/sessions", "", createSessionRequest{TrackLength: 10})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "UNAUTHENTICATED" {
		t.Fatalf("code = %q, want UNAUTHENTICATED", code)
	}
}

func TestRejectsForgedToken(t *testing.T) {
	api := newTestAPI(t, 1)
	forger, err := auth.New([]byte("other-secret"))
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	token, err := forger.Mint("alice", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/sessions", bytes.NewBufferString(`{"trackLength":10}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := api.server.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateSessionReturnsCanonicalShape(t *testing.T) {
	api := newTestAPI(t, 1)
	created := api.createSession(t, "authority-1", 100, 10)

	if created.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	if created.Authority != "authority-1" {
		t.Fatalf("authority = %q", created.Authority)
	}
	if created.Phase != "WaitingForPlayers" {
		t.Fatalf("phase = %q, want WaitingForPlayers", created.Phase)
	}
	if created.EntryFee != 100 || created.TrackLength != 10 || created.PrizePool != 0 {
		t.Fatalf("unexpected session: %+v", created)
	}
	if len(created.Players) != 0 {
		t.Fatalf("expected empty roster")
	}

	// The raw document must keep its field names stable and omit the
	// winner until the race finishes.
	resp := api.do(t, http.MethodGet, "/sessions/"+created.SessionID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: status %d", resp.StatusCode)
	}
	raw := decode[map[string]any](t, resp)
	for _, key := range []string{"sessionId", "authority", "phase", "entryFee", "trackLength", "players", "prizePool"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("canonical document missing %q: %v", key, raw)
		}
	}
	if _, ok := raw["winner"]; ok {
		t.Fatalf("winner should be omitted before the finish")
	}
}

func TestCreateSessionValidation(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodPost, "/sessions", "authority-1", createSessionRequest{EntryFee: -5, TrackLength: 10})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "INVALID_PARAMETERS" {
		t.Fatalf("code = %q", code)
	}
}

func TestGetMissingSession(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodGet, "/sessions/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "NOT_FOUND" {
		t.Fatalf("code = %q", code)
	}
}

func TestJoinPhaseAndDuplicateErrors(t *testing.T) {
	api := newTestAPI(t, 1)
	for _, name := range []string{"p1", "p2", "p3"} {
		api.fund(t, name, 1_000)
	}
	created := api.createSession(t, "authority-1", 100, 50)

	resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", "p1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join p1: status %d", resp.StatusCode)
	}

	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", "p1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate join: status %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "ALREADY_JOINED" {
		t.Fatalf("code = %q", code)
	}

	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", "p2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join p2: status %d", resp.StatusCode)
	}
	joined := decode[sessionView](t, resp)
	if joined.Phase != "InProgress" {
		t.Fatalf("phase = %q after second join", joined.Phase)
	}

	// Session is in progress now, a third join is rejected by phase.
	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", "p3", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("late join: status %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "GAME_NOT_JOINABLE" {
		t.Fatalf("code = %q", code)
	}
}

func TestJoinWithoutFundsFails(t *testing.T) {
	api := newTestAPI(t, 1)
	created := api.createSession(t, "authority-1", 100, 10)

	resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", "pauper", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "INSUFFICIENT_FUNDS" {
		t.Fatalf("code = %q", code)
	}
}

func TestFullRaceOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1)
	api.fund(t, "player-a", 10_000_000)
	api.fund(t, "player-b", 10_000_000)

	created := api.createSession(t, "authority-1", 10_000_000, 5)
	for _, name := range []string{"player-a", "player-b"} {
		resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", name, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %s: status %d", name, resp.StatusCode)
		}
	}

	// Two boosts cross a track of five.
	resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/boost", "player-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first boost: status %d", resp.StatusCode)
	}
	first := decode[moveResponse](t, resp)
	if first.Position != 3 || first.Finished {
		t.Fatalf("unexpected first boost: %+v", first)
	}

	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/boost", "player-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second boost: status %d", resp.StatusCode)
	}
	second := decode[moveResponse](t, resp)
	if !second.Won || second.Session.Winner != "player-a" || second.Session.Phase != "Finished" {
		t.Fatalf("unexpected second boost: %+v", second)
	}

	// Losers can neither move nor claim.
	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/roll", "player-b", nil)
	if code := errorCode(t, resp); code != "GAME_NOT_IN_PROGRESS" {
		t.Fatalf("post-win roll code = %q", code)
	}
	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/claim", "player-b", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("loser claim: status %d, want 403", resp.StatusCode)
	}

	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/claim", "player-a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim: status %d", resp.StatusCode)
	}
	claimed := decode[claimResponse](t, resp)
	if claimed.Amount != 20_000_000 || claimed.Session.PrizePool != 0 {
		t.Fatalf("unexpected claim: %+v", claimed)
	}

	resp = api.do(t, http.MethodGet, "/accounts/player-a", "", nil)
	account := decode[accountResponse](t, resp)
	if account.Balance != 20_000_000 {
		t.Fatalf("winner balance = %d", account.Balance)
	}

	resp = api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/claim", "player-a", nil)
	if code := errorCode(t, resp); code != "ALREADY_CLAIMED" {
		t.Fatalf("second claim code = %q", code)
	}
}

func TestRollMovesWithinDieRange(t *testing.T) {
	api := newTestAPI(t, 7)
	api.fund(t, "alice", 100)
	api.fund(t, "bob", 100)
	created := api.createSession(t, "authority-1", 0, 1_000)
	for _, name := range []string{"alice", "bob"} {
		resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", name, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %s: status %d", name, resp.StatusCode)
		}
	}

	position := 0
	for i := 0; i < 10; i++ {
		resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/roll", "alice", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("roll %d: status %d", i, resp.StatusCode)
		}
		move := decode[moveResponse](t, resp)
		if move.Roll < 1 || move.Roll > 6 {
			t.Fatalf("roll %d outside range: %d", i, move.Roll)
		}
		position += move.Roll
		if move.Position != position {
			t.Fatalf("roll %d: position %d, want %d", i, move.Position, position)
		}
	}
}

func TestSessionListSummaries(t *testing.T) {
	api := newTestAPI(t, 1)
	first := api.createSession(t, "authority-1", 10, 10)
	second := api.createSession(t, "authority-1", 20, 20)

	resp := api.do(t, http.MethodGet, "/sessions", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	list := decode[listSessionsResponse](t, resp)
	if len(list.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list.Sessions))
	}
	ids := map[string]bool{}
	for _, session := range list.Sessions {
		ids[session.SessionID] = true
	}
	for _, want := range []string{first.SessionID, second.SessionID} {
		if !ids[want] {
			t.Fatalf("missing session %s in %v", want, ids)
		}
	}
}

func TestFundRequiresOperator(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodPost, "/accounts/alice/fund", "alice", fundRequest{Amount: 100})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "FORBIDDEN" {
		t.Fatalf("code = %q", code)
	}
}

func TestFundValidatesAmount(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodPost, "/accounts/alice/fund", testOperator, fundRequest{Amount: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, 1)
	resp := api.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestBoostExhaustionOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1)
	api.fund(t, "alice", 100)
	api.fund(t, "bob", 100)
	created := api.createSession(t, "authority-1", 0, 1_000)
	for _, name := range []string{"alice", "bob"} {
		resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/join", name, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %s: status %d", name, resp.StatusCode)
		}
	}

	for i := 0; i < 3; i++ {
		resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/boost", "alice", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("boost %d: status %d", i+1, resp.StatusCode)
		}
		move := decode[moveResponse](t, resp)
		if move.Session.Players[0].BoostsRemaining != 3-(i+1) {
			t.Fatalf("boost %d: remaining = %d", i+1, move.Session.Players[0].BoostsRemaining)
		}
	}

	resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/boost", "alice", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("exhausted boost: status %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "NO_BOOSTS_REMAINING" {
		t.Fatalf("code = %q", code)
	}
}

func TestClaimBeforeFinishOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1)
	api.fund(t, "alice", 100)
	api.fund(t, "bob", 100)
	created := api.createSession(t, "authority-1", 10, 1_000)
	for _, name := range []string{"alice", "bob"} {
		resp := api.do(t, http.MethodPost, fmt.Sprintf("/sessions/%s/join", created.SessionID), name, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join %s: status %d", name, resp.StatusCode)
		}
	}

	resp := api.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/claim", "alice", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "GAME_NOT_FINISHED" {
		t.Fatalf("code = %q", code)
	}
}
