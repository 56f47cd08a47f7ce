package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"cdpproxy/core"
	"cdpproxy/core/coretest"
	"cdpproxy/core/events"
	"cdpproxy/core/types"
	"cdpproxy/core/vm"
	"cdpproxy/gateway/middleware"
	"cdpproxy/gateway/routes"
	"cdpproxy/indexer"
	"cdpproxy/native/proxy"
)

type harness struct {
	f      *coretest.Fixture
	server *httptest.Server
	hub    *routes.Hub
}

func newHarness(t *testing.T, auth *middleware.Authenticator) *harness {
	return newHarnessWith(t, auth, true)
}

func newHarnessWith(t *testing.T, auth *middleware.Authenticator, openWrites bool) *harness {
	t.Helper()
	db, err := indexer.Open(indexer.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	ix, err := indexer.New(db, nil)
	require.NoError(t, err)
	hub := routes.NewHub(8, nil)
	f := coretest.New(t, core.WithListener(ix.Listener()), core.WithListener(hub.Listener()))

	handler, err := routes.New(routes.Config{
		Node:                       f.Node,
		Indexer:                    ix,
		Hub:                        hub,
		Authenticator:              auth,
		AllowUnauthenticatedWrites: openWrites,
	})
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &harness{f: f, server: server, hub: hub}
}

func (h *harness) submit(t *testing.T, token string, body map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/v1/tx", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func (h *harness) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	res, err := http.Get(h.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func deployBody() map[string]interface{} {
	return map[string]interface{}{
		"from": coretest.Owner.Hex(),
		"to":   proxy.RegistryAddress.Hex(),
		"data": hexutil.Encode(vm.MustEncodeCall(proxy.SelDeploy, struct{}{})),
	}
}

func TestSubmitAndRead(t *testing.T) {
	h := newHarness(t, nil)

	status, out := h.submit(t, "", deployBody())
	require.Equal(t, http.StatusOK, status, out)
	require.EqualValues(t, 1, out["sequence"])
	require.Len(t, out["events"], 1)

	var account map[string]interface{}
	require.Equal(t, http.StatusOK, h.get(t, "/v1/accounts/"+coretest.Owner.Hex(), &account))
	current, err := h.f.World.Proxies.CurrentAccount(coretest.Owner)
	require.NoError(t, err)
	require.Equal(t, current.Hex(), account["account"])
	require.EqualValues(t, proxy.DefaultMinGas, account["minGas"])

	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/accounts/"+coretest.Stranger.Hex(), nil))
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/accounts/nope", nil))

	// Deploying twice reverts and is reported as unprocessable.
	status, out = h.submit(t, "", deployBody())
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Contains(t, out["error"], "already")

	var evs []*types.Event
	require.Equal(t, http.StatusOK, h.get(t, "/v1/events?type="+events.TypeProxyDeployed, &evs))
	require.Len(t, evs, 1)
	require.Equal(t, uint64(1), evs[0].Height)
}

func TestVaultRoutes(t *testing.T) {
	h := newHarness(t, nil)
	_, id := h.f.OpenVault(coretest.Owner, coretest.WETH, coretest.Ether(10), coretest.Ether(1_000))

	var vault map[string]interface{}
	require.Equal(t, http.StatusOK, h.get(t, "/v1/vaults/1", &vault))
	require.EqualValues(t, id, vault["id"])
	require.Equal(t, coretest.Ether(1_000).String(), vault["debt"])
	require.Equal(t, h.f.Ratio(id).String(), vault["ratio"])

	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/vaults/42", nil))
	require.Equal(t, http.StatusBadRequest, h.get(t, "/v1/vaults/zero", nil))

	var auto map[string]interface{}
	require.Equal(t, http.StatusOK, h.get(t, "/v1/automation/1", &auto))
	require.Equal(t, false, auto["isAutomated"])

	require.Equal(t, http.StatusNotFound, h.get(t, "/v1/automation/42/amounts?to="+coretest.USDC.Hex(), nil))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, nil)
	body := deployBody()
	body["data"] = "0xzz"
	status, _ := h.submit(t, "", body)
	require.Equal(t, http.StatusBadRequest, status)

	body = deployBody()
	body["value"] = "-1"
	status, _ = h.submit(t, "", body)
	require.Equal(t, http.StatusBadRequest, status)

	body = deployBody()
	body["to"] = "0x1234"
	status, _ = h.submit(t, "", body)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitRequiresMatchingSubject(t *testing.T) {
	const secret = "gateway-secret"
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: secret}, nil)
	h := newHarness(t, auth)
	sign := func(sub string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":   sub,
			"scope": routes.ScopeSubmit,
			"exp":   float64(time.Now().Add(time.Hour).Unix()),
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	status, _ := h.submit(t, "", deployBody())
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.submit(t, sign(coretest.Stranger.Hex()), deployBody())
	require.Equal(t, http.StatusForbidden, status)

	status, out := h.submit(t, sign(strings.ToLower(coretest.Owner.Hex())), deployBody())
	require.Equal(t, http.StatusOK, status, out)

	// Reads stay open.
	require.Equal(t, http.StatusOK, h.get(t, "/v1/accounts/"+coretest.Owner.Hex(), nil))
}

func TestWritesRefusedWithoutAuth(t *testing.T) {
	h := newHarnessWith(t, nil, false)
	status, out := h.submit(t, "", deployBody())
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 without auth, got %d: %v", status, out)
	}
	if account, _ := h.f.World.Proxies.CurrentAccount(coretest.Owner); account != (common.Address{}) {
		t.Fatalf("refused write still deployed %s", account.Hex())
	}
	if status := h.get(t, "/v1/vaults/42", nil); status != http.StatusNotFound {
		t.Fatalf("reads should stay open, got %d", status)
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/events/ws?type=" + events.TypeProxyDeployed
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return h.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.f.Deploy(coretest.Owner)

	var ev types.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	require.Equal(t, events.TypeProxyDeployed, ev.Type)
	require.Equal(t, strings.ToLower(coretest.Owner.Hex()), strings.ToLower(ev.Attr("owner")))
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	hub := routes.NewHub(1, nil)
	ch, cancel := hub.Subscribe(nil)
	defer cancel()
	hub.Publish(&types.Event{Type: "a"})
	hub.Publish(&types.Event{Type: "b"})
	require.Equal(t, 0, hub.Subscribers())
	first, ok := <-ch
	require.True(t, ok)
	require.Equal(t, "a", first.Type)
	_, ok = <-ch
	require.False(t, ok)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)
	res, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Request-Id"))

	h.get(t, "/v1/vaults/7", nil)
	res, err = http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "cdp_gateway_requests_total")
	require.Contains(t, buf.String(), `module="reads"`)
}
