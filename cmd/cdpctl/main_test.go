package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"cdpproxy/core/vm"
	"cdpproxy/native/proxy"
)

const owner = "0x0000000000000000000000000000000000000b0b"

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDeploySubmitsRegistryCall(t *testing.T) {
	t.Setenv(tokenEnv, "token-1")
	var got submitBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tx" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"sequence":3,"output":"0x","events":[]}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "--endpoint", srv.URL, "tx", "deploy", "--from", owner)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if !strings.Contains(out, `"sequence": 3`) {
		t.Fatalf("missing sequence in output:\n%s", out)
	}
	if got.To != proxy.RegistryAddress.Hex() {
		t.Fatalf("expected registry target, got %s", got.To)
	}
	if want := hexutil.Encode(vm.MustEncodeCall(proxy.SelDeploy, struct{}{})); got.Data != want {
		t.Fatalf("calldata mismatch: got %s want %s", got.Data, want)
	}
	if !strings.EqualFold(owner, got.From) {
		t.Fatalf("expected sender %s, got %s", owner, got.From)
	}
}

func TestGatewayErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"vault not found"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "--endpoint", srv.URL, "vault", "9")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected apiError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "vault not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestArgumentValidation(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"vault", "0"}, "invalid vault id"},
		{[]string{"account", "nope"}, "invalid owner address"},
		{[]string{"tx", "submit", "--from", owner, "--to", owner, "--data", "0xzz"}, "invalid calldata"},
		{[]string{"tx", "deploy", "--from", owner, "--value=-4"}, "invalid value"},
	}
	for _, tc := range cases {
		_, err := runCLI(t, tc.args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%v: expected %q error, got %v", tc.args, tc.want, err)
		}
	}
}

func TestEventQueryString(t *testing.T) {
	f := eventFilter{kind: "automation.rebalanced", vault: "4", from: 2, limit: 10}
	if got := f.query(); got != "?from=2&limit=10&type=automation.rebalanced&vault=4" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := (&eventFilter{}).query(); got != "" {
		t.Fatalf("expected empty query, got %q", got)
	}
}
