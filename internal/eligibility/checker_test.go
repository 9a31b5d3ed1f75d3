package eligibility

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop-eligibility-api/internal/httpclient"
	"airdrop-eligibility-api/internal/models"
)

const testWallet = "0xabcdef0000000000000000000000000000000001"

func newTestClient() *httpclient.Client {
	return httpclient.New(httpclient.WithRetryDelay(time.Millisecond), httpclient.WithTimeout(2*time.Second))
}

func TestAPIChecker_MissingURLMakesNoCalls(t *testing.T) {
	var calls atomic.Int32
	client := httpclient.New(httpclient.WithObserver(func(string, int, time.Duration) { calls.Add(1) }))
	checker := NewAPIChecker(client)

	out := checker.Check(context.Background(), testWallet, models.Campaign{ID: "wormhole-w", CheckMethod: "api"})

	assert.False(t, out.IsEligible)
	assert.Equal(t, MsgAPINotConfigured, out.ErrorMessage)
	assert.Equal(t, int32(0), calls.Load())
}

func TestAPIChecker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testWallet, r.URL.Query().Get("address"))
		assert.Equal(t, "strk", r.URL.Query().Get("token"))
		w.Write([]byte(`{"eligible": true, "amount": "1500", "claimed": false}`))
	}))
	defer srv.Close()

	checker := NewAPIChecker(newTestClient())
	out := checker.Check(context.Background(), testWallet, models.Campaign{
		ID: "starknet-strk", CheckMethod: "api", EligibilityAPIURL: srv.URL + "/check?token=strk",
	})

	assert.True(t, out.IsEligible)
	assert.Empty(t, out.ErrorMessage)
	assertDecimal(t, "1500", out.AllocationAmount)
}

func TestAPIChecker_NonSuccessStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	checker := NewAPIChecker(newTestClient())
	out := checker.Check(context.Background(), testWallet, models.Campaign{
		ID: "starknet-strk", CheckMethod: "api", EligibilityAPIURL: srv.URL,
	})

	assert.False(t, out.IsEligible)
	assert.Equal(t, "API returned 404", out.ErrorMessage)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIChecker_UnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>nope</html>`))
	}))
	defer srv.Close()

	checker := NewAPIChecker(newTestClient())
	out := checker.Check(context.Background(), testWallet, models.Campaign{
		ID: "starknet-strk", CheckMethod: "api", EligibilityAPIURL: srv.URL,
	})

	assert.False(t, out.IsEligible)
	assert.Equal(t, MsgUnparsable, out.ErrorMessage)
}

func TestAPIChecker_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	checker := NewAPIChecker(newTestClient())
	out := checker.Check(context.Background(), testWallet, models.Campaign{
		ID: "starknet-strk", CheckMethod: "api", EligibilityAPIURL: url,
	})

	assert.False(t, out.IsEligible)
	assert.Equal(t, MsgAPICallFailed, out.ErrorMessage)
}

func TestBuildCheckURL(t *testing.T) {
	assert.Equal(t, "https://x.io/c?address=0xab", buildCheckURL("https://x.io/c", "0xab"))
	assert.Equal(t, "https://x.io/c?a=1&address=0xab", buildCheckURL("https://x.io/c?a=1", "0xab"))
}

func TestManualChecker_NeverEligible(t *testing.T) {
	checker := NewManualChecker()

	for _, method := range []string{"manual", "MANUAL", "merkle", "Merkle"} {
		out := checker.Check(context.Background(), testWallet, models.Campaign{ID: "x", CheckMethod: method})
		assert.False(t, out.IsEligible, method)
		assert.NotEmpty(t, out.ErrorMessage, method)
	}

	out := checker.Check(context.Background(), testWallet, models.Campaign{CheckMethod: "merkle"})
	assert.Equal(t, MsgCheckClaimPage, out.ErrorMessage)
	out = checker.Check(context.Background(), testWallet, models.Campaign{CheckMethod: "manual"})
	assert.Equal(t, MsgManualVerification, out.ErrorMessage)
}

func TestRegistry_FirstRegisteredWins(t *testing.T) {
	first := &countingChecker{methods: []Method{MethodManual}, outcome: Outcome{ErrorMessage: "first"}}
	second := &countingChecker{methods: []Method{MethodManual, MethodMerkle}, outcome: Outcome{ErrorMessage: "second"}}
	reg := NewRegistry(first, second)

	c, ok := reg.Lookup(MethodManual)
	require.True(t, ok)
	assert.Same(t, first, c)

	c, ok = reg.Lookup(MethodMerkle)
	require.True(t, ok)
	assert.Same(t, second, c)

	_, ok = reg.Lookup(MethodAPI)
	assert.False(t, ok)
}

func TestRegistry_UnknownMethod(t *testing.T) {
	reg := NewRegistry(NewManualChecker())

	out, m := reg.Check(context.Background(), testWallet, models.Campaign{ID: "x", CheckMethod: "snapshot"})
	assert.False(t, out.IsEligible)
	assert.Equal(t, "no checker for method: snapshot", out.ErrorMessage)
	assert.Equal(t, Method("snapshot"), m)
	assert.False(t, m.Known())
}

func TestParseMethod(t *testing.T) {
	assert.Equal(t, MethodAPI, ParseMethod(" API "))
	assert.Equal(t, MethodMerkle, ParseMethod("Merkle"))
	assert.True(t, ParseMethod("manual").Known())
}
