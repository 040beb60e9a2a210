package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"bondgateway/internal/identity/provider/mocks"
	"bondgateway/internal/identity/signer"
	"bondgateway/pkg/domain"
	"bondgateway/pkg/platform/circuit"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testRequest() SignedRequest {
	sig := signer.Signature{Timestamp: "2024-01-01T00:00:00.000Z", Signature: "c2ln"}
	return NewSignedRequest("2481", sig, domain.BVN("00000000000"), time.UnixMilli(1700000000000))
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, SandboxBaseURL, BaseURL("0"))
	assert.Equal(t, ProductionBaseURL, BaseURL("1"))
	assert.Equal(t, ProductionBaseURL, BaseURL(""))
}

func TestNewSignedRequest(t *testing.T) {
	a := testRequest()
	b := testRequest()

	assert.Equal(t, "rest_api", a.SourceSDK)
	assert.Equal(t, "1.0.0", a.SourceSDKVersion)
	assert.Equal(t, "NG", a.Country)
	assert.Equal(t, "BVN", a.IDType)
	assert.Equal(t, 5, a.PartnerParams.JobType)
	assert.True(t, strings.HasPrefix(a.PartnerParams.JobID, "job_1700000000000_"))
	assert.True(t, strings.HasPrefix(a.PartnerParams.UserID, "user_1700000000000_"))
	assert.Len(t, a.PartnerParams.JobID, len("job_1700000000000_")+9)
	assert.NotEqual(t, a.PartnerParams.JobID, b.PartnerParams.JobID, "job ids are never reused")
}

func TestClientSubmit(t *testing.T) {
	t.Run("posts the signed body to id_verification", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		doer := mocks.NewMockHTTPDoer(ctrl)
		doer.EXPECT().Do(gomock.Any()).Times(1).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "https://testapi.smileidentity.com/v1/id_verification", req.URL.String())
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

			var sent map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
			assert.Equal(t, "00000000000", sent["id_number"])
			assert.Equal(t, "c2ln", sent["signature"])
			assert.Contains(t, sent, "partner_params")
			return jsonResponse(http.StatusOK, `{"ResultCode":"1012","ResultText":"ID Number Validated","FullData":{"FirstName":"Ada"}}`), nil
		})

		raw, err := New(SandboxBaseURL, WithHTTPClient(doer)).Submit(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, ResultCode("1012"), raw.ResultCode)
		assert.Equal(t, "Ada", raw.FullDataString("FirstName"))
		assert.Equal(t, http.StatusOK, raw.StatusCode)
		assert.NotEmpty(t, raw.Body)
	})

	t.Run("JSON error bodies are returned for normalization", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		doer := mocks.NewMockHTTPDoer(ctrl)
		doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusBadRequest, `{"ResultCode":2204,"ResultText":"Invalid signature"}`), nil)

		raw, err := New("http://provider.test", WithHTTPClient(doer)).Submit(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, ResultCode("2204"), raw.ResultCode)
		assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
	})

	tests := []struct {
		name     string
		resp     *http.Response
		err      error
		category ErrorCategory
	}{
		{"connection refused", nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrorProviderOutage},
		{"deadline", nil, context.DeadlineExceeded, ErrorTimeout},
		{"html gateway page", jsonResponse(http.StatusBadGateway, "<html>bad gateway</html>"), nil, ErrorProviderOutage},
		{"plain text 200", jsonResponse(http.StatusOK, "ok"), nil, ErrorBadData},
		{"json array", jsonResponse(http.StatusOK, "[]"), nil, ErrorBadData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			doer := mocks.NewMockHTTPDoer(ctrl)
			doer.EXPECT().Do(gomock.Any()).Return(tt.resp, tt.err)

			raw, err := New("http://provider.test", WithHTTPClient(doer)).Submit(context.Background(), testRequest())
			assert.Nil(t, raw)
			require.Error(t, err)
			assert.True(t, IsTransportError(err))
			assert.Equal(t, tt.category, GetCategory(err))
		})
	}
}

func TestClientSubmit_OpenCircuitFailsFast(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Times(1).Return(nil, errors.New("connection reset"))

	breaker := circuit.New("identity-provider", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	client := New("http://provider.test", WithHTTPClient(doer), WithBreaker(breaker))

	_, err := client.Submit(context.Background(), testRequest())
	require.Error(t, err)

	_, err = client.Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, ErrorProviderOutage, GetCategory(err))
	assert.Contains(t, err.Error(), "circuit open")
}

func TestClientSubmit_RateLimiterExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Times(1).Return(jsonResponse(http.StatusOK, `{"ResultCode":"1012"}`), nil)

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	client := New("http://provider.test", WithHTTPClient(doer), WithRateLimiter(limiter), WithTimeout(50*time.Millisecond))

	_, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, GetCategory(err))
}

func TestResultCode_UnmarshalJSON(t *testing.T) {
	tests := map[string]ResultCode{
		`{"ResultCode":"1012"}`: "1012",
		`{"ResultCode":1012}`:   "1012",
		`{"ResultCode":0}`:      "0",
		`{"ResultCode":null}`:   "",
		`{}`:                    "",
	}
	for body, want := range tests {
		var raw RawResponse
		require.NoError(t, json.Unmarshal([]byte(body), &raw), body)
		assert.Equal(t, want, raw.ResultCode, body)
	}
}
