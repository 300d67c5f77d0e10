package acuant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/id-bridge/internal/sdkconfig"
)

func testConfig(base string) *sdkconfig.Config {
	return &sdkconfig.Config{
		Mode:        sdkconfig.AuthCredentials,
		Credentials: sdkconfig.Credentials{Username: "user", Password: "pass", Subscription: "sub-1"},
		Endpoints: sdkconfig.Endpoints{
			Authentication:   base,
			DocumentIdentity: base,
			FaceRecognition:  base,
			Liveness:         base,
		},
		AccessToken: "bearer-1",
	}
}

func TestCreateInstanceSendsBearerAndOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AssureIDService/Document/Instance", r.URL.Path)
		assert.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))

		var opts InstanceOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		assert.Equal(t, "sub-1", opts.SubscriptionID)
		assert.Equal(t, sensorMobile, opts.Device.Type.SensorType)

		_, _ = io.WriteString(w, `"instance-42"`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	id, err := NewClient(srv.Client(), zap.NewNop()).CreateInstance(context.Background(), cfg, DefaultInstanceOptions("sub-1", "dev-1"))
	require.NoError(t, err)
	assert.Equal(t, "instance-42", id)
}

func TestUploadImageUsesSideQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AssureIDService/Document/inst-1/Image", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("side"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("jpeg-bytes"), body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.Client(), zap.NewNop()).UploadImage(context.Background(), testConfig(srv.URL), "inst-1", SideBack, []byte("jpeg-bytes"))
	require.NoError(t, err)
}

func TestGetDocumentFlattensFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"InstanceId": "inst-1",
			"Result": 1,
			"Classification": {"Type": {"ClassName": "Drivers License", "Name": "Washington (WA) Driver License"}},
			"Fields": [
				{"Name": "Full Name", "Value": "JANE Q SAMPLE"},
				{"Name": "Given Name", "Value": "JANE"},
				{"Name": "Surname", "Value": "SAMPLE"},
				{"Name": "Birth Date", "Value": "/Date(631152000000+0000)/"},
				{"Name": "Document Number", "Value": "WDL123"},
				{"Name": "Issuing State Code", "Value": "WA"},
				{"Name": "Sex", "Value": "F"},
				{"Name": "Address", "Value": "  "}
			]
		}`)
	}))
	defer srv.Close()

	res, err := NewClient(srv.Client(), zap.NewNop()).GetDocument(context.Background(), testConfig(srv.URL), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "JANE Q SAMPLE", res.FullName)
	assert.Equal(t, "JANE", res.FirstName)
	assert.Equal(t, "SAMPLE", res.LastName)
	assert.Equal(t, "1990-01-01", res.DateOfBirth)
	assert.Equal(t, "WDL123", res.DocumentNumber)
	assert.Equal(t, "WA", res.Country)
	assert.Equal(t, "F", res.Sex)
	assert.Empty(t, res.Address)
	assert.Equal(t, "Drivers License", res.DocumentType)
	assert.Equal(t, "Washington (WA) Driver License", res.ClassificationDetails)
}

func TestVendorErrorIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ErrorCode": "FaceNotFound", "Error": "No face detected"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client(), zap.NewNop()).PassiveLiveness(context.Background(), testConfig(srv.URL), []byte("jpeg"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "FaceNotFound", apiErr.Code)
	assert.Equal(t, "No face detected", apiErr.Description)
	assert.False(t, apiErr.Unauthorized())
}

func TestBootstrapFetchesTokenAndChecksSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "user", user)
			assert.Equal(t, "pass", pass)
			_, _ = io.WriteString(w, `{"access_token": "fresh", "token_type": "bearer", "expires_in": 3600}`)
		case "/AssureIDService/subscriptions":
			assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `[{"Id": "sub-1", "Name": "demo", "IsActive": true}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	cfg := *testConfig(srv.URL)
	cfg.AccessToken = ""
	client := NewClient(srv.Client(), zap.NewNop())
	client.now = func() time.Time { return time.Unix(1000, 0) }

	token, err := client.Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Equal(t, time.Unix(1000+3600, 0), token.ExpiresAt)
}

func TestBootstrapRefreshesRevokedCachedToken(t *testing.T) {
	var tokenCalls, subscriptionCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			tokenCalls.Add(1)
			_, _ = io.WriteString(w, `{"access_token": "fresh", "token_type": "bearer", "expires_in": 600}`)
		case "/AssureIDService/subscriptions":
			subscriptionCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"Message": "token revoked"}`)
				return
			}
			_, _ = io.WriteString(w, `[{"Id": "sub-1", "IsActive": true}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	// testConfig carries a cached, unexpired bearer-1.
	client := NewClient(srv.Client(), zap.NewNop())
	client.now = func() time.Time { return time.Unix(2000, 0) }

	token, err := client.Bootstrap(context.Background(), *testConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Equal(t, time.Unix(2000+600, 0), token.ExpiresAt)
	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, int32(2), subscriptionCalls.Load())
}

func TestBootstrapReportsInactiveSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"Id": "sub-1", "IsActive": false}]`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.Client(), zap.NewNop()).Bootstrap(context.Background(), *testConfig(srv.URL))
	var bootErr *BootstrapError
	require.True(t, errors.As(err, &bootErr))
	assert.Equal(t, []string{"subscription sub-1 is not active"}, bootErr.Problems)
}

func TestBootstrapCollectsInvalidEndpoints(t *testing.T) {
	cfg := *testConfig("https://ok.example.test")
	cfg.Endpoints.FaceRecognition = "not a url"
	cfg.Endpoints.Liveness = ""

	_, err := NewClient(nil, zap.NewNop()).Bootstrap(context.Background(), cfg)
	var bootErr *BootstrapError
	require.True(t, errors.As(err, &bootErr))
	require.Len(t, bootErr.Problems, 2)
	assert.True(t, strings.HasPrefix(bootErr.Problems[0], "invalid frm endpoint"))
	assert.True(t, strings.HasPrefix(bootErr.Problems[1], "invalid passlive endpoint"))
}

func TestBootstrapTokenModeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"Message": "token expired"}`)
	}))
	defer srv.Close()

	cfg := *testConfig(srv.URL)
	cfg.Mode = sdkconfig.AuthToken
	cfg.Credentials = sdkconfig.Credentials{}

	_, err := NewClient(srv.Client(), zap.NewNop()).Bootstrap(context.Background(), cfg)
	var bootErr *BootstrapError
	require.True(t, errors.As(err, &bootErr))
	assert.True(t, bootErr.Unauthorized)
	assert.Equal(t, []string{"token expired"}, bootErr.Problems)
}

func TestNormalizeDateLeavesPlainValues(t *testing.T) {
	assert.Equal(t, "2030-05-01", normalizeDate("2030-05-01"))
	assert.Equal(t, "1970-01-01", normalizeDate("/Date(0)/"))
}

func TestPassiveLivenessSendsImageAndSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/liveness", r.URL.Path)
		var body struct {
			Settings struct {
				SubscriptionID string `json:"SubscriptionId"`
			} `json:"Settings"`
			Image string `json:"Image"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sub-1", body.Settings.SubscriptionID)
		assert.Equal(t, "anBlZw==", body.Image)
		_, _ = io.WriteString(w, `{"LivenessResult": {"LivenessAssessment": "Live", "Score": 91}, "TransactionId": "tx-9"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.Client(), zap.NewNop()).PassiveLiveness(context.Background(), testConfig(srv.URL), []byte("jpeg"))
	require.NoError(t, err)
	require.NotNil(t, resp.LivenessResult)
	assert.Equal(t, "Live", resp.LivenessResult.LivenessAssessment)
	assert.Equal(t, 91, resp.LivenessResult.Score)
	assert.Equal(t, "tx-9", resp.TransactionID)
}

func TestFaceMatchKeepsEmbeddedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/facematch", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"))
		_, _ = io.WriteString(w, `{"IsMatch": false, "Score": 0, "Error": {"ErrorCode": "FaceNotFound", "Description": "No face in image two"}}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.Client(), zap.NewNop()).FaceMatch(context.Background(), testConfig(srv.URL), []byte("a"), []byte("b"))
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "No face in image two", resp.Error.Description)
}
