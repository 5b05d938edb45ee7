package buildsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/login",
		RequestRate:  1000,
		RequestBurst: 100,
	})
	require.NoError(t, err)
	return c
}

func TestAcquireToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-abc"})
	}))

	cred, err := c.AcquireToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-abc", cred.Token)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusInternalServerError, IsTransient, "500 transient"},
		{http.StatusServiceUnavailable, IsTransient, "503 transient"},
		{http.StatusTooManyRequests, IsTransient, "429 transient"},
		{http.StatusUnauthorized, IsAuth, "401 auth"},
		{http.StatusForbidden, IsAuth, "403 auth"},
		{419, IsAuth, "419 auth"},
		{http.StatusBadRequest, IsRejected, "400 rejected"},
		{http.StatusUnprocessableEntity, IsRejected, "422 rejected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := c.Submit(context.Background(), "tok", SubmitRequest{})
			require.Error(t, err)
			require.True(t, tc.check(err), "status %d misclassified: %v", tc.status, err)
		})
	}
}

func TestSubmit_HandleFromLocationHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Location", "/api/jobs/17012345678901234/status")
		w.WriteHeader(http.StatusAccepted)
	}))

	handle, err := c.Submit(context.Background(), "tok", SubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, "17012345678901234", handle)
}

func TestSubmit_HandleFromJSONBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id": 17012345678901234}`))
	}))

	handle, err := c.Submit(context.Background(), "tok", SubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, "17012345678901234", handle)
}

func TestSubmit_HandleFromBodyDigits(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("queued as 17012345678901234, thank you"))
	}))

	handle, err := c.Submit(context.Background(), "tok", SubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, "17012345678901234", handle)
}

func TestSubmit_NoHandleAnywhere(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok 12345")) // too short to be a handle
	}))

	_, err := c.Submit(context.Background(), "tok", SubmitRequest{})
	require.Error(t, err)
}

func TestPollBuild(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/jobs/h1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(BuildStatus{State: BuildReady, ResultURL: "/api/results/h1"})
	}))

	status, err := c.PollBuild(context.Background(), "tok", "h1")
	require.NoError(t, err)
	require.Equal(t, BuildReady, status.State)
	require.Equal(t, "/api/results/h1", status.ResultURL)
}

func TestPollBuild_UnknownState(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"state": "exploded"})
	}))

	_, err := c.PollBuild(context.Background(), "tok", "h1")
	require.Error(t, err)
}

func TestDownload_ResolvesRelativeResultURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/results/h1", r.URL.Path)
		_, _ = w.Write([]byte("artifact-bytes"))
	}))

	data, err := c.Download(context.Background(), "tok", "/api/results/h1")
	require.NoError(t, err)
	require.Equal(t, []byte("artifact-bytes"), data)
}

func TestDownload_EmptyBodyIsTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.Download(context.Background(), "tok", "/api/results/h1")
	require.True(t, IsTransient(err))
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // connection refused from here on

	c, err := New(Options{BaseURL: url, AuthURL: url + "/login", RequestRate: 1000, RequestBurst: 100})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), "tok", SubmitRequest{})
	require.True(t, IsTransient(err), "connection refused should classify transient: %v", err)
}

func TestFetchSpecDetails(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/singlespec", r.URL.Path)
		require.Equal(t, []string{"s1", "s2"}, r.URL.Query()["id"])
		_, _ = w.Write([]byte(`{"s1": {"cab": "L2H1"}, "s2": {"cab": "L1H2"}}`))
	}))

	details, err := c.FetchSpecDetails(context.Background(), "tok", []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	require.JSONEq(t, `{"cab": "L2H1"}`, string(details["s1"]))
}
