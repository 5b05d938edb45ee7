// Package buildsvc is the HTTP client for the remote configuration-build
// service: login, spec submission, build polling, artifact download.
package buildsvc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"truckbuild/internal/auth"
)

// Build states reported by the service.
const (
	BuildPending = "pending"
	BuildReady   = "ready"
	BuildFailed  = "failed"
)

// BuildStatus is one poll result.
type BuildStatus struct {
	State     string `json:"state"`
	ResultURL string `json:"result_url,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BuildItem is one configuration request inside a submission. GG rows are
// resolved against the single-spec cache before submission; SpecDetail holds
// that resolved entry.
type BuildItem struct {
	SpecID          string          `json:"spec_id"`
	ConfigName      string          `json:"config_name"`
	EffectivityWeek string          `json:"effectivity_week"`
	ChangeVariants  []string        `json:"change_variants,omitempty"`
	GG              bool            `json:"gg"`
	SpecDetail      json.RawMessage `json:"spec_detail,omitempty"`
}

// SubmitRequest is the payload of one build submission.
type SubmitRequest struct {
	Items     []BuildItem `json:"items"`
	VMSFilter []string    `json:"vms_filter,omitempty"`
}

type Options struct {
	BaseURL       string
	AuthURL       string
	SkipTLSVerify bool
	CABundle      string
	Timeout       time.Duration
	RequestRate   float64
	RequestBurst  int
}

// Client talks to the build service. All outbound calls go through a shared
// rate limiter so concurrent jobs cannot flood the remote, poll loops
// included.
type Client struct {
	baseURL string
	authURL string
	http    *http.Client
	limiter *rate.Limiter
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("build service base URL is required")
	}
	authURL := strings.TrimSpace(opts.AuthURL)
	if authURL == "" {
		return nil, errors.New("auth endpoint URL is required")
	}

	tlsCfg, err := tlsConfig(opts.SkipTLSVerify, opts.CABundle)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqRate := opts.RequestRate
	if reqRate <= 0 {
		reqRate = 10.0
	}
	burst := opts.RequestBurst
	if burst < 1 {
		burst = 5
	}

	return &Client{
		baseURL: base,
		authURL: authURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		limiter: rate.NewLimiter(rate.Limit(reqRate), burst),
	}, nil
}

func tlsConfig(skipVerify bool, caBundle string) (*tls.Config, error) {
	if skipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	if strings.TrimSpace(caBundle) == "" {
		return nil, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	pem, err := os.ReadFile(caBundle)
	if err != nil {
		return nil, errors.Wrapf(err, "read CA bundle %s", caBundle)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Newf("no certificates found in CA bundle %s", caBundle)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// AcquireToken logs in against the auth endpoint. Implements auth.Endpoint.
func (c *Client) AcquireToken(ctx context.Context) (auth.Credential, error) {
	resp, body, err := c.do(ctx, "", http.MethodPost, c.authURL, nil)
	if err != nil {
		return auth.Credential{}, errors.Wrap(err, "acquire token")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return auth.Credential{}, errors.Wrap(classifyStatus(resp.StatusCode), "acquire token")
	}

	var payload struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return auth.Credential{}, errors.Wrap(err, "parse token response")
	}
	token := payload.Token
	if token == "" {
		token = payload.AccessToken
	}
	if token == "" {
		return auth.Credential{}, errors.New("auth endpoint returned no token")
	}
	return auth.Credential{Token: token, IssuedAt: time.Now()}, nil
}

// FetchSpecDetails resolves the single-spec cache entries for the given spec
// ids before submission.
func (c *Client) FetchSpecDetails(ctx context.Context, token string, specIDs []string) (map[string]json.RawMessage, error) {
	q := url.Values{}
	for _, id := range specIDs {
		q.Add("id", id)
	}
	resp, body, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/api/singlespec?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch spec details")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrap(classifyStatus(resp.StatusCode), "fetch spec details")
	}

	details := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, errors.Wrap(err, "parse spec details")
	}
	return details, nil
}

// Submit posts a build request and returns the submission handle. Safe to
// retry on transient failures; the worst case is duplicate remote-side work.
func (c *Client) Submit(ctx context.Context, token string, req SubmitRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "encode submission")
	}
	resp, body, err := c.do(ctx, token, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "submit spec")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Wrap(classifyStatus(resp.StatusCode), "submit spec")
	}
	handle, err := extractHandle(resp, body)
	if err != nil {
		return "", errors.Wrap(err, "submit spec")
	}
	return handle, nil
}

// PollBuild reports the current state of a submitted build.
func (c *Client) PollBuild(ctx context.Context, token, handle string) (BuildStatus, error) {
	resp, body, err := c.do(ctx, token, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(handle), nil)
	if err != nil {
		return BuildStatus{}, errors.Wrap(err, "poll build")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return BuildStatus{}, errors.Wrap(classifyStatus(resp.StatusCode), "poll build")
	}

	var status BuildStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return BuildStatus{}, errors.Wrap(err, "parse build status")
	}
	switch status.State {
	case BuildPending, BuildReady, BuildFailed:
		return status, nil
	default:
		return BuildStatus{}, errors.Newf("unknown build state %q", status.State)
	}
}

// Download fetches the finished artifact. resultURL may be absolute or
// service-relative.
func (c *Client) Download(ctx context.Context, token, resultURL string) ([]byte, error) {
	target := resultURL
	if strings.HasPrefix(target, "/") {
		target = c.baseURL + target
	}
	resp, body, err := c.do(ctx, token, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "download artifact")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrap(classifyStatus(resp.StatusCode), "download artifact")
	}
	if len(body) == 0 {
		return nil, errors.Wrap(ErrTransient, "empty artifact body")
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, token, method, target string, body io.Reader) (*http.Response, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "build request %s %s", method, target)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, classifyTransport(err)
	}
	return resp, data, nil
}

// Submission handles are 13-20 digit ids. The service reports them in the
// Location header, in a JSON id field, or loose in the response body, with
// that precedence.
var handleRe = regexp.MustCompile(`(^|[^0-9])([0-9]{13,20})([^0-9]|$)`)

var handleJSONKeys = []string{"jobId", "job_id", "id", "resultId", "result_id"}

func extractHandle(resp *http.Response, body []byte) (string, error) {
	if loc := resp.Header.Get("Location"); loc != "" {
		if m := handleRe.FindStringSubmatch(loc); m != nil {
			return m[2], nil
		}
	}

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "json") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err == nil {
			for _, key := range handleJSONKeys {
				raw, ok := fields[key]
				if !ok {
					continue
				}
				var asString string
				if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
					return asString, nil
				}
				var asNumber json.Number
				if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber.String() != "" {
					return asNumber.String(), nil
				}
			}
		}
	}

	if m := handleRe.FindStringSubmatch(string(body)); m != nil {
		return m[2], nil
	}
	return "", errors.New("no submission handle in response")
}
