package httpclient

import (
	"net/http"
	"time"
)

func New(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewAuthenticated returns a client that sends the identity token as a
// bearer header on every request.
func NewAuthenticated(timeout time.Duration, token string) *http.Client {
	client := New(timeout)
	client.Transport = &authTransport{token: token, base: http.DefaultTransport}
	return client
}

type authTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(cloned)
}
