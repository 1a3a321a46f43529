package main

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dexidp/openid1/fetcher"
)

// httpFetcher implements fetcher.Fetcher over net/http, POSTing key-value
// form bodies to a provider's direct endpoint.
type httpFetcher struct {
	client *http.Client
}

func newHTTPFetcher() *httpFetcher {
	return &httpFetcher{client: &http.Client{Timeout: 10 * time.Second}}
}

func (f *httpFetcher) Post(url string, body []byte) (*fetcher.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &fetcher.Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// instrumentedFetcher wraps a Fetcher to record openid1_associate_total for
// every associate round trip it observes; check_authentication round trips
// are counted through the verifier's results instead.
type instrumentedFetcher struct {
	fetcher.Fetcher
	counter *prometheus.CounterVec
}

func (f instrumentedFetcher) Post(url string, body []byte) (*fetcher.Response, error) {
	resp, err := f.Fetcher.Post(url, body)
	if !strings.Contains(string(body), "openid.mode:associate\n") {
		return resp, err
	}

	outcome := "failure"
	if err == nil && resp != nil && resp.StatusCode == 200 {
		outcome = "success"
	}
	f.counter.WithLabelValues(outcome).Inc()
	return resp, err
}
