package common_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guarzo/storefront/common"
)

func TestNewHttpClient(t *testing.T) {
	client := common.NewHttpClient("MyUserAgent", nil, 0)
	if client == nil {
		t.Fatal("expected non-nil HttpClient")
	}
}

func TestHttpClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestUserAgent" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "wrong user-agent")
			return
		}
		fmt.Fprint(w, "hello world")
	}))
	defer ts.Close()

	hc := common.NewHttpClient("TestUserAgent", &http.Client{}, time.Second)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "hello world" {
		t.Errorf("unexpected response: %d %s", resp.StatusCode, string(body))
	}
}

func TestHttpClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	hc := common.NewHttpClient("UA", &http.Client{}, 50*time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)

	start := time.Now()
	resp, err := hc.Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected timeout error, got none")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not enforced, call took %v", elapsed)
	}
}
