package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerTransport(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		preset   string
		wantAuth string
	}{
		{"attaches token", "abc123", "", "Bearer abc123"},
		{"no token", "", "", ""},
		{"keeps explicit header", "abc123", "Bearer override", "Bearer override"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client := &http.Client{Transport: &BearerTransport{
				Source: TokenFunc(func() string { return tt.token }),
			}}

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			if tt.preset != "" {
				req.Header.Set("Authorization", tt.preset)
			}
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			resp.Body.Close()

			if gotAuth != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", gotAuth, tt.wantAuth)
			}
			if tt.preset == "" && req.Header.Get("Authorization") != "" {
				t.Error("caller's request was modified")
			}
		})
	}
}

func TestBearerTransport_ReadsTokenPerRequest(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
	}))
	defer server.Close()

	token := "first"
	client := &http.Client{Transport: &BearerTransport{Source: TokenFunc(func() string { return token })}}

	for _, next := range []string{"second", ""} {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		resp.Body.Close()
		token = next
	}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	want := []string{"Bearer first", "Bearer second", ""}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, seen[i], want[i])
		}
	}
}

type idleCloser struct {
	http.RoundTripper
	closed int
}

func (c *idleCloser) CloseIdleConnections() { c.closed++ }

func TestBearerTransport_CloseIdleConnections(t *testing.T) {
	base := &idleCloser{RoundTripper: http.DefaultTransport}
	client := &http.Client{Transport: &BearerTransport{Base: base}}

	client.CloseIdleConnections()

	if base.closed != 1 {
		t.Errorf("base CloseIdleConnections calls = %d, want 1", base.closed)
	}
}
