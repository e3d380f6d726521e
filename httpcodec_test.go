package main

import (
	"strings"
	"testing"
)

func TestParseRequestLine(t *testing.T) {
	req, err := ParseRequestLine([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequestLine() error = %v", err)
	}
	if req.Method != "GET" || req.Path != "/index.html" || req.Version != "HTTP/1.1" {
		t.Fatalf("ParseRequestLine() = %+v, want GET /index.html HTTP/1.1", req)
	}
}

func TestParseRequestLine_Malformed(t *testing.T) {
	cases := []string{
		"GET /index.html\r\n\r\n",
		"GET\r\n\r\n",
		"not a request line at all\r\n\r\n",
	}
	for _, c := range cases {
		if _, err := ParseRequestLine([]byte(c)); err == nil {
			t.Fatalf("ParseRequestLine(%q) error = nil, want non-nil", c)
		}
	}
}

func TestParseRequestLine_NoCRLF(t *testing.T) {
	if _, err := ParseRequestLine([]byte("GET /x HTTP/1.1")); err == nil {
		t.Fatalf("ParseRequestLine() with no CRLF returned nil error")
	}
}

func TestHeaderValue(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n")

	if v, ok := HeaderValue(buf, "Host"); !ok || v != "example.com" {
		t.Fatalf("HeaderValue(Host) = (%q, %v), want (example.com, true)", v, ok)
	}
	if v, ok := HeaderValue(buf, "connection"); !ok || v != "close" {
		t.Fatalf("HeaderValue(connection) case-insensitive = (%q, %v), want (close, true)", v, ok)
	}
	if _, ok := HeaderValue(buf, "Range"); ok {
		t.Fatalf("HeaderValue(Range) ok = true, want false (absent)")
	}
}

func TestWantsKeepAlive(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		req  HttpRequest
		want bool
	}{
		{"http11 default", []byte("\r\n\r\n"), HttpRequest{Version: "HTTP/1.1"}, true},
		{"http10 default", []byte("\r\n\r\n"), HttpRequest{Version: "HTTP/1.0"}, false},
		{"http10 explicit keep-alive", []byte("Connection: keep-alive\r\n\r\n"), HttpRequest{Version: "HTTP/1.0"}, true},
		{"http11 explicit close", []byte("Connection: close\r\n\r\n"), HttpRequest{Version: "HTTP/1.1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WantsKeepAlive(tt.req, tt.buf); got != tt.want {
				t.Fatalf("WantsKeepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRangeHeader_Absent(t *testing.T) {
	rng, err := ParseRangeHeader([]byte("\r\n\r\n"), 100)
	if err != nil {
		t.Fatalf("ParseRangeHeader() error = %v, want nil", err)
	}
	if rng.Present {
		t.Fatalf("ParseRangeHeader() Present = true, want false")
	}
}

func TestParseRangeHeader_Closed(t *testing.T) {
	rng, err := ParseRangeHeader([]byte("Range: bytes=0-9\r\n\r\n"), 100)
	if err != nil {
		t.Fatalf("ParseRangeHeader() error = %v", err)
	}
	if !rng.Present || rng.Start != 0 || rng.End != 9 {
		t.Fatalf("ParseRangeHeader() = %+v, want Present Start=0 End=9", rng)
	}
}

func TestParseRangeHeader_OpenEnded(t *testing.T) {
	rng, err := ParseRangeHeader([]byte("Range: bytes=90-\r\n\r\n"), 100)
	if err != nil {
		t.Fatalf("ParseRangeHeader() error = %v", err)
	}
	if !rng.Present || rng.Start != 90 || rng.End != 99 {
		t.Fatalf("ParseRangeHeader() = %+v, want Start=90 End=99", rng)
	}
}

func TestParseRangeHeader_Suffix(t *testing.T) {
	rng, err := ParseRangeHeader([]byte("Range: bytes=-10\r\n\r\n"), 100)
	if err != nil {
		t.Fatalf("ParseRangeHeader() error = %v", err)
	}
	if !rng.Present || !rng.IsSuffix || rng.Start != 90 || rng.End != 99 {
		t.Fatalf("ParseRangeHeader() = %+v, want suffix Start=90 End=99", rng)
	}
}

func TestParseRangeHeader_ClampsEndToFileSize(t *testing.T) {
	rng, err := ParseRangeHeader([]byte("Range: bytes=50-9999\r\n\r\n"), 100)
	if err != nil {
		t.Fatalf("ParseRangeHeader() error = %v", err)
	}
	if rng.End != 99 {
		t.Fatalf("ParseRangeHeader() End = %d, want clamped to 99", rng.End)
	}
}

func TestParseRangeHeader_Invalid(t *testing.T) {
	cases := []string{
		"Range: bytes=10-5\r\n\r\n",     // start > end
		"Range: bytes=500-600\r\n\r\n",  // start past EOF
		"Range: items=0-9\r\n\r\n",      // wrong unit
		"Range: bytes=0-9,20-29\r\n\r\n", // multiple ranges
		"Range: bytes=-0\r\n\r\n",       // zero-length suffix
	}
	for _, c := range cases {
		if _, err := ParseRangeHeader([]byte(c), 100); err == nil {
			t.Fatalf("ParseRangeHeader(%q) error = nil, want non-nil (416)", c)
		}
	}
}

func TestResponseHeader_ContentRangeOnlyWhenSet(t *testing.T) {
	h := string(responseHeader(200, "text/plain", 5, true, ""))
	if strings.Contains(h, "Content-Range") {
		t.Fatalf("responseHeader(200) included Content-Range, want none")
	}

	h206 := string(responseHeader(206, "text/plain", 5, true, "bytes 0-4/10"))
	if !strings.Contains(h206, "Content-Range: bytes 0-4/10") {
		t.Fatalf("responseHeader(206) = %q, want Content-Range line", h206)
	}
}
