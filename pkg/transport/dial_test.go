package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		rawurl string
		want   string
		err    bool
	}{
		{"http://example.com/", "example.com:80", false},
		{"https://example.com/", "example.com:443", false},
		{"http://example.com:8080/path", "example.com:8080", false},
		{"ftp://example.com/", "", true},
		{"http:///nohost", "", true},
	}
	for _, tt := range tests {
		u, parseErr := url.Parse(tt.rawurl)
		if parseErr != nil {
			t.Fatal(parseErr)
		}
		got, err := Address(u)
		if (err != nil) != tt.err {
			t.Errorf("Address(%q) err = %v", tt.rawurl, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Address(%q) = %q, want %q", tt.rawurl, got, tt.want)
		}
	}
}

func TestDialUnsupportedScheme(t *testing.T) {
	u, _ := url.Parse("gopher://example.com/")
	_, err := Dial(context.Background(), u, Options{})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err = %v, want ErrUnsupportedScheme", err)
	}
}

func TestDialReadDeadline(t *testing.T) {
	// a listener that accepts and then stays silent
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	u, _ := url.Parse("http://" + ln.Addr().String() + "/")
	conn, err := Dial(context.Background(), u, Options{
		ConnectTimeout: time.Second,
		ReadTimeout:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("read err = %v, want timeout", err)
	}
}
