package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nikoskalogridis/mpdtouch/internal/mpdcontrol"
	"github.com/nikoskalogridis/mpdtouch/internal/nav"
)

func newControlServer(t *testing.T) (*frontend, chan nav.Event, *httptest.Server) {
	t.Helper()
	fe := newTestFrontend(&mockPlayer{}, nil)
	navs := make(chan nav.Event, 1)
	mux := http.NewServeMux()
	registerControlHandlers(mux, fe, navs, quietLogger())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return fe, navs, ts
}

func post(t *testing.T, url string) (int, controlResponse) {
	t.Helper()
	resp, err := http.Post(url, "", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, body
}

func TestControl_Swipe(t *testing.T) {
	fe, _, ts := newControlServer(t)

	code, body := post(t, ts.URL+"/control/swipe?direction=up")
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("unexpected response %d %+v", code, body)
	}
	select {
	case d := <-fe.swipes:
		if d != swipeUp {
			t.Fatalf("got swipe %v, want up", d)
		}
	default:
		t.Fatalf("swipe not queued")
	}

	code, body = post(t, ts.URL+"/control/swipe?direction=diagonal")
	if code != http.StatusBadRequest || body.Status != "error" {
		t.Fatalf("unexpected response %d %+v", code, body)
	}
}

func TestControl_Command(t *testing.T) {
	_, navs, ts := newControlServer(t)

	code, _ := post(t, ts.URL+"/control/command?name=activate")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	select {
	case ev := <-navs:
		if ev != nav.Control(nav.Activate) {
			t.Fatalf("got %v, want activate", ev)
		}
	default:
		t.Fatalf("command not queued")
	}

	// Queue holds one event; fill it and expect back-pressure.
	post(t, ts.URL+"/control/command?name=left")
	if code, _ := post(t, ts.URL+"/control/command?name=right"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on full queue, got %d", code)
	}

	if code, _ := post(t, ts.URL+"/control/command?name=q"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown command, got %d", code)
	}
}

func TestControl_MethodNotAllowed(t *testing.T) {
	_, _, ts := newControlServer(t)
	resp, err := http.Get(ts.URL + "/control/swipe?direction=up")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServeHTTP_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, ln, http.NewServeMux(), quietLogger()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serveHTTP returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, mpdcontrol.Snapshot{
		HasSong: true, URI: "a/b.flac", Title: "B", Artist: "A", Album: "Alb",
		State: mpdcontrol.StatePlaying, Volume: -1, PlaylistVersion: 3, PlaylistLength: 9,
	})
	want := "state:    playing\n" +
		"song:     A - B (Alb)\n" +
		"file:     a/b.flac\n" +
		"random:   off\n" +
		"volume:   n/a\n" +
		"playlist: version 3, 9 entries\n"
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}
