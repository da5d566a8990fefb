package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	httpapi "github.com/louisbranch/bridgeassets/internal/services/assets/api/http"
	"github.com/louisbranch/bridgeassets/internal/services/assets/fixture"
	"github.com/louisbranch/bridgeassets/internal/services/assets/notify"
	"github.com/louisbranch/bridgeassets/internal/services/assets/render"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage/sqlite"
)

const (
	testSecret = "test-secret"
	wideSVG    = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20"><rect width="40" height="20" fill="#0044ff"/></svg>`
)

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected http address error")
	}
}

func TestNewServerRequiresAuthSecret(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewServer(Config{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(dir, "assets.db"),
		BlobDir:  filepath.Join(dir, "blobs"),
	})
	if err == nil {
		t.Fatal("expected auth secret error")
	}
}

func TestServerCreatesIconEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "assets.db")
	seedBridge(t, dbPath)

	srv, err := NewServer(Config{
		HTTPAddr:      "127.0.0.1:0",
		DBPath:        dbPath,
		BlobDir:       filepath.Join(dir, "blobs"),
		AuthSecret:    testSecret,
		CodecWorkers:  2,
		NotifyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	auth, err := httpapi.NewJWTAuthenticator(testSecret, "")
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	token, err := auth.IssueToken("user-1", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	resp := postIcon(t, ts.URL+"/v1/bridges/bridge-1/icons", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload render.Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Bridge.Icons) != 1 {
		t.Fatalf("icons = %d, want 1", len(payload.Bridge.Icons))
	}
	icon := payload.Bridge.Icons[0]
	if icon.Order != 0 || icon.WidthRatio != 2 {
		t.Fatalf("icon = %+v", icon)
	}
	if len(icon.Converted) != 1 || icon.Converted[0].Width != 40 || icon.Converted[0].Height != 20 {
		t.Fatalf("converted = %+v", icon.Converted)
	}
	if len(payload.SectionTypes) == 0 {
		t.Fatal("expected section types in response")
	}

	srv.Close()

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	events, err := store.ListBridgeEvents(context.Background(), "bridge-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != notify.EventTypeBridgeUpdated {
		t.Fatalf("events = %+v", events)
	}
}

func TestServerRejectsOtherOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "assets.db")
	seedBridge(t, dbPath)

	srv, err := NewServer(Config{
		HTTPAddr:   "127.0.0.1:0",
		DBPath:     dbPath,
		BlobDir:    filepath.Join(dir, "blobs"),
		AuthSecret: testSecret,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	auth, _ := httpapi.NewJWTAuthenticator(testSecret, "")
	token, err := auth.IssueToken("intruder", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/bridges/bridge-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get bridge: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srv, err := NewServer(Config{
		HTTPAddr:        "127.0.0.1:0",
		DBPath:          filepath.Join(dir, "assets.db"),
		BlobDir:         filepath.Join(dir, "blobs"),
		AuthSecret:      testSecret,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func seedBridge(t *testing.T, dbPath string) {
	t.Helper()
	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	file := fixture.File{Bridges: []fixture.Bridge{{ID: "bridge-1", UserID: "user-1", Name: "Harbor"}}}
	if err := fixture.Apply(context.Background(), store, file, time.Now()); err != nil {
		t.Fatalf("apply fixture: %v", err)
	}
}

func postIcon(t *testing.T, url, token string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="icon"; filename="logo.svg"`)
	header.Set("Content-Type", "image/svg+xml")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte(wideSVG)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post icon: %v", err)
	}
	return resp
}
