package e2e_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/qadhya/drivesync/internal/app"
	"github.com/qadhya/drivesync/internal/auth"
	"github.com/qadhya/drivesync/internal/config"
	"github.com/qadhya/drivesync/internal/mcpserver"
	"github.com/qadhya/drivesync/internal/models"
	"github.com/qadhya/drivesync/internal/remote"
	"github.com/qadhya/drivesync/internal/server"
)

const (
	tenantID   = "cabinet-1"
	opsKey     = "ds_e2e0123456789abcdef"
	folderMime = remote.FolderMimeType
)

var parentsQuery = regexp.MustCompile(`^'(.+)' in parents and trashed = false$`)

// driveFile is one node of the fake Drive tree.
type driveFile struct {
	ID       string
	Name     string
	Mime     string
	Parent   string
	Modified time.Time
}

// fakeDrive serves files.list and about.get over a mutable tree.
type fakeDrive struct {
	mu        sync.Mutex
	files     []driveFile
	aboutCode int
	failNext  map[string]int // folder id -> 5xx responses still to send
}

func (d *fakeDrive) set(f driveFile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.files {
		if d.files[i].ID == f.ID {
			d.files[i] = f
			return
		}
	}
	d.files = append(d.files, f)
}

func (d *fakeDrive) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/drive/v3/about", func(w http.ResponseWriter, _ *http.Request) {
		d.mu.Lock()
		code := d.aboutCode
		d.mu.Unlock()
		if code != 0 {
			writeJSON(t, w, code, map[string]any{"error": map[string]any{"code": code, "message": "rejected"}})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"user": map[string]any{"emailAddress": "cabinet@example.com"}})
	})

	mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		m := parentsQuery.FindStringSubmatch(r.URL.Query().Get("q"))
		if m == nil {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": "bad q"}})
			return
		}
		folder := m[1]

		d.mu.Lock()
		if d.failNext[folder] > 0 {
			d.failNext[folder]--
			d.mu.Unlock()
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"code": 503, "message": "backend error"}})
			return
		}
		var kids []driveFile
		for _, f := range d.files {
			if f.Parent == folder {
				kids = append(kids, f)
			}
		}
		d.mu.Unlock()

		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		if size <= 0 {
			size = 100
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		end := min(start+size, len(kids))

		out := make([]map[string]any, 0, end-start)
		for _, f := range kids[start:end] {
			item := map[string]any{
				"id":           f.ID,
				"name":         f.Name,
				"mimeType":     f.Mime,
				"parents":      []string{f.Parent},
				"createdTime":  f.Modified.Format(time.RFC3339Nano),
				"modifiedTime": f.Modified.Format(time.RFC3339Nano),
			}
			if f.Mime != folderMime {
				item["size"] = "4096"
				item["webViewLink"] = "https://drive.example/file/" + f.ID
			}
			out = append(out, item)
		}

		resp := map[string]any{"files": out}
		if end < len(kids) {
			resp["nextPageToken"] = strconv.Itoa(end)
		}
		writeJSON(t, w, http.StatusOK, resp)
	})

	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

var baseTime = time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)

// newFakeDrive builds the cabinet layout:
//
//	ClientA/Dossier 2025-003/contrat.pdf
//	[CIN AB123] Karim/pv.pdf              (client folder found by identity)
//	Documents non classés/scan.pdf
func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		failNext: map[string]int{},
		files: []driveFile{
			{ID: "folder-A", Name: "ClientA", Mime: folderMime, Parent: "root", Modified: baseTime},
			{ID: "folder-D3", Name: "Dossier 2025-003", Mime: folderMime, Parent: "folder-A", Modified: baseTime},
			{ID: "f-contract", Name: "contrat.pdf", Mime: "application/pdf", Parent: "folder-D3", Modified: baseTime},
			{ID: "folder-K", Name: "[CIN AB123] Karim", Mime: folderMime, Parent: "root", Modified: baseTime},
			{ID: "f-pv", Name: "pv.pdf", Mime: "application/pdf", Parent: "folder-K", Modified: baseTime},
			{ID: "inbox", Name: "Documents non classés", Mime: folderMime, Parent: "root", Modified: baseTime},
			{ID: "f-scan", Name: "scan.pdf", Mime: "application/pdf", Parent: "inbox", Modified: baseTime},
		},
	}
}

// harness holds the full e2e stack: a fake Drive, the app wired from a
// config, and the ops API served over HTTP.
type harness struct {
	Drive  *fakeDrive
	App    *app.App
	Config *config.Config
	URL    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	drive := newFakeDrive()
	driveSrv := httptest.NewServer(drive.handler(t))
	t.Cleanup(driveSrv.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		Environment:            "development",
		DatabaseDriver:         config.DriverSQLite,
		DatabaseURL:            filepath.Join(dir, "drivesync.db"),
		StatePath:              filepath.Join(dir, "state.db"),
		UnclassifiedFolderName: "Documents non classés",
		PageSize:               2,
		RunTimeout:             time.Minute,
		LeaseTTL:               time.Hour,
	}

	a, err := app.Open(ctx, cfg, logger,
		option.WithEndpoint(driveSrv.URL+"/drive/v3/"),
		option.WithHTTPClient(driveSrv.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	seed(t, a)

	hash, err := bcrypt.GenerateFromPassword([]byte(opsKey), bcrypt.MinCost)
	require.NoError(t, err)

	mux := server.NewMux(server.MuxConfig{
		Runner:   a.Engine,
		History:  a.Store,
		Keys:     auth.NewKeys([]config.APIKeyEntry{{UserID: "ops", Hash: string(hash)}}),
		Logger:   logger,
		Defaults: a.Defaults,
	})
	opsSrv := httptest.NewServer(mux)
	t.Cleanup(opsSrv.Close)

	return &harness{Drive: drive, App: a, Config: cfg, URL: opsSrv.URL}
}

func seed(t *testing.T, a *app.App) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, a.Store.UpsertClient(ctx, models.Client{ID: "A", TenantID: tenantID, DisplayName: "ClientA", RemoteFolderID: "folder-A"}))
	require.NoError(t, a.Store.UpsertClient(ctx, models.Client{ID: "K", TenantID: tenantID, DisplayName: "Karim", IdentityNumber: "AB123"}))
	require.NoError(t, a.Store.UpsertCase(ctx, models.Case{ID: "D3", TenantID: tenantID, ClientID: "A", CaseNumber: "2025-003", RemoteFolderID: "folder-D3"}))
	require.NoError(t, a.Store.UpsertStorageConfig(ctx, models.StorageConfig{
		TenantID: tenantID, Provider: models.ProviderGoogleDrive, RootFolderID: "root", Enabled: true,
	}))
	require.NoError(t, a.State.SetTenantToken(tenantID, &oauth2.Token{
		AccessToken: "e2e-access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	}))
}

// call sends an ops API request and returns the status and body.
func (h *harness) call(t *testing.T, method, path, key string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.URL+path, strings.NewReader(""))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

// mcpSession connects an in-memory MCP client to tools backed by the
// harness app.
func (h *harness) mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	srv := mcp.NewServer(&mcp.Implementation{Name: "drivesync-e2e", Version: "test"}, nil)
	mcpserver.RegisterTools(srv, h.App.Engine, h.App.Store, h.App.Defaults)

	t1, t2 := mcp.NewInMemoryTransports()
	_, err := srv.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })

	return session
}

func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}
