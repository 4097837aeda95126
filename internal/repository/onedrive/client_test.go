package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dafibh/loansync/internal/auth"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens domain.Tokens
	err    error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tokens, f.err
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type driveFixture struct {
	server     *httptest.Server
	client     *Client
	session    *auth.Session
	refresher  *fakeRefresher
	authFailed int
}

func newDriveFixture(t *testing.T, tokens domain.Tokens, handler http.HandlerFunc) *driveFixture {
	t.Helper()
	f := &driveFixture{
		server:    httptest.NewServer(handler),
		session:   auth.NewSession(tokens, nil),
		refresher: &fakeRefresher{tokens: domain.Tokens{AccessToken: "fresh", RefreshToken: "fresh-refresh"}},
	}
	t.Cleanup(f.server.Close)

	f.client = NewClient(f.server.URL, f.session, f.refresher, Options{
		HTTPClient:   f.server.Client(),
		OnAuthFailed: func() { f.authFailed++ },
		Logger:       zerolog.Nop(),
	})
	return f
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "file-1", "name": "a.json"})
	})

	meta, err := f.client.GetMetadata(context.Background(), domain.ByID("file-1"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "file-1", meta.ID)
}

func TestClient_NoAccessToken(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{}, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})

	_, err := f.client.GetMetadata(context.Background(), domain.ByID("file-1"))
	assert.ErrorIs(t, err, domain.ErrNoAccessToken)
}

func TestClient_RefreshesAndRetriesOnce(t *testing.T) {
	var auths []string
	f := newDriveFixture(t, domain.Tokens{AccessToken: "stale", RefreshToken: "r1"}, func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer stale" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": map[string]string{"code": "InvalidAuthenticationToken"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": "file-1", "name": "a.json"})
	})

	meta, err := f.client.GetMetadata(context.Background(), domain.ByID("file-1"))
	require.NoError(t, err)
	assert.Equal(t, "file-1", meta.ID)
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, auths)
	assert.Equal(t, 1, f.refresher.Calls())
	assert.Equal(t, "fresh", f.session.AccessToken())
	assert.Equal(t, "fresh-refresh", f.session.RefreshToken())
	assert.Equal(t, 0, f.authFailed)
}

func TestClient_SecondUnauthorizedIsFinal(t *testing.T) {
	requests := 0
	f := newDriveFixture(t, domain.Tokens{AccessToken: "stale", RefreshToken: "r1"}, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := f.client.GetMetadata(context.Background(), domain.ByID("file-1"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, f.refresher.Calls())
	assert.Equal(t, 1, f.authFailed)
}

func TestClient_UnauthorizedWithoutRefreshToken(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "stale"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := f.client.ListChildren(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 0, f.refresher.Calls())
	assert.Equal(t, 1, f.authFailed)
}

func TestClient_RefreshFailure(t *testing.T) {
	requests := 0
	f := newDriveFixture(t, domain.Tokens{AccessToken: "stale", RefreshToken: "r1"}, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	})
	f.refresher.err = errors.New("invalid_grant")

	_, err := f.client.GetMetadata(context.Background(), domain.ByID("file-1"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, f.authFailed)
	assert.Equal(t, "stale", f.session.AccessToken())
}

func TestClient_NotFound(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": map[string]string{"code": "itemNotFound", "message": "gone"}})
	})

	_, err := f.client.GetMetadata(context.Background(), domain.ByID("missing"))
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestClient_RemoteErrorCarriesCode(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInsufficientStorage, map[string]interface{}{"error": map[string]string{"code": "quotaLimitReached", "message": "full"}})
	})

	_, err := f.client.PutContent(context.Background(), domain.ByID("file-1"), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsRemoteCode(err, "quotaLimitReached"))

	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInsufficientStorage, remote.StatusCode)
	assert.Equal(t, "full", remote.Message)
}

func TestClient_PutContentByPath(t *testing.T) {
	var gotPath, gotBody, gotType string
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "new-file", "name": "loan.json"})
	})

	meta, err := f.client.PutContent(context.Background(), domain.ByPath("folder-1", "loan.json"), []byte(`{"periods":12}`))
	require.NoError(t, err)
	assert.Equal(t, "/me/drive/items/folder-1:/loan.json:/content", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"periods":12}`, gotBody)
	assert.Equal(t, "new-file", meta.ID)
}

func TestClient_PutContentInvalidRef(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})

	_, err := f.client.PutContent(context.Background(), domain.ByPath("", "loan.json"), []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrItemRefInvalid)
}

func TestClient_GetContentSkipsAuthorization(t *testing.T) {
	var gotAuth string
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"principal":1000}`))
	})

	content, err := f.client.GetContent(context.Background(), f.server.URL+"/download/abc")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, `{"principal":1000}`, string(content))
}

func TestClient_GetContentRejectsOversizedFile(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, domain.MaxContentSize+1))
	})

	content, err := f.client.GetContent(context.Background(), f.server.URL+"/download/big")
	assert.ErrorIs(t, err, domain.ErrContentTooLarge)
	assert.Nil(t, content)
}

func TestClient_CreateFolder(t *testing.T) {
	var body map[string]interface{}
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/drive/root/children", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": "folder-1", "name": "loan_records", "folder": map[string]int{"childCount": 0}})
	})

	id, err := f.client.CreateFolder(context.Background(), "loan_records")
	require.NoError(t, err)
	assert.Equal(t, "folder-1", id)
	assert.Equal(t, "loan_records", body["name"])
	assert.Equal(t, "fail", body["@microsoft.graph.conflictBehavior"])
}

func TestClient_CreateFolderNameExists(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"error": map[string]string{"code": "nameAlreadyExists"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "file-x", "name": "loan_records"},
				{"id": "folder-9", "name": "loan_records", "folder": map[string]int{"childCount": 3}},
			},
		})
	})

	id, err := f.client.CreateFolder(context.Background(), "loan_records")
	require.NoError(t, err)
	assert.Equal(t, "folder-9", id)
}

func TestClient_ListPageFollowsNextLink(t *testing.T) {
	var (
		server *httptest.Server
		mu     sync.Mutex
		tops   []string
	)
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"value": []map[string]interface{}{{"id": "b", "name": "b.json"}},
			})
			return
		}
		mu.Lock()
		tops = append(tops, r.URL.Query().Get("$top"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"value":           []map[string]interface{}{{"id": "a", "name": "a.json"}},
			"@odata.nextLink": server.URL + "/me/drive/items/folder-1/children?page=2",
		})
	})
	server = f.server

	first, err := f.client.ListPage(context.Background(), f.client.FirstPageURL("folder-1", 20))
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "a", first.Items[0].ID)
	require.NotEmpty(t, first.NextPageURL)

	second, err := f.client.ListPage(context.Background(), first.NextPageURL)
	require.NoError(t, err)
	assert.Equal(t, "b", second.Items[0].ID)
	assert.Empty(t, second.NextPageURL)

	all, err := f.client.ListChildren(context.Background(), "folder-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// only the first page request carries the page size
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"20", ""}, tops)
}

func TestClient_ListPageRequiresURL(t *testing.T) {
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, nil)

	_, err := f.client.ListPage(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrPageURLRequired)

	_, err = f.client.ListPage(context.Background(), "https://attacker.example/collect")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_Rename(t *testing.T) {
	status := http.StatusOK
	f := newDriveFixture(t, domain.Tokens{AccessToken: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(status)
	})

	ok, err := f.client.Rename(context.Background(), "file-1", "renamed.json")
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusConflict
	ok, err = f.client.Rename(context.Background(), "file-1", "renamed.json")
	require.NoError(t, err)
	assert.False(t, ok)
}
