package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	in := listCursor{Prefix: "loan_records/", PageSize: 20, Token: "abc/+="}

	raw := encodeCursor(in)
	assert.True(t, strings.HasPrefix(raw, cursorScheme))

	out, err := decodeCursor(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCursor_RejectsForeignURL(t *testing.T) {
	_, err := decodeCursor("https://graph.microsoft.com/v1.0/me/drive/root/children")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCursor_RejectsBadPageSize(t *testing.T) {
	_, err := decodeCursor(cursorScheme + "prefix=a%2F&top=many")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFirstPageURL(t *testing.T) {
	store := &S3BlobStore{}

	c, err := decodeCursor(store.FirstPageURL("loan_records", 20))
	require.NoError(t, err)
	assert.Equal(t, "loan_records/", c.Prefix)
	assert.Equal(t, 20, c.PageSize)
	assert.Empty(t, c.Token)

	root, err := decodeCursor(store.FirstPageURL("", 0))
	require.NoError(t, err)
	assert.Equal(t, "", root.Prefix)
	assert.Zero(t, root.PageSize)
}

func TestNewObjectKey(t *testing.T) {
	a := NewObjectKey("loan_records")
	b := NewObjectKey("/loan_records/")

	assert.True(t, strings.HasPrefix(a, "loan_records/"))
	assert.True(t, strings.HasSuffix(a, ".json"))
	assert.True(t, strings.HasPrefix(b, "loan_records/"))
	assert.NotEqual(t, a, b)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "loan.json", displayName("loan_records/x.json", map[string]string{"name": "loan.json"}))
	assert.Equal(t, "x.json", displayName("loan_records/x.json", nil))
}

func TestGetContent_Limits(t *testing.T) {
	size := 16
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, size))
	}))
	defer server.Close()
	store := &S3BlobStore{httpClient: server.Client()}

	content, err := store.GetContent(context.Background(), server.URL+"/obj")
	require.NoError(t, err)
	assert.Len(t, content, 16)

	size = domain.MaxContentSize + 1
	_, err = store.GetContent(context.Background(), server.URL+"/obj")
	assert.ErrorIs(t, err, domain.ErrContentTooLarge)
}
