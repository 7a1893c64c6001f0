package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/threatlex/internal/models"
)

func TestClient_Search(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(Page{
			Content:       []models.CachedEntity{{ID: "m-1", Name: "Emotet"}},
			TotalPages:    4,
			TotalElements: 1800,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-token", testLogger())
	page, err := client.Search(context.Background(), QueryForType(models.TypeFinding), 2)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/search/finding", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, []string{"2"}, gotQuery["page"])
	assert.Equal(t, []string{"200"}, gotQuery["size"])
	assert.Equal(t, []string{"true"}, gotQuery["distinct"])

	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 1800, page.TotalElements)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Emotet", page.Content[0].Name)
}

func TestClient_Search_NoDistinctForGenericTypes(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(Page{TotalPages: 1})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", testLogger())
	_, err := client.Search(context.Background(), QueryForType(models.TypeMalware), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"500"}, gotQuery["size"])
	assert.NotContains(t, gotQuery, "distinct")
}

func TestClient_Search_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bad", testLogger())
	_, err := client.Search(context.Background(), QueryForType(models.TypeMalware), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
