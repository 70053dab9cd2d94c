package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newFetcher(srv *httptest.Server) JSONFetcher {
	return func(ctx context.Context, rawURL string, dst any) error {
		resp, err := http.Get(rawURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(dst)
	}
}

func TestSearchDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"session":"abc","slug":"show","title":"Show"}]}`))
	}))
	defer srv.Close()

	results, err := Search(context.Background(), srv.URL, "show", newFetcher(srv))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Title != "Show" {
		t.Fatalf("results = %+v", results)
	}
}

func TestEpisodesPaginatesUntilLastPage(t *testing.T) {
	pages := map[string]string{
		"1": `{"data":[{"episode":1,"session":"s1"},{"episode":2,"session":"s2"}],"last_page":2}`,
		"2": `{"data":[{"episode":3,"session":"s3"}],"last_page":2}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pages[r.URL.Query().Get("page")]))
	}))
	defer srv.Close()

	c := New(srv.URL, "show", newFetcher(srv))
	episodes, err := c.Episodes(context.Background())
	if err != nil {
		t.Fatalf("Episodes() error = %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("len(episodes) = %d, want 3", len(episodes))
	}
	if episodes[2] != "s2" {
		t.Fatalf("episodes[2] = %q, want s2", episodes[2])
	}
}

func TestResolveOmitsUnknownEpisodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"episode":1,"session":"s1"}],"last_page":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "show", newFetcher(srv))
	resolved, err := c.Resolve(context.Background(), []int{1, 99})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("len(resolved) = %d, want 1", len(resolved))
	}
	want := srv.URL + "/play/show/s1"
	if resolved[1] != want {
		t.Fatalf("resolved[1] = %q, want %q", resolved[1], want)
	}
}
