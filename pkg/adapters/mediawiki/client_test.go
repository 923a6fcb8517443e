package mediawiki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:     srv.URL,
		AccessToken: "token123",
		UserAgent:   "ChartPort/1 test",
		Timeout:     time.Second,
	}, zap.NewNop())
	return c, srv
}

func TestFetchWikitext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "query" || q.Get("pageids") != "42" {
			t.Errorf("unexpected query %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token123" {
			t.Errorf("authorization header = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "ChartPort/1 test" {
			t.Errorf("user agent = %q", got)
		}
		w.Write([]byte(`{"query":{"pages":[{"pageid":42,"title":"Example",
			"revisions":[{"revid":1234,"slots":{"main":{"content":"wikitext body"}}}]}]}}`))
	})

	rev, err := c.FetchWikitext(context.Background(), 42)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rev.Page.ID != 42 || rev.Page.Title != "Example" || rev.Page.Revision != 1234 {
		t.Fatalf("page = %+v", rev.Page)
	}
	if rev.Text != "wikitext body" {
		t.Fatalf("text = %q", rev.Text)
	}
}

func TestFetchWikitextMissingPage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"pages":[{"pageid":42,"missing":true}]}}`))
	})

	if _, err := c.FetchWikitext(context.Background(), 42); err == nil {
		t.Fatalf("missing page did not surface as an error")
	}
}

func TestSubmitEditOK(t *testing.T) {
	var sawEdit bool
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"query":{"tokens":{"csrftoken":"csrf+\\"}}}`))
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("action") != "edit" || r.Form.Get("pageid") != "42" {
			t.Errorf("unexpected form %v", r.Form)
		}
		if r.Form.Get("baserevid") != "1234" {
			t.Errorf("baserevid = %q", r.Form.Get("baserevid"))
		}
		if r.Form.Get("token") != "csrf+\\" {
			t.Errorf("token = %q", r.Form.Get("token"))
		}
		sawEdit = true
		w.Write([]byte(`{"edit":{"result":"Success","newrevid":1235}}`))
	})

	outcome, err := c.SubmitEdit(context.Background(), ports.EditRequest{
		PageID:           42,
		ExpectedRevision: 1234,
		NewText:          "new text",
		Summary:          "summary",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome != ports.EditOK {
		t.Fatalf("outcome = %v, want EditOK", outcome)
	}
	if !sawEdit {
		t.Fatalf("edit request never reached the server")
	}
}

func TestSubmitEditConflict(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"query":{"tokens":{"csrftoken":"csrf"}}}`))
			return
		}
		w.Write([]byte(`{"error":{"code":"editconflict","info":"Edit conflict detected"}}`))
	})

	outcome, err := c.SubmitEdit(context.Background(), ports.EditRequest{
		PageID:           42,
		ExpectedRevision: 1234,
		NewText:          "new text",
	})
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if outcome != ports.EditConflict {
		t.Fatalf("outcome = %v, want EditConflict", outcome)
	}
}

func TestSubmitEditAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"query":{"tokens":{"csrftoken":"csrf"}}}`))
			return
		}
		w.Write([]byte(`{"error":{"code":"protectedpage","info":"This page is protected"}}`))
	})

	if _, err := c.SubmitEdit(context.Background(), ports.EditRequest{PageID: 42}); err == nil {
		t.Fatalf("API error did not surface")
	}
}

func TestListCategoryMembersFollowsContinuation(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			if r.URL.Query().Get("cmcontinue") != "" {
				t.Errorf("first call sent a continuation token")
			}
			w.Write([]byte(`{"continue":{"cmcontinue":"page|next"},
				"query":{"categorymembers":[{"pageid":1,"title":"One"},{"pageid":2,"title":"Two"}]}}`))
			return
		}
		if got := r.URL.Query().Get("cmcontinue"); got != "page|next" {
			t.Errorf("continuation token = %q", got)
		}
		w.Write([]byte(`{"query":{"categorymembers":[{"pageid":3,"title":"Three"}]}}`))
	})

	pages, err := c.ListCategoryMembers(context.Background(), "Category:Graphs to port", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("listed %d pages, want 3", len(pages))
	}
	if pages[2].ID != 3 || pages[2].Title != "Three" {
		t.Fatalf("last page = %+v", pages[2])
	}
}

func TestListCategoryMembersHonorsLimit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"continue":{"cmcontinue":"more"},
			"query":{"categorymembers":[{"pageid":1,"title":"One"},{"pageid":2,"title":"Two"}]}}`))
	})

	pages, err := c.ListCategoryMembers(context.Background(), "Category:Graphs to port", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("limit ignored: %d pages", len(pages))
	}
}

func TestPageExists(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("titles")
		if title == "Data:Example.chart" {
			w.Write([]byte(`{"query":{"pages":[{"pageid":7,"title":"Data:Example.chart"}]}}`))
			return
		}
		w.Write([]byte(`{"query":{"pages":[{"title":"` + title + `","missing":true}]}}`))
	})

	exists, err := c.PageExists(context.Background(), "Data:Example.chart")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("existing page reported missing")
	}

	exists, err = c.PageExists(context.Background(), "Data:Other.chart")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("missing page reported present")
	}
}
