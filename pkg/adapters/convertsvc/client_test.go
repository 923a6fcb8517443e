package convertsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestExtractReturnsGraphsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Wikitext != "some wikitext" {
			t.Errorf("wikitext = %q", req.Wikitext)
		}
		json.NewEncoder(w).Encode(extractResponse{Graphs: []string{"g1", "g2"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	graphs, err := c.Extract(context.Background(), "some wikitext")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(graphs) != 2 || graphs[0] != "g1" || graphs[1] != "g2" {
		t.Fatalf("graphs = %v", graphs)
	}
}

func TestConvertSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/convert" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(convertResponse{Converted: "{{Chart}}"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	result, err := c.Convert(context.Background(), "{{Graph}}")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if result.Rejected || result.Converted != "{{Chart}}" {
		t.Fatalf("result = %+v", result)
	}
}

func TestConvertRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(convertResponse{Rejected: true, Reason: "unsupported chart type"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	result, err := c.Convert(context.Background(), "{{Graph}}")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !result.Rejected || result.Reason != "unsupported chart type" {
		t.Fatalf("result = %+v", result)
	}
}

func TestServerErrorIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zap.NewNop())
	if _, err := c.Convert(context.Background(), "{{Graph}}"); err == nil {
		t.Fatalf("5xx response did not surface as an error")
	}
	if _, err := c.Extract(context.Background(), "text"); err == nil {
		t.Fatalf("5xx response did not surface as an error")
	}
}

func TestUnreachableServiceIsAnError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, zap.NewNop())
	if _, err := c.Convert(context.Background(), "{{Graph}}"); err == nil {
		t.Fatalf("transport failure did not surface as an error")
	}
}
