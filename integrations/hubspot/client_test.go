package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpsertContact(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody contactRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient("token-1", srv.URL)
	if err := c.UpsertContact(context.Background(), "pat@acme.example", "Pat", "Acme Carbon"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if gotPath != contactsPath {
		t.Errorf("path = %s, want %s", gotPath, contactsPath)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.Properties.Email != "pat@acme.example" || gotBody.Properties.Company != "Acme Carbon" {
		t.Errorf("properties = %+v", gotBody.Properties)
	}
}

func TestRecordFirstInvitation(t *testing.T) {
	var gotPath string
	var gotBody noteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient("token-1", srv.URL)
	if err := c.RecordFirstInvitation(context.Background(), "Alpha Fuels", "Beta Logistics"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if gotPath != notesPath {
		t.Errorf("path = %s, want %s", gotPath, notesPath)
	}
	if gotBody.Properties.Body == "" {
		t.Error("note body should not be empty")
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-token", srv.URL)
	if err := c.UpsertContact(context.Background(), "pat@acme.example", "", ""); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}
