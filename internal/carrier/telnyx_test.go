package carrier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTelnyx_ListNumbersPagesByMeta(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/phone_numbers", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer KEY1" {
			w.WriteHeader(401)
			return
		}
		page := r.URL.Query().Get("page[number]")
		body := telnyxPage[telnyxNumber]{}
		body.Meta.TotalPages = 2
		if page == "2" {
			body.Data = []telnyxNumber{{ID: "n2", PhoneNumber: "+15550000002"}}
			body.Meta.PageNumber = 2
		} else {
			body.Data = []telnyxNumber{{ID: "n1", PhoneNumber: "+15550000001"}}
			body.Meta.PageNumber = 1
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tx := NewTelnyx(2 * time.Second)
	tx.BaseURL = srv.URL

	nums, err := tx.ListNumbers(context.Background(), Credentials{APIKey: "KEY1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(nums) != 2 || nums[1].ID != "n2" {
		t.Fatalf("unexpected numbers: %+v", nums)
	}
}

func TestTelnyx_AttachPatchesConnectionID(t *testing.T) {
	var patched map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/phone_numbers/n1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(405)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &patched)
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tx := NewTelnyx(2 * time.Second)
	tx.BaseURL = srv.URL

	if err := tx.AttachNumber(context.Background(), Credentials{APIKey: "KEY1"}, "conn9", "n1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if patched["connection_id"] != "conn9" {
		t.Fatalf("expected connection_id patch, got %v", patched)
	}
}
