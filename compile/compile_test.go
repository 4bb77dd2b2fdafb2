package compile

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompileSourceBinaryResponse(t *testing.T) {
	bytecode := []byte{0xDE, 0xAD, 0x01, 0x02, 0x03}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json request, got %s", ct)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Request body is not JSON: %v", err)
		}
		if req["source"] != "pulse(100)" {
			t.Errorf("Expected inline source, got %v", req)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(bytecode)
	}))
	defer server.Close()

	code, err := NewClient(server.URL).CompileSource(context.Background(), "pulse(100)")
	if err != nil {
		t.Fatalf("CompileSource failed: %v", err)
	}
	if !bytes.Equal(code, bytecode) {
		t.Errorf("Got bytecode %v, expected %v", code, bytecode)
	}
}

func TestCompileURLSendsSourceURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["sourceUrl"] != "https://example.com/pattern.js" {
			t.Errorf("Expected sourceUrl field, got %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"compiledCode": base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		})
	}))
	defer server.Close()

	code, err := NewClient(server.URL).CompileURL(context.Background(), "https://example.com/pattern.js")
	if err != nil {
		t.Fatalf("CompileURL failed: %v", err)
	}
	if !bytes.Equal(code, []byte{1, 2, 3}) {
		t.Errorf("Got bytecode %v, expected [1 2 3]", code)
	}
}

func TestCompileServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "syntax error on line 3"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CompileSource(context.Background(), "pulse(")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Expected ErrRemote for structured error, got %v", err)
	}
}

func TestCompileUnparseableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CompileSource(context.Background(), "pulse(100)")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Expected ErrRemote for unparseable response, got %v", err)
	}
}

func TestCompileHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CompileSource(context.Background(), "pulse(100)")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Expected ErrRemote for HTTP 500, got %v", err)
	}
}

func TestCompileInvalidBase64Code(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"compiledCode": "!!! not base64 !!!"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CompileSource(context.Background(), "pulse(100)")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("Expected ErrRemote for invalid base64 code, got %v", err)
	}
}
