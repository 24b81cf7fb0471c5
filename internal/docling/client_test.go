package docling

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ========== parseConvertResponse ==========

func TestParseConvertResponse_OfficialShape(t *testing.T) {
	body := `{"document": {"md_content": "# Title\n\nBody"}}`
	got, err := parseConvertResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Markdown != "# Title\n\nBody" {
		t.Errorf("markdown = %q", got.Markdown)
	}
	if len(got.Images) != 0 {
		t.Errorf("expected no separate images, got %d", len(got.Images))
	}
}

func TestParseConvertResponse_LegacyShapeWithImages(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("PNGBYTES"))
	body := `{"markdown": "text", "images": {"pic_0.png": "` + enc + `"}}`
	got, err := parseConvertResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Markdown != "text" {
		t.Errorf("markdown = %q", got.Markdown)
	}
	if string(got.Images["pic_0.png"]) != "PNGBYTES" {
		t.Errorf("image bytes = %q", got.Images["pic_0.png"])
	}
}

func TestParseConvertResponse_NestedMarkdownFallback(t *testing.T) {
	body := `{"document": {"markdown": "nested"}}`
	got, err := parseConvertResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Markdown != "nested" {
		t.Errorf("markdown = %q", got.Markdown)
	}
}

func TestParseConvertResponse_BadImageSkipped(t *testing.T) {
	body := `{"markdown": "text", "images": {"bad.png": "!!!"}}`
	got, err := parseConvertResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Images) != 0 {
		t.Errorf("undecodable image should be skipped, got %d images", len(got.Images))
	}
}

func TestParseConvertResponse_InvalidJSON(t *testing.T) {
	if _, err := parseConvertResponse([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

// ========== Convert ==========

func TestConvert_EmptyMarkdownIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"document": {"md_content": "  "}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Convert(context.Background(), "doc.pdf", []byte("pdf")); err == nil {
		t.Error("expected error when server returns empty markdown")
	}
}

func TestConvert_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Convert(context.Background(), "doc.pdf", []byte("pdf")); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestConvert_SendsMultipartWithOptions(t *testing.T) {
	var gotFilename string
	var gotOCR string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("multipart parse: %v", err)
		}
		if files := r.MultipartForm.File["files"]; len(files) == 1 {
			gotFilename = files[0].Filename
		}
		gotOCR = r.FormValue("do_ocr")
		w.Write([]byte(`{"document": {"md_content": "# ok"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.Convert(context.Background(), "report.pdf", []byte("pdfbytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Markdown != "# ok" {
		t.Errorf("markdown = %q", res.Markdown)
	}
	if gotFilename != "report.pdf" {
		t.Errorf("uploaded filename = %q", gotFilename)
	}
	if gotOCR != "true" {
		t.Errorf("do_ocr = %q, want true", gotOCR)
	}
}

// ========== Probe ==========

func TestProbe_DetectsBanner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ui" {
			w.Write([]byte("<html>Docling Serve</html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if !NewClient(srv.URL).Probe(context.Background()) {
		t.Error("expected probe to succeed")
	}
}

func TestProbe_Offline(t *testing.T) {
	c := NewClient("http://127.0.0.1:1") // nothing listens here
	if c.Probe(context.Background()) {
		t.Error("expected probe to fail for unreachable server")
	}
}
