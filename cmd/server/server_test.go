package main

import (
	"fmt"
	"sync"
	"testing"

	"docsmith/internal/markdown"
)

// ========== Conversion slot claim ==========

func TestTryClaim_SecondCallerRejected(t *testing.T) {
	st := &ConvertStatus{Phase: "idle"}

	if !st.tryClaim() {
		t.Fatal("first claim must succeed")
	}
	if st.tryClaim() {
		t.Fatal("second claim must fail while a conversion is active")
	}

	st.reset()
	if !st.tryClaim() {
		t.Error("claim after reset must succeed")
	}
}

func TestTryClaim_ExactlyOneWinnerUnderContention(t *testing.T) {
	st := &ConvertStatus{Phase: "idle"}

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.tryClaim() {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	if got := len(wins); got != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", got)
	}
}

func TestTryClaim_ClearsPreviousRun(t *testing.T) {
	st := &ConvertStatus{
		Phase:       "done",
		JobID:       "old-job",
		FilesTotal:  3,
		FilesDone:   3,
		ZipName:     "converted_old-job.zip",
		FileResults: []FileResult{{Name: "a.pdf", Status: "ok"}},
	}

	if !st.tryClaim() {
		t.Fatal("claim over a finished run must succeed")
	}
	snap := st.snapshot()
	if snap.Phase != "processing" || snap.JobID != "" || snap.ZipName != "" ||
		snap.FilesTotal != 0 || snap.FilesDone != 0 || len(snap.FileResults) != 0 {
		t.Errorf("stale fields survived the claim: %+v", snap)
	}
}

// ========== Image numbering ==========

func TestNameReferencedImages_ContinuesPastFailedInlineDecode(t *testing.T) {
	// Three inline references where the middle decode failed: two files but
	// three consumed numbers. Server-provided images must continue at 4.
	inlineMD := fmt.Sprintf(
		"![a](data:image/png;base64,%s)\n![b](data:image/png;base64,!!!bad!!!)\n![c](data:image/png;base64,%s)",
		"aGVsbG8=", "d29ybGQ=")
	_, inline, _, count := markdown.ExtractInlineImages(inlineMD)

	if len(inline) != 2 || count != 3 {
		t.Fatalf("setup: len(inline)=%d count=%d, want 2 and 3", len(inline), count)
	}

	_, named := nameReferencedImages(map[string][]byte{"chart.png": []byte("x")}, count+1)
	if _, ok := named["image_004.png"]; !ok {
		t.Fatalf("server image not numbered after consumed count: %v", named)
	}
	for name := range named {
		if _, clash := inline[name]; clash {
			t.Errorf("filename collision between inline and server images: %s", name)
		}
	}
}

func TestNameReferencedImages_SortedAndExtensionPreserved(t *testing.T) {
	imageMap, named := nameReferencedImages(map[string][]byte{
		"b.jpeg": []byte("2"),
		"a.gif":  []byte("1"),
		"c":      []byte("3"),
	}, 1)

	want := map[string]string{
		"a.gif":  "images/image_001.gif",
		"b.jpeg": "images/image_002.jpg",
		"c":      "images/image_003.png",
	}
	for orig, path := range want {
		if imageMap[orig] != path {
			t.Errorf("imageMap[%s] = %s, want %s", orig, imageMap[orig], path)
		}
	}
	if len(named) != 3 {
		t.Errorf("expected 3 named images, got %d", len(named))
	}
}

// ========== Document names ==========

func TestUniqueDocName_AppendsSuffixOnClash(t *testing.T) {
	taken := []string{"report", "report_2"}
	if got := uniqueDocName("report", taken); got != "report_3" {
		t.Errorf("got %q, want report_3", got)
	}
	if got := uniqueDocName("fresh", taken); got != "fresh" {
		t.Errorf("got %q, want fresh", got)
	}
}
