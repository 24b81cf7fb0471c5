package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docsmith/internal/docling"
	"docsmith/internal/extractor"
	"docsmith/internal/job"
	"docsmith/internal/markdown"
	"docsmith/internal/pack"
	"docsmith/internal/refine"
)

// allowedExtensions are the upload types the service accepts. Formats beyond
// pdf/docx/md need a docling server to convert.
var allowedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".pptx":     true,
	".xlsx":     true,
	".html":     true,
	".htm":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// ========== Conversion Endpoints ==========

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// One conversion at a time: claim the status slot before any other work
	if !s.convertStatus.tryClaim() {
		jsonErr(w, "A conversion is already in progress", http.StatusConflict)
		return
	}

	// Parse multipart (max 200MB)
	if err := r.ParseMultipartForm(200 << 20); err != nil {
		s.convertStatus.reset()
		jsonErr(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		s.convertStatus.reset()
		jsonErr(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	j, err := s.jobs.Create()
	if err != nil {
		s.convertStatus.reset()
		jsonErr(w, "Failed to create job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	uploadsDir := s.jobs.UploadsDir(j.ID)
	var saved []string
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExtensions[ext] {
			continue
		}

		src, err := fh.Open()
		if err != nil {
			continue
		}

		name := filepath.Base(fh.Filename)
		dst, err := os.Create(filepath.Join(uploadsDir, name))
		if err != nil {
			src.Close()
			continue
		}
		_, _ = io.Copy(dst, src)
		src.Close()
		dst.Close()
		saved = append(saved, name)
	}

	if len(saved) == 0 {
		_ = s.jobs.Delete(j.ID)
		s.convertStatus.reset()
		jsonErr(w, "No supported files in upload", http.StatusBadRequest)
		return
	}

	j.Status = "processing"
	j.FileCount = len(saved)
	_ = s.jobs.Update(*j)

	// tryClaim already set the phase and cleared the rest
	s.convertStatus.mu.Lock()
	s.convertStatus.JobID = j.ID
	s.convertStatus.FilesTotal = len(saved)
	s.convertStatus.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.convertCancel = cancel
	s.mu.Unlock()

	go s.runConversion(ctx, j.ID, saved)

	jsonResp(w, map[string]string{"job_id": j.ID})
}

// runConversion drives the whole pipeline for one job: extract, relink
// images, normalize, refine, package, index, archive.
func (s *Server) runConversion(ctx context.Context, jobID string, files []string) {
	defer func() {
		s.mu.Lock()
		s.convertCancel = nil
		s.mu.Unlock()
	}()

	uploadsDir := s.jobs.UploadsDir(jobID)
	processedDir := s.jobs.ProcessedDir(jobID)
	refiner := s.refiner()

	var fileResults []FileResult
	var docNames []string
	docCount := 0

	for _, fname := range files {
		if ctx.Err() != nil {
			s.finishCancelled(jobID, fileResults)
			return
		}

		start := time.Now()
		log.Printf("Converting %s...", fname)

		title := strings.TrimSuffix(fname, filepath.Ext(fname))
		docName := uniqueDocName(title, docNames)

		md, images, warnings, err := s.convertFile(ctx, filepath.Join(uploadsDir, fname), title)
		if err != nil {
			if ctx.Err() != nil {
				s.finishCancelled(jobID, fileResults)
				return
			}
			log.Printf("Failed to convert %s after %v: %v", fname, time.Since(start), err)
			fileResults = append(fileResults, FileResult{Name: fname, Status: "failed", Error: err.Error()})
			s.advanceProgress(fileResults)
			continue
		}

		refined := false
		if refiner != nil {
			var ok bool
			md, ok = refine.RefineOrFallback(ctx, refiner, md)
			if !ok {
				md = refine.AnnotateFallback(md)
			}
			refined = ok
		}

		if err := pack.WriteDocument(processedDir, docName, md, images); err != nil {
			log.Printf("Failed to write %s: %v", docName, err)
			fileResults = append(fileResults, FileResult{Name: fname, Status: "failed", Error: err.Error()})
			s.advanceProgress(fileResults)
			continue
		}

		if err := s.index.Add(jobID, docName, md); err != nil {
			log.Printf("Warning: could not index %s: %v", docName, err)
		}

		log.Printf("Converted %s: %d images in %v", fname, len(images), time.Since(start))
		docNames = append(docNames, docName)
		docCount++
		fileResults = append(fileResults, FileResult{
			Name:     fname,
			Status:   "ok",
			Images:   len(images),
			Refined:  refined,
			Warnings: warnings,
		})
		s.advanceProgress(fileResults)
	}

	if docCount == 0 {
		s.finishError(jobID, fileResults, "No documents could be converted. Check the per-file errors and the docling server configuration.")
		return
	}

	// Packaging phase
	s.convertStatus.mu.Lock()
	s.convertStatus.Phase = "packaging"
	s.convertStatus.mu.Unlock()

	if err := pack.WriteIndex(processedDir, docNames); err != nil {
		s.finishError(jobID, fileResults, fmt.Sprintf("Failed to write index: %v", err))
		return
	}

	zipName := "converted_" + jobID + ".zip"
	if err := pack.CreateArchive(processedDir, filepath.Join(s.outputDir, zipName)); err != nil {
		s.finishError(jobID, fileResults, fmt.Sprintf("Failed to create archive: %v", err))
		return
	}

	s.convertStatus.mu.Lock()
	s.convertStatus.Phase = "done"
	s.convertStatus.ZipName = zipName
	s.convertStatus.FileResults = fileResults
	s.convertStatus.mu.Unlock()

	if j, err := s.jobs.Get(jobID); err == nil {
		j.Status = "done"
		j.DocCount = docCount
		j.ZipName = zipName
		_ = s.jobs.Update(*j)
	}

	log.Printf("Conversion complete for job %s: %d/%d documents -> %s", jobID, docCount, len(files), zipName)
}

// convertFile turns one uploaded file into normalized markdown plus its
// image files. Extraction goes through the docling server when one is
// configured, otherwise through the local extractors.
func (s *Server) convertFile(ctx context.Context, filePath, title string) (string, map[string][]byte, []string, error) {
	s.mu.RLock()
	doclingURL := s.doclingURL
	s.mu.RUnlock()

	ext := strings.ToLower(filepath.Ext(filePath))
	images := make(map[string][]byte)
	var md string
	var warnings []string

	if doclingURL != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", nil, nil, err
		}
		res, err := docling.NewClient(doclingURL).Convert(ctx, filepath.Base(filePath), content)
		if err != nil {
			return "", nil, nil, err
		}

		stripped, inline, warns, inlineCount := markdown.ExtractInlineImages(res.Markdown)
		md = stripped
		warnings = warns
		for name, data := range inline {
			images[name] = data
		}
		if len(res.Images) > 0 {
			// Continue from the consumed count, not len(inline): a failed
			// inline decode owns its number without owning a file.
			imageMap, named := nameReferencedImages(res.Images, inlineCount+1)
			md = markdown.Relink(md, imageMap)
			for name, data := range named {
				images[name] = data
			}
		}
	} else {
		var err error
		switch ext {
		case ".pdf":
			md, err = extractor.ExtractPDF(filePath)
		case ".docx":
			md, err = extractor.ExtractDOCX(filePath)
		case ".md", ".markdown", ".txt":
			var data []byte
			data, err = os.ReadFile(filePath)
			if err == nil {
				stripped, inline, warns, _ := markdown.ExtractInlineImages(string(data))
				md = stripped
				warnings = warns
				for name, img := range inline {
					images[name] = img
				}
			}
		default:
			err = fmt.Errorf("%s files require a docling server (set DOCLING_SERVER_URL)", ext)
		}
		if err != nil {
			return "", nil, nil, err
		}
	}

	return markdown.Normalize(md, title), images, warnings, nil
}

// nameReferencedImages assigns sequential image_NNN names to the images a
// docling server returned alongside the markdown, preserving the original
// extension. Returns the reference-rewrite map and the renamed image bytes.
func nameReferencedImages(src map[string][]byte, startAt int) (map[string]string, map[string][]byte) {
	originals := make([]string, 0, len(src))
	for name := range src {
		originals = append(originals, name)
	}
	sort.Strings(originals)

	imageMap := make(map[string]string, len(src))
	named := make(map[string][]byte, len(src))
	counter := startAt
	for _, orig := range originals {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(orig)), ".")
		if ext == "" {
			ext = "png"
		}
		if ext == "jpeg" {
			ext = "jpg"
		}
		newName := fmt.Sprintf("image_%03d.%s", counter, ext)
		counter++
		imageMap[orig] = "images/" + newName
		named[newName] = src[orig]
	}
	return imageMap, named
}

// uniqueDocName avoids directory collisions when two uploads share a stem
// (e.g. report.pdf and report.docx).
func uniqueDocName(stem string, taken []string) string {
	name := stem
	for n := 2; ; n++ {
		clash := false
		for _, t := range taken {
			if t == name {
				clash = true
				break
			}
		}
		if !clash {
			return name
		}
		name = fmt.Sprintf("%s_%d", stem, n)
	}
}

func (s *Server) advanceProgress(fileResults []FileResult) {
	s.convertStatus.mu.Lock()
	s.convertStatus.FilesDone++
	s.convertStatus.FileResults = fileResults
	s.convertStatus.mu.Unlock()
}

func (s *Server) finishError(jobID string, fileResults []FileResult, msg string) {
	s.convertStatus.mu.Lock()
	s.convertStatus.Phase = "error"
	s.convertStatus.Error = msg
	s.convertStatus.FileResults = fileResults
	s.convertStatus.mu.Unlock()

	if j, err := s.jobs.Get(jobID); err == nil {
		j.Status = "error"
		j.Error = msg
		_ = s.jobs.Update(*j)
	}
}

func (s *Server) finishCancelled(jobID string, fileResults []FileResult) {
	log.Printf("Conversion cancelled for job %s", jobID)
	s.convertStatus.mu.Lock()
	s.convertStatus.Phase = "cancelled"
	s.convertStatus.Error = "Conversion was cancelled"
	s.convertStatus.FileResults = fileResults
	s.convertStatus.mu.Unlock()

	if j, err := s.jobs.Get(jobID); err == nil {
		j.Status = "error"
		j.Error = "conversion cancelled"
		_ = s.jobs.Update(*j)
	}
}

// ========== Status / Cancel / Download ==========

func (s *Server) handleConvertStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.convertStatus.snapshot()
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" || jobID == snap.JobID {
		jsonResp(w, snap)
		return
	}

	// Not the active conversion: answer from the job record.
	j, err := s.jobs.Get(jobID)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonResp(w, statusForJob(j))
}

// statusForJob reconstructs a status snapshot for a job that is not the
// active conversion (per-file details are not persisted, only totals).
func statusForJob(j *job.Job) ConvertStatus {
	if j.Status == "done" {
		return ConvertStatus{JobID: j.ID, Phase: "done", FilesTotal: j.FileCount, FilesDone: j.FileCount, ZipName: j.ZipName}
	}
	return ConvertStatus{JobID: j.ID, Phase: j.Status, FilesTotal: j.FileCount, Error: j.Error}
}

func (s *Server) handleCancelConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	cancel := s.convertCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		log.Printf("Conversion cancel requested by user")
	}

	jsonResp(w, map[string]string{"status": "cancelling"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := filepath.Base(strings.TrimPrefix(r.URL.Path, "/api/download/"))
	if !strings.HasPrefix(name, "converted_") || !strings.HasSuffix(name, ".zip") {
		jsonErr(w, "invalid archive name", http.StatusBadRequest)
		return
	}

	path := filepath.Join(s.outputDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		jsonErr(w, "archive not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeFile(w, r, path)
}

// ========== Job Endpoints ==========

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonResp(w, s.jobs.List())
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		jsonErr(w, "job_id is required", http.StatusBadRequest)
		return
	}

	j, err := s.jobs.Get(req.JobID)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusNotFound)
		return
	}

	// Deindex the job's documents before the dirs disappear
	if entries, err := os.ReadDir(s.jobs.ProcessedDir(j.ID)); err == nil {
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		s.index.Remove(j.ID, names)
	}

	if j.ZipName != "" {
		_ = os.Remove(filepath.Join(s.outputDir, j.ZipName))
	}

	if err := s.jobs.Delete(j.ID); err != nil {
		jsonErr(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResp(w, map[string]string{"status": "deleted"})
}
