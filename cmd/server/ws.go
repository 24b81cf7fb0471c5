package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST API is already wide open via CORS; same policy here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleConvertWS pushes conversion status snapshots over a websocket until
// the conversion reaches a terminal phase. A poll-free alternative to
// GET /api/convert/status. An explicit job_id that is not the active
// conversion gets the stored job record once, then the connection closes.
func (s *Server) handleConvertWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if jobID := r.URL.Query().Get("job_id"); jobID != "" && jobID != s.convertStatus.snapshot().JobID {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		j, err := s.jobs.Get(jobID)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		_ = conn.WriteJSON(statusForJob(j))
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last ConvertStatus
	first := true
	for {
		snap := s.convertStatus.snapshot()

		// Only send when something changed (FileResults length is a good
		// enough proxy alongside the scalar fields).
		changed := first ||
			snap.Phase != last.Phase ||
			snap.FilesDone != last.FilesDone ||
			snap.ZipName != last.ZipName ||
			len(snap.FileResults) != len(last.FileResults)
		if changed {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			last = snap
			first = false
		}

		if terminal(snap.Phase) {
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
