package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/spamprx/threadshell"
)

type apiHandler struct {
	scheduler *threadshell.Scheduler
}

func (h *apiHandler) register(mux *http.ServeMux) {
	mux.HandleFunc("/api/submit", h.handleSubmit)
	mux.HandleFunc("/api/script", h.handleScript)
	mux.HandleFunc("/api/jobs", h.handleJobs)
	mux.HandleFunc("/api/active", h.handleActive)
	mux.HandleFunc("/api/completed", h.handleCompleted)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/cores", h.handleCores)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/kill", h.handleKill)
	mux.HandleFunc("/api/suspend", h.handleSuspend)
	mux.HandleFunc("/api/resume", h.handleResume)
	mux.HandleFunc("/api/priority", h.handlePriority)
	mux.HandleFunc("/api/policy", h.handlePolicy)
	mux.HandleFunc("/api/maxconcurrent", h.handleMaxConcurrent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Print(err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": err.Error()})
}

func (h *apiHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Command  string `json:"command"`
		Priority string `json:"priority"`
		Deps     []int  `json:"deps"`
		Count    int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	priority := threadshell.PriorityMedium
	if req.Priority != "" {
		p, err := threadshell.ParsePriority(req.Priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		priority = p
	}
	if req.Count > 1 {
		jobs, err := h.scheduler.SubmitArray(req.Command, req.Count, priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, jobs)
		return
	}
	j, err := h.scheduler.SubmitWithDeps(req.Command, priority, req.Deps)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, j)
}

func (h *apiHandler) handleScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	j, err := h.scheduler.SubmitScript(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, j)
}

func (h *apiHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scheduler.Jobs())
}

func (h *apiHandler) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scheduler.ActiveJobs())
}

func (h *apiHandler) handleCompleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scheduler.CompletedJobs())
}

func (h *apiHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scheduler.Stats())
}

func (h *apiHandler) handleCores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scheduler.CoreUtilization())
}

func (h *apiHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"length": h.scheduler.QueueLen()})
}

// control decodes an {"id": n} request and applies op, answering 409
// when the job refused the transition.
func (h *apiHandler) control(w http.ResponseWriter, r *http.Request, op func(int) bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !op(req.ID) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *apiHandler) handleKill(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.scheduler.Kill)
}

func (h *apiHandler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.scheduler.Suspend)
}

func (h *apiHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.scheduler.Resume)
}

func (h *apiHandler) handlePriority(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID       int    `json:"id"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := threadshell.ParsePriority(req.Priority)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !h.scheduler.SetPriority(req.ID, p) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *apiHandler) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Policy string `json:"policy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := threadshell.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.scheduler.SetPolicy(p)
	writeJSON(w, map[string]bool{"ok": true})
}

func (h *apiHandler) handleMaxConcurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "post only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		N int `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.scheduler.SetMaxConcurrent(req.N)
	writeJSON(w, map[string]bool{"ok": true})
}
