package web

import (
	"encoding/json"
	"image"
	"image/png"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/logic/oscillation"
	"github.com/cjeanneret/SweepGo/internal/logic/runner"
)

// maxBodyBytes bounds request bodies of POST handlers.
const maxBodyBytes = 1 << 10

// minPressInterval rate-limits virtual presses from one stuck client. Fast
// re-presses of a held button are split into separate edges by the latch.
const minPressInterval = 50 * time.Millisecond

// State is the status document served by GET /state.
type State struct {
	Sweep         oscillation.Snapshot `json:"sweep"`
	Presses       runner.Counts        `json:"presses"`
	ExitClicks    int                  `json:"exit_clicks"`
	ExitThreshold int                  `json:"exit_threshold"`
	Claimed       bool                 `json:"claimed"`
	Escaped       bool                 `json:"escaped"`
	Button        string               `json:"button"`
	Screen        []string             `json:"screen"`
}

// StateFunc returns the current status.
type StateFunc func() State

// PressFunc presses a button on the virtual panel.
type PressFunc func(r button.Reading)

// ImageFunc renders the LCD.
type ImageFunc func() image.Image

// ButtonRequest is the body of POST /button.
type ButtonRequest struct {
	Button string `json:"button"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	State       StateFunc
	Press       PressFunc
	LCD         ImageFunc
	staticFS    fs.FS

	now       func() time.Time
	pressMu   sync.Mutex
	lastPress time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If press is nil, POST /button returns 503; if lcd is nil, GET /lcd.png returns 404.
func NewHandlers(broadcaster *StatusBroadcaster, state StateFunc, press PressFunc, lcd ImageFunc, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		State:       state,
		Press:       press,
		LCD:         lcd,
		staticFS:    staticFS,
		now:         time.Now,
	}
}

// HandleState returns the status document as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		http.Error(w, "state not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(h.State())
}

// HandleButton handles POST /button: {"button":"left"} presses Left.
func (h *Handlers) HandleButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	b, err := button.Parse(req.Button)
	if err != nil || b == button.None {
		http.Error(w, "button must be left, right, enter or exit", http.StatusBadRequest)
		return
	}

	if h.Press == nil {
		http.Error(w, "virtual buttons not configured", http.StatusServiceUnavailable)
		return
	}

	h.pressMu.Lock()
	now := h.now()
	if !h.lastPress.IsZero() && now.Sub(h.lastPress) < minPressInterval {
		h.pressMu.Unlock()
		http.Error(w, "too many presses", http.StatusTooManyRequests)
		return
	}
	h.lastPress = now
	h.pressMu.Unlock()

	h.Press(b)
	if h.Broadcaster != nil {
		h.Broadcaster.Broadcast("live", "Web press: "+b.String())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "pressed", "button": b.String()})
}

// HandleLCD serves the LCD as a PNG image.
func (h *Handlers) HandleLCD(w http.ResponseWriter, r *http.Request) {
	if h.LCD == nil {
		http.Error(w, "no lcd", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, h.LCD()); err != nil {
		http.Error(w, "encode lcd: "+err.Error(), http.StatusInternalServerError)
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
