// The flaky binary is a local probe target for manual testing: its root
// endpoint flips between healthy and failing on a fixed period, so a
// monitor pointed at it exercises the full incident lifecycle.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	addr   = flag.String("addr", ":9090", "listen address")
	period = flag.Duration("period", 2*time.Minute, "full up/down cycle length; healthy for the first half")
	start  = time.Now()
)

func main() {
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleFlap)
	mux.HandleFunc("/up", handleUp)
	mux.HandleFunc("/down", handleDown)
	mux.HandleFunc("/status/", handleStatus)
	mux.HandleFunc("/slow", handleSlow)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[FLAKY] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})

	log.Printf("flaky target on %s, cycle %s (healthy first half)", *addr, *period)
	log.Fatal(http.ListenAndServe(*addr, handler))
}

// handleFlap is healthy during the first half of every cycle and failing
// during the second.
func handleFlap(w http.ResponseWriter, _ *http.Request) {
	elapsed := time.Since(start) % *period
	if elapsed < *period/2 {
		fmt.Fprintln(w, "ok")
		return
	}
	http.Error(w, "simulated outage", http.StatusServiceUnavailable)
}

func handleUp(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintln(w, "ok")
}

func handleDown(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "permanently down", http.StatusInternalServerError)
}

// handleStatus answers with the code embedded in the path, e.g. /status/429.
func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "bad status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "status %d\n", code)
}

// handleSlow sleeps for delay_ms before answering, for timeout testing.
func handleSlow(w http.ResponseWriter, r *http.Request) {
	delay := 5 * time.Second
	if raw := r.URL.Query().Get("delay_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			http.Error(w, "bad delay_ms", http.StatusBadRequest)
			return
		}
		delay = time.Duration(ms) * time.Millisecond
	}
	select {
	case <-time.After(delay):
		fmt.Fprintln(w, "ok, eventually")
	case <-r.Context().Done():
	}
}
