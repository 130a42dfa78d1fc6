// Package observability holds opt-in debugging surfaces mounted next to the
// diagnostics endpoints.
package observability

import (
	"net/http"
	"net/http/pprof"
)

// Config captures opt-in observability toggles.
type Config struct {
	EnablePprof bool
}

// Wrap returns next unchanged unless profiling is enabled, in which case the
// runtime profiles are served under /debug/pprof/ and everything else falls
// through to next.
func Wrap(next http.Handler, cfg Config) http.Handler {
	if !cfg.EnablePprof {
		return next
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/", next)
	return mux
}
