package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Upstream de validação manual do gateway: um endpoint por rota padrão.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	for _, path := range []string{"/auth/login", "/auth/signup", "/auth/password-reset", "/search", "/messages", "/"} {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<h1>%s</h1><p>Requisição recebida com sucesso!</p>", r.URL.Path)
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "user", r.Header.Get("X-User-Id"))
		})
	}

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("servidor rodando", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("erro ao subir o servidor", "error", err)
		os.Exit(1)
	}
}
