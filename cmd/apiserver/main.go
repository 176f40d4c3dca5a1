package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studychat/chat-server/internal/account"
	"github.com/studychat/chat-server/internal/catalog"
	"github.com/studychat/chat-server/internal/database"
	"github.com/studychat/chat-server/internal/metrics"
	"github.com/studychat/chat-server/internal/ratelimit"
)

// apiServer bundles the stores the HTTP handlers need.
type apiServer struct {
	accounts *account.Store
	tokens   *account.TokenStore
	rooms    *catalog.Store
	limiter  *ratelimit.Limiter
}

func main() {
	listenAddr := os.Getenv("API_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Fatal("REDIS_ADDR is required")
	}

	db, err := database.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	api := &apiServer{
		accounts: account.NewStore(db),
		tokens:   account.NewTokenStore(rdb),
		rooms:    catalog.NewStore(db),
		limiter:  ratelimit.NewLimiter(rdb),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", api.handleRegister)
	mux.HandleFunc("/api/login", api.handleLogin)
	mux.HandleFunc("/api/rooms", api.handleRooms)
	mux.HandleFunc("/api/subjects", api.handleSubjects)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "OK",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	server := &http.Server{
		Addr:         listenAddr,
		Handler:      withCORS(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("Study Chat API server starting")
	log.Printf("  listen_addr: %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("server stopped")
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (a *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := a.accounts.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username already exists")
		case errors.Is(err, account.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already exists")
		default:
			var verr *account.ValidationError
			if errors.As(err, &verr) {
				writeError(w, http.StatusBadRequest, verr.Message)
				return
			}
			log.Printf("api: register failed: %v", err)
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    userPayload(user),
	})
}

func (a *apiServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Throttle login attempts per client IP.
	allowed, _ := a.limiter.Allow(r.Context(), clientIP(r), ratelimit.RuleLogin)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := a.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		log.Printf("api: login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := a.tokens.Issue(r.Context(), user)
	if err != nil {
		log.Printf("api: token issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    userPayload(user),
		"token":   token,
	})
}

func (a *apiServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rooms, err := a.rooms.ListRooms(r.Context(), r.URL.Query().Get("subject"))
		if err != nil {
			log.Printf("api: list rooms failed: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list rooms")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"rooms":   rooms,
		})

	case http.MethodPost:
		userID, _, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var req struct {
			Name            string `json:"name"`
			Subject         string `json:"subject"`
			Description     string `json:"description"`
			MaxParticipants int    `json:"max_participants"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		room, err := a.rooms.CreateRoom(r.Context(), catalog.RoomSpec{
			Name:            req.Name,
			Subject:         req.Subject,
			Description:     req.Description,
			MaxParticipants: req.MaxParticipants,
			CreatedBy:       userID,
		})
		if err != nil {
			switch {
			case errors.Is(err, catalog.ErrNameTaken):
				writeError(w, http.StatusConflict, "a room with that name already exists")
			default:
				var verr *catalog.ValidationError
				if errors.As(err, &verr) {
					writeError(w, http.StatusBadRequest, verr.Message)
					return
				}
				log.Printf("api: create room failed: %v", err)
				writeError(w, http.StatusInternalServerError, "failed to create room")
			}
			return
		}

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"room":    room,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *apiServer) handleSubjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subjects, err := a.rooms.Subjects(r.Context())
	if err != nil {
		log.Printf("api: list subjects failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list subjects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"subjects": subjects,
	})
}

// authenticate resolves the bearer token from the Authorization header into
// the numeric user ID and username it was issued for.
func (a *apiServer) authenticate(r *http.Request) (int64, string, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return 0, "", account.ErrTokenNotFound
	}

	userIDStr, username, err := a.tokens.Resolve(r.Context(), token)
	if err != nil {
		return 0, "", err
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, "", err
	}
	return userID, username, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func userPayload(u *account.User) map[string]interface{} {
	return map[string]interface{}{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// clientIP returns the remote address without the port, preferring the
// X-Forwarded-For header when the server sits behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
