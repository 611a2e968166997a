// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-nutrient-profile/internal/auth"
	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/nutrition"
	"mcp-nutrient-profile/internal/platform/logger"
)

var serverInfo = protocol.Implementation{
	Name:    "nutrient-profile",
	Version: "1.0.0",
}

type Config struct {
	Transport      string
	Host           string
	Port           int
	DBPath         string
	DefaultTopN    int
	SessionIdleTTL time.Duration
}

// FoodMatcher ranks catalog foods against a free-text query.
type FoodMatcher interface {
	Match(ctx context.Context, query string, topN int) ([]models.Match, error)
}

// Analyzer turns a food list into a nutrient table and summary.
type Analyzer interface {
	Analyze(ctx context.Context, list models.FoodList) (*models.Analysis, error)
}

// Deps are the loaded catalogs and clients the server routes tools to.
type Deps struct {
	Foods     *models.FoodCatalog
	Nutrients *models.NutrientCatalog
	Matcher   FoodMatcher
	Analyzer  Analyzer
	Auth      *auth.Authenticator
	Log       *logger.Logger
	// Closers run on Stop, after the HTTP server shuts down.
	Closers []func() error
}

type toolHandler func(ctx context.Context, sess *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type NutrientProfileServer struct {
	httpServer *http.Server
	deps       Deps
	sessions   *SessionStore
	tools      map[string]toolHandler
	log        *logger.Logger
	config     *Config
}

func NewNutrientProfileServer(cfg *Config, deps Deps) (*NutrientProfileServer, error) {
	if deps.Foods == nil || deps.Matcher == nil || deps.Analyzer == nil || deps.Auth == nil {
		return nil, fmt.Errorf("server requires food catalog, matcher, analyzer and authenticator")
	}
	if cfg.Transport != "" && cfg.Transport != "http" {
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if cfg.DefaultTopN <= 0 {
		cfg.DefaultTopN = 10
	}

	s := &NutrientProfileServer{
		deps:     deps,
		sessions: NewSessionStore(cfg.SessionIdleTTL),
		log:      deps.Log.With("service", "NutrientProfileServer"),
		config:   cfg,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	// Set up HTTP handlers
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *NutrientProfileServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *NutrientProfileServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("X-Server", serverInfo.Name+"/"+serverInfo.Version)

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Decode the MCP request
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	var result *protocol.CallToolResult
	var err error

	// Route to appropriate handler based on tool name
	switch request.Name {
	case "login":
		result, err = s.handleLogin(w, &request)
	case "logout":
		result, err = s.handleLogout(w, r)
	default:
		handler, ok := s.tools[request.Name]
		if !ok {
			http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
			return
		}
		// Every other tool needs a signed-in, live session
		claims, status := s.deps.Auth.Verify(sessionToken(r, s.deps.Auth.CookieName()))
		if status != auth.StatusAuthenticated {
			s.writeAuthStatus(w, status)
			return
		}
		sess, live := s.sessions.Get(claims.SessionID, claims.Subject)
		if !live {
			s.writeAuthStatus(w, auth.StatusPending)
			return
		}
		result, err = handler(r.Context(), sess, &request)
	}

	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.log.Error("Tool call failed", "tool", request.Name, "error", err)
		}
		http.Error(w, err.Error(), code)
		return
	}
	if result == nil {
		return
	}

	// Send response
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.log.Warn("Failed to encode response", "tool", request.Name, "error", err)
	}
}

func (s *NutrientProfileServer) writeAuthStatus(w http.ResponseWriter, status auth.Status) {
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  string(status),
		"message": status.Message(),
	})
}

// sessionToken reads the login cookie, falling back to a bearer token for
// clients without a cookie jar.
func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

var errInvalidParams = errors.New("invalid parameters")

func statusFor(err error) int {
	var fetchErr *models.FetchError
	switch {
	case errors.Is(err, errInvalidParams),
		errors.Is(err, nutrition.ErrInvalidAmount),
		errors.Is(err, nutrition.ErrInvalidTimeframe),
		errors.Is(err, nutrition.ErrEmptyFood):
		return http.StatusBadRequest
	case errors.Is(err, nutrition.ErrUnknownFood),
		errors.Is(err, models.ErrFoodNotFound):
		return http.StatusNotFound
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Start serves until the listener fails or Stop is called. Idle sessions
// are pruned while ctx is live.
func (s *NutrientProfileServer) Start(ctx context.Context) error {
	go s.sessions.runJanitor(ctx, time.Minute, func(n int) {
		s.log.Info("Pruned idle sessions", "count", n)
	})

	s.log.Info("Starting nutrient profile server", "addr", s.httpServer.Addr, "db", s.config.DBPath, "foods", s.deps.Foods.Len())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *NutrientProfileServer) Stop() error {
	var errs []error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = append(errs, s.httpServer.Shutdown(ctx))
	}
	for _, c := range s.deps.Closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *NutrientProfileServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
