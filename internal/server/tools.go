// internal/server/tools.go
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
	"mcp-nutrient-profile/internal/embedding"
	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/nutrition"
)

type LoginParams struct {
	Username string `json:"username" description:"Account username"`
	Password string `json:"password" description:"Account password"`
}

type SearchFoodsParams struct {
	Query string `json:"query" description:"Free-text food description to match against the catalog"`
	TopN  int    `json:"top_n,omitempty" description:"Number of matches to return (defaults to 10)"`
}

type FoodParams struct {
	Food string `json:"food" description:"Catalog food description"`
}

type SetAmountParams struct {
	Food   string  `json:"food" description:"Catalog food description already in the list"`
	Amount float64 `json:"amount_g" description:"Grams eaten per current timeframe"`
}

type SetTimeframeParams struct {
	Timeframe string `json:"timeframe" description:"Day or Week"`
}

// extractParams decodes the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	// Convert the Arguments map to JSON bytes, then unmarshal to target
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

// handleLogin checks credentials and issues the session cookie
func (s *NutrientProfileServer) handleLogin(w http.ResponseWriter, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params LoginParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	res, err := s.deps.Auth.Login(params.Username, params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	if res.Status != auth.StatusAuthenticated {
		s.log.Info("Login rejected", "username", params.Username, "status", string(res.Status))
		s.writeAuthStatus(w, res.Status)
		return nil, nil
	}

	// Set the signed cookie and start an empty food list
	http.SetCookie(w, &http.Cookie{
		Name:     s.deps.Auth.CookieName(),
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.sessions.Create(res.SessionID, res.Username)
	s.log.Info("User logged in", "username", res.Username, "session_id", res.SessionID)

	return s.createJSONResponse(map[string]interface{}{
		"status":     string(res.Status),
		"name":       res.Name,
		"token":      res.Token,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	})
}

// handleLogout clears the cookie and drops the session's food list. It
// succeeds without a valid token.
func (s *NutrientProfileServer) handleLogout(w http.ResponseWriter, r *http.Request) (*protocol.CallToolResult, error) {
	if claims, status := s.deps.Auth.Verify(sessionToken(r, s.deps.Auth.CookieName())); status == auth.StatusAuthenticated {
		s.sessions.Delete(claims.SessionID)
		s.log.Info("User logged out", "username", claims.Subject, "session_id", claims.SessionID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.deps.Auth.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return s.createJSONResponse(map[string]interface{}{
		"status": string(auth.StatusPending),
	})
}

func (s *NutrientProfileServer) handleSearchFoods(ctx context.Context, _ *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SearchFoodsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	// Set defaults
	if params.TopN <= 0 {
		params.TopN = s.config.DefaultTopN
	}

	matches, err := s.deps.Matcher.Match(ctx, params.Query, params.TopN)
	if err != nil {
		if errors.Is(err, embedding.ErrEmptyQuery) {
			return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
		}
		return nil, fmt.Errorf("failed to search foods: %w", err)
	}

	response := map[string]interface{}{
		"query":   params.Query,
		"matches": matches,
	}
	if len(matches) == 0 {
		response["message"] = "No results found"
	}
	return s.createJSONResponse(response)
}

// handleAddFood adds a catalog food to the list with amount 0
func (s *NutrientProfileServer) handleAddFood(_ context.Context, sess *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params FoodParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	food := strings.TrimSpace(params.Food)
	if food == "" {
		return nil, nutrition.ErrEmptyFood
	}
	// Only catalog foods can be analyzed later
	if _, ok := s.deps.Foods.IDByName(food); !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrFoodNotFound, food)
	}

	added, err := sess.AddFood(food)
	if err != nil {
		return nil, err
	}
	return s.listResponse(sess, map[string]interface{}{"added": added})
}

func (s *NutrientProfileServer) handleSetAmount(_ context.Context, sess *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetAmountParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := sess.SetAmount(params.Food, params.Amount); err != nil {
		return nil, err
	}
	return s.listResponse(sess, nil)
}

func (s *NutrientProfileServer) handleRemoveFood(_ context.Context, sess *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params FoodParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := sess.RemoveFood(params.Food); err != nil {
		return nil, err
	}
	return s.listResponse(sess, nil)
}

func (s *NutrientProfileServer) handleSetTimeframe(_ context.Context, sess *nutrition.Session, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetTimeframeParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if err := sess.SetTimeframe(models.Timeframe(params.Timeframe)); err != nil {
		return nil, err
	}
	return s.listResponse(sess, nil)
}

func (s *NutrientProfileServer) handleListFoods(_ context.Context, sess *nutrition.Session, _ *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	return s.listResponse(sess, nil)
}

// handleAnalyze builds the nutrient table and summary for the current list
func (s *NutrientProfileServer) handleAnalyze(ctx context.Context, sess *nutrition.Session, _ *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	list := sess.Snapshot()
	analysis, err := s.deps.Analyzer.Analyze(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze food list: %w", err)
	}
	return s.createJSONResponse(analysis)
}

func (s *NutrientProfileServer) handleListNutrients(_ context.Context, _ *nutrition.Session, _ *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	type nutrientInfo struct {
		ID                  int    `json:"id"`
		Name                string `json:"name"`
		CatalogName         string `json:"catalog_name,omitempty"`
		DailyRecommendation string `json:"daily_recommendation"`
	}

	out := make([]nutrientInfo, 0, len(nutrition.NutrientsOfInterest))
	for _, n := range nutrition.NutrientsOfInterest {
		info := nutrientInfo{ID: n.ID, Name: n.Name}
		if s.deps.Nutrients != nil {
			info.CatalogName, _ = s.deps.Nutrients.Name(n.ID)
		}
		if rec, ok := nutrition.DailyRecommendations[n.Name]; ok {
			info.DailyRecommendation = rec.ForTimeframe(models.Day)
		}
		out = append(out, info)
	}

	return s.createJSONResponse(map[string]interface{}{
		"nutrients": out,
	})
}

func (s *NutrientProfileServer) listResponse(sess *nutrition.Session, extra map[string]interface{}) (*protocol.CallToolResult, error) {
	list := sess.Snapshot()
	response := map[string]interface{}{
		"timeframe":     list.Timeframe,
		"amount_column": list.Timeframe.AmountLabel(),
		"foods":         list.Items,
	}
	for k, v := range extra {
		response[k] = v
	}
	return s.createJSONResponse(response)
}

// registerTools builds the dispatch table. login and logout are routed
// ahead of it since they run without a session.
func (s *NutrientProfileServer) registerTools() error {
	s.tools = map[string]toolHandler{
		"search_foods":   s.handleSearchFoods,
		"add_food":       s.handleAddFood,
		"set_amount":     s.handleSetAmount,
		"remove_food":    s.handleRemoveFood,
		"set_timeframe":  s.handleSetTimeframe,
		"list_foods":     s.handleListFoods,
		"analyze":        s.handleAnalyze,
		"list_nutrients": s.handleListNutrients,
	}

	for name := range s.tools {
		s.log.Debug("Registered tool", "tool", name)
	}

	return nil
}
