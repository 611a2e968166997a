package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mcp-nutrient-profile/internal/auth"
	"mcp-nutrient-profile/internal/embedding"
	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/nutrition"
	"mcp-nutrient-profile/internal/platform/logger"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = s.vectors[in]
	}
	return out, nil
}

type stubFetcher struct {
	profiles map[int]models.NutrientProfile
	err      error
	calls    int
}

func (s *stubFetcher) FetchNutrients(ctx context.Context, foodID int, nutrients []models.Nutrient) (models.NutrientProfile, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.profiles[foodID], nil
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type testServer struct {
	srv     *NutrientProfileServer
	fetcher *stubFetcher
	embed   *stubEmbedder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	foods := models.NewFoodCatalog([]models.FoodEntry{{ID: 1, Name: "apple"}, {ID: 2, Name: "banana"}})
	ix, err := embedding.NewIndex(foods, [][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	emb := &stubEmbedder{vectors: map[string][]float32{"aple": {0.9, 0.1}, "yellow": {0.2, 0.8}}}
	fetcher := &stubFetcher{profiles: map[int]models.NutrientProfile{
		1: {"Protein": models.Present(0.3)},
		2: {"Protein": models.Present(1.09)},
	}}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	authn, err := auth.NewAuthenticator(map[string]auth.User{
		"jsmith": {Name: "John Smith", PasswordHash: string(hash)},
	}, "nutrient_profile_auth", "test-key", time.Hour)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	log := logger.Nop()
	srv, err := NewNutrientProfileServer(&Config{Host: "127.0.0.1", Port: 0}, Deps{
		Foods:     foods,
		Nutrients: models.NewNutrientCatalog([]models.NutrientEntry{{ID: 1003, Name: "Protein"}}),
		Matcher:   embedding.NewMatcher(emb, ix, log),
		Analyzer:  nutrition.NewAnalyzer(fetcher, foods, nutrition.NewMemoryCache(8, time.Hour), log),
		Auth:      authn,
		Log:       log,
	})
	if err != nil {
		t.Fatalf("NewNutrientProfileServer: %v", err)
	}
	return &testServer{srv: srv, fetcher: fetcher, embed: emb}
}

func (ts *testServer) call(t *testing.T, token, tool string, args map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"name": tool, "arguments": args})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	rec := ts.call(t, "", "login", map[string]interface{}{"username": "jsmith", "password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Status string `json:"status"`
		Token  string `json:"token"`
	}
	decodeText(t, rec, &out)
	if out.Status != string(auth.StatusAuthenticated) || out.Token == "" {
		t.Fatalf("login: unexpected payload %+v", out)
	}
	return out.Token
}

func decodeText(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var res toolResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v (%s)", err, rec.Body.String())
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("unexpected content: %+v", res.Content)
	}
	if err := json.Unmarshal([]byte(res.Content[0].Text), target); err != nil {
		t.Fatalf("decode text: %v", err)
	}
}

type listPayload struct {
	Timeframe    string              `json:"timeframe"`
	AmountColumn string              `json:"amount_column"`
	Foods        []models.FoodAmount `json:"foods"`
	Added        *bool               `json:"added"`
}

func TestLoginSetsCookie(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.call(t, "", "login", map[string]interface{}{"username": "jsmith", "password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "nutrient_profile_auth" || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"name":"list_foods"}`)))
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestLoginFailures(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		user, pass string
		status     string
		message    string
	}{
		{"jsmith", "nope", "failed", "Username/password is incorrect"},
		{"", "", "pending", "Please enter your username and password"},
	}
	for _, tc := range cases {
		rec := ts.call(t, "", "login", map[string]interface{}{"username": tc.user, "password": tc.pass})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: want 401, got %d", tc.user, rec.Code)
		}
		var out map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out["status"] != tc.status || out["message"] != tc.message {
			t.Fatalf("%q: got %v", tc.user, out)
		}
	}
}

func TestToolsRequireLogin(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.call(t, "", "list_foods", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
	rec = ts.call(t, "garbage", "list_foods", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", rec.Code)
	}
}

func TestMethodsAndUnknownTool(t *testing.T) {
	ts := newTestServer(t)

	for method, want := range map[string]int{
		http.MethodOptions: http.StatusOK,
		http.MethodGet:     http.StatusMethodNotAllowed,
	} {
		rec := httptest.NewRecorder()
		ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		if rec.Code != want {
			t.Fatalf("%s: want %d, got %d", method, want, rec.Code)
		}
	}

	token := ts.login(t)
	if rec := ts.call(t, token, "unknown_tool", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown tool: want 404, got %d", rec.Code)
	}
}

func TestSearchFoods(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	rec := ts.call(t, token, "search_foods", map[string]interface{}{"query": "aple", "top_n": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Matches []models.Match `json:"matches"`
	}
	decodeText(t, rec, &out)
	if len(out.Matches) != 1 || out.Matches[0].Name != "apple" {
		t.Fatalf("want [apple], got %+v", out.Matches)
	}

	rec = ts.call(t, token, "search_foods", map[string]interface{}{"query": "yellow"})
	decodeText(t, rec, &out)
	if len(out.Matches) != 2 || out.Matches[0].Name != "banana" {
		t.Fatalf("default top_n: got %+v", out.Matches)
	}

	if rec := ts.call(t, token, "search_foods", map[string]interface{}{"query": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query: want 400, got %d", rec.Code)
	}

	ts.embed.err = models.NewFetchError("embedding provider", errors.New("boom"))
	if rec := ts.call(t, token, "search_foods", map[string]interface{}{"query": "aple"}); rec.Code != http.StatusBadGateway {
		t.Fatalf("provider failure: want 502, got %d", rec.Code)
	}
}

func TestFoodListEditing(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	var list listPayload
	decodeText(t, ts.call(t, token, "list_foods", nil), &list)
	if list.Timeframe != "Week" || list.AmountColumn != "Weekly Amount (g)" || len(list.Foods) != 0 {
		t.Fatalf("fresh session: %+v", list)
	}

	decodeText(t, ts.call(t, token, "add_food", map[string]interface{}{"food": "apple"}), &list)
	if list.Added == nil || !*list.Added || len(list.Foods) != 1 || list.Foods[0].Amount != 0 {
		t.Fatalf("add apple: %+v", list)
	}
	list = listPayload{}
	decodeText(t, ts.call(t, token, "add_food", map[string]interface{}{"food": "apple"}), &list)
	if list.Added == nil || *list.Added || len(list.Foods) != 1 {
		t.Fatalf("duplicate add: %+v", list)
	}

	if rec := ts.call(t, token, "add_food", map[string]interface{}{"food": "kiwi"}); rec.Code != http.StatusNotFound {
		t.Fatalf("non-catalog food: want 404, got %d", rec.Code)
	}

	decodeText(t, ts.call(t, token, "set_amount", map[string]interface{}{"food": "apple", "amount_g": 700}), &list)
	if list.Foods[0].Amount != 700 {
		t.Fatalf("set_amount: %+v", list)
	}
	if rec := ts.call(t, token, "set_amount", map[string]interface{}{"food": "apple", "amount_g": -1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: want 400, got %d", rec.Code)
	}
	if rec := ts.call(t, token, "set_amount", map[string]interface{}{"food": "banana", "amount_g": 5}); rec.Code != http.StatusNotFound {
		t.Fatalf("unlisted food: want 404, got %d", rec.Code)
	}

	decodeText(t, ts.call(t, token, "set_timeframe", map[string]interface{}{"timeframe": "Day"}), &list)
	if list.Timeframe != "Day" || list.AmountColumn != "Daily Amount (g)" || list.Foods[0].Amount != 100 {
		t.Fatalf("set_timeframe Day: %+v", list)
	}
	if rec := ts.call(t, token, "set_timeframe", map[string]interface{}{"timeframe": "Month"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timeframe: want 400, got %d", rec.Code)
	}

	decodeText(t, ts.call(t, token, "remove_food", map[string]interface{}{"food": "apple"}), &list)
	if len(list.Foods) != 0 {
		t.Fatalf("remove_food: %+v", list)
	}
}

func TestAnalyze(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	ts.call(t, token, "add_food", map[string]interface{}{"food": "apple"})
	ts.call(t, token, "set_amount", map[string]interface{}{"food": "apple", "amount_g": 700})

	rec := ts.call(t, token, "analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var analysis models.Analysis
	decodeText(t, rec, &analysis)
	if analysis.Summary.RequirementLabel != "Requirement (Week)" {
		t.Fatalf("requirement label: %q", analysis.Summary.RequirementLabel)
	}
	var protein models.SummaryRow
	for _, r := range analysis.Summary.Rows {
		if r.Nutrient == "Protein" {
			protein = r
		}
	}
	if protein.Total != "2.10" {
		t.Fatalf("protein total: want 2.10, got %q", protein.Total)
	}

	ts.call(t, token, "analyze", nil)
	if ts.fetcher.calls != 1 {
		t.Fatalf("repeat analysis should be memoized: calls=%d", ts.fetcher.calls)
	}

	ts.call(t, token, "add_food", map[string]interface{}{"food": "banana"})
	ts.fetcher.err = models.NewFetchError("nutrient provider", errors.New("down"))
	if rec := ts.call(t, token, "analyze", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("fetch failure: want 502, got %d", rec.Code)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	first := ts.login(t)
	second := ts.login(t)

	ts.call(t, first, "add_food", map[string]interface{}{"food": "apple"})

	var list listPayload
	decodeText(t, ts.call(t, second, "list_foods", nil), &list)
	if len(list.Foods) != 0 {
		t.Fatalf("second session sees first session's foods: %+v", list.Foods)
	}
}

func TestLogoutDropsSession(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	ts.call(t, token, "add_food", map[string]interface{}{"food": "apple"})
	if ts.srv.sessions.Len() != 1 {
		t.Fatalf("want 1 session, got %d", ts.srv.sessions.Len())
	}

	rec := ts.call(t, token, "logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status=%d", rec.Code)
	}
	if ts.srv.sessions.Len() != 0 {
		t.Fatalf("session survived logout")
	}

	rec = ts.call(t, token, "add_food", map[string]interface{}{"food": "apple"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("token reused after logout: want 401, got %d", rec.Code)
	}
	if ts.srv.sessions.Len() != 0 {
		t.Fatalf("reused token recreated a session")
	}
}

func TestPrunedSessionRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	ts.srv.sessions.idleTTL = time.Minute
	ts.srv.sessions.Prune(time.Now().Add(time.Hour))

	rec := ts.call(t, token, "list_foods", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("pruned session: want 401, got %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "pending" {
		t.Fatalf("want pending status, got %v", out)
	}
}

func TestListNutrients(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)

	var out struct {
		Nutrients []struct {
			ID                  int    `json:"id"`
			Name                string `json:"name"`
			CatalogName         string `json:"catalog_name"`
			DailyRecommendation string `json:"daily_recommendation"`
		} `json:"nutrients"`
	}
	decodeText(t, ts.call(t, token, "list_nutrients", nil), &out)
	if len(out.Nutrients) != len(nutrition.NutrientsOfInterest) {
		t.Fatalf("want %d nutrients, got %d", len(nutrition.NutrientsOfInterest), len(out.Nutrients))
	}
	for _, n := range out.Nutrients {
		if n.ID == 1003 && n.CatalogName != "Protein" {
			t.Fatalf("protein catalog name: %+v", n)
		}
		if n.DailyRecommendation == "" {
			t.Fatalf("%s has no recommendation", n.Name)
		}
	}
}

func TestSessionStorePrune(t *testing.T) {
	store := NewSessionStore(time.Minute)
	store.Create("a", "jsmith")
	if got := store.Prune(time.Now()); got != 0 {
		t.Fatalf("fresh session pruned")
	}
	if got := store.Prune(time.Now().Add(2 * time.Minute)); got != 1 || store.Len() != 0 {
		t.Fatalf("idle session kept: pruned=%d len=%d", got, store.Len())
	}
}

func TestSessionStoreGet(t *testing.T) {
	store := NewSessionStore(0)
	store.Create("a", "jsmith")
	if _, ok := store.Get("a", "jsmith"); !ok {
		t.Fatalf("live session not found")
	}
	if _, ok := store.Get("a", "someone"); ok {
		t.Fatalf("session returned for a different user")
	}
	if _, ok := store.Get("b", "jsmith"); ok {
		t.Fatalf("unknown session id returned")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nutrition.ErrInvalidAmount, http.StatusBadRequest},
		{errInvalidParams, http.StatusBadRequest},
		{nutrition.ErrUnknownFood, http.StatusNotFound},
		{models.ErrFoodNotFound, http.StatusNotFound},
		{models.NewFetchError("nutrient provider", errors.New("x")), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v): want %d, got %d", tc.err, tc.want, got)
		}
	}
}
