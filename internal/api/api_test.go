package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/swapmeet/swapmeet/internal/auth"
	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/karma"
	"github.com/swapmeet/swapmeet/internal/model"
	"github.com/swapmeet/swapmeet/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"
)

type testServer struct {
	*httptest.Server
	db *db.DB
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)

	ledger := karma.NewSQLLedger(database, karma.DefaultPoints)
	sweeper := exchange.NewSweeper(database, ledger)
	sweeps := exchange.Inline{Sweeper: sweeper}
	registry := exchange.NewRegistry(database, sweeps)
	coord := exchange.NewCoordinator(database, registry, sweeper, sweeps, nil)

	router := NewRouter(Deps{
		DB:          database,
		Tokens:      auth.NewTokens(testJWTSecret, time.Hour),
		Registry:    registry,
		Coordinator: coord,
		Ledger:      ledger,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, db: database}
}

// addUser creates an account and logs it in, returning its id and token.
func (s *testServer) addUser(t *testing.T, username, role string) (string, string) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if _, err := store.CreateUser(context.Background(), s.db, username, string(hash), role); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"username": username, "password": testPassword})
	resp, err := http.Post(s.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var login loginResponse
	json.NewDecoder(resp.Body).Decode(&login)
	if login.Token == "" || login.UserID == "" {
		t.Fatal("empty token or user id from login")
	}
	return login.UserID, login.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends an authenticated request and decodes the response into out when
// out is non-nil.
func do(t *testing.T, method, url, token string, body, out any) *http.Response {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return resp
}

func itemInput(title string) map[string]any {
	return map[string]any{
		"title":       title,
		"description": "Barely used",
		"category":    "books",
		"type":        model.ItemTypeBarter,
	}
}

func TestLoginEndpoint(t *testing.T) {
	server := setupTestServer(t)
	server.addUser(t, "alice", model.RoleUser)

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/api/items")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server := setupTestServer(t)
	_, token := server.addUser(t, "alice", model.RoleUser)

	if resp := do(t, "POST", server.URL+"/api/auth/logout", token, nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", resp.StatusCode)
	}
	if resp := do(t, "GET", server.URL+"/api/items", token, nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	server := setupTestServer(t)
	_, token := server.addUser(t, "alice", model.RoleUser)

	resp := do(t, "PUT", server.URL+"/api/auth/password", token, map[string]string{
		"currentPassword": "nope",
		"newPassword":     "newpassword1",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong current password, got %d", resp.StatusCode)
	}

	resp = do(t, "PUT", server.URL+"/api/auth/password", token, map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "newpassword1",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "newpassword1"})
	login, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	login.Body.Close()
	if login.StatusCode != http.StatusOK {
		t.Errorf("expected login with new password to succeed, got %d", login.StatusCode)
	}
}

func TestItemsAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	aliceID, alice := server.addUser(t, "alice", model.RoleUser)
	_, bob := server.addUser(t, "bob", model.RoleUser)

	var item model.Item
	resp := do(t, "POST", server.URL+"/api/items", alice, itemInput("Dune"), &item)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if item.OwnerID != aliceID || item.Status != model.ItemStatusAvailable {
		t.Errorf("unexpected item: %+v", item)
	}

	var errBody errorBody
	resp = do(t, "POST", server.URL+"/api/items", alice, map[string]any{"title": "x"}, &errBody)
	if resp.StatusCode != http.StatusBadRequest || errBody.Kind != model.KindValidation {
		t.Errorf("expected 400 validation, got %d %+v", resp.StatusCode, errBody)
	}

	var items []model.Item
	resp = do(t, "GET", server.URL+"/api/items?keyword=dun&type=barter", bob, nil, &items)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Errorf("expected search to find the item, got %+v", items)
	}

	resp = do(t, "GET", server.URL+"/api/items?status=lost", bob, nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status filter, got %d", resp.StatusCode)
	}

	resp = do(t, "PUT", server.URL+"/api/items/"+item.ID, bob, itemInput("Mine now"), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner update, got %d", resp.StatusCode)
	}

	var updated model.Item
	resp = do(t, "PUT", server.URL+"/api/items/"+item.ID, alice, itemInput("Dune Messiah"), &updated)
	if resp.StatusCode != http.StatusOK || updated.Title != "Dune Messiah" {
		t.Errorf("expected update, got %d %+v", resp.StatusCode, updated)
	}

	var mine []model.Item
	do(t, "GET", server.URL+"/api/items/user/"+aliceID, bob, nil, &mine)
	if len(mine) != 1 {
		t.Errorf("expected 1 item for alice, got %d", len(mine))
	}

	var removed model.Item
	resp = do(t, "DELETE", server.URL+"/api/items/"+item.ID, alice, nil, &removed)
	if resp.StatusCode != http.StatusOK || removed.Status != model.ItemStatusRemoved {
		t.Errorf("expected removed item, got %d %+v", resp.StatusCode, removed)
	}

	resp = do(t, "GET", server.URL+"/api/items/missing", alice, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOffersAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	aliceID, alice := server.addUser(t, "alice", model.RoleUser)
	bobID, bob := server.addUser(t, "bob", model.RoleUser)
	_, carol := server.addUser(t, "carol", model.RoleUser)

	var item model.Item
	do(t, "POST", server.URL+"/api/items", alice, itemInput("Bicycle"), &item)

	resp := do(t, "POST", server.URL+"/api/offers", bob, map[string]string{
		"itemId":      item.ID,
		"offeredById": aliceID,
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for offer on behalf of someone else, got %d", resp.StatusCode)
	}

	var bobOffer, carolOffer model.Offer
	resp = do(t, "POST", server.URL+"/api/offers", bob, map[string]string{"itemId": item.ID}, &bobOffer)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if bobOffer.OfferedBy != bobID || bobOffer.Status != model.OfferStatusPending {
		t.Errorf("unexpected offer: %+v", bobOffer)
	}
	do(t, "POST", server.URL+"/api/offers", carol, map[string]string{"itemId": item.ID}, &carolOffer)

	var list offerList
	do(t, "GET", server.URL+"/api/offers/item/"+item.ID, alice, nil, &list)
	if len(list.Offers) != 2 {
		t.Errorf("expected 2 offers on item, got %d", len(list.Offers))
	}

	resp = do(t, "PUT", server.URL+"/api/offers/"+bobOffer.ID, bob, map[string]string{"status": "accepted"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for offeror accepting, got %d", resp.StatusCode)
	}

	var accepted model.Offer
	resp = do(t, "PUT", server.URL+"/api/offers/"+bobOffer.ID, alice, map[string]string{"status": "accepted"}, &accepted)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if accepted.Status != model.OfferStatusAccepted {
		t.Errorf("expected accepted, got %s", accepted.Status)
	}
	if resp.Header.Get(KarmaSettlementHeader) != "" {
		t.Errorf("unexpected settlement header %q", resp.Header.Get(KarmaSettlementHeader))
	}

	var errBody errorBody
	resp = do(t, "PUT", server.URL+"/api/offers/"+carolOffer.ID, alice, map[string]string{"status": "accepted"}, &errBody)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for second acceptance, got %d", resp.StatusCode)
	}
	if errBody.Kind != model.KindConflict {
		t.Errorf("unexpected error kind %q", errBody.Kind)
	}

	var mine offerList
	do(t, "GET", server.URL+"/api/offers/user/"+bobID, bob, nil, &mine)
	if len(mine.Offers) != 1 || mine.Offers[0].Status != model.OfferStatusAccepted {
		t.Errorf("expected bob's accepted offer, got %+v", mine.Offers)
	}

	for _, status := range []string{"bogus", "pending"} {
		resp = do(t, "PUT", server.URL+"/api/offers/"+bobOffer.ID, alice, map[string]string{"status": status}, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for status %q, got %d", status, resp.StatusCode)
		}
	}

	var k karmaResponse
	do(t, "GET", server.URL+"/api/karma/"+aliceID, bob, nil, &k)
	if k.Points != int64(karma.DefaultPoints.Owner) {
		t.Errorf("expected owner karma %d, got %d", karma.DefaultPoints.Owner, k.Points)
	}
	do(t, "GET", server.URL+"/api/karma/"+bobID, bob, nil, &k)
	if k.Points != int64(karma.DefaultPoints.Offeror) {
		t.Errorf("expected offeror karma %d, got %d", karma.DefaultPoints.Offeror, k.Points)
	}
}

func TestWithdrawAndDeleteOffer(t *testing.T) {
	server := setupTestServer(t)
	_, alice := server.addUser(t, "alice", model.RoleUser)
	_, bob := server.addUser(t, "bob", model.RoleUser)

	var item model.Item
	do(t, "POST", server.URL+"/api/items", alice, itemInput("Lamp"), &item)
	var offer model.Offer
	do(t, "POST", server.URL+"/api/offers", bob, map[string]string{"itemId": item.ID}, &offer)

	resp := do(t, "DELETE", server.URL+"/api/offers/"+offer.ID, bob, nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 deleting a pending offer, got %d", resp.StatusCode)
	}

	resp = do(t, "PUT", server.URL+"/api/offers/"+offer.ID, bob, map[string]string{"status": "withdrawn"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 withdrawing, got %d", resp.StatusCode)
	}

	resp = do(t, "DELETE", server.URL+"/api/offers/"+offer.ID, bob, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 deleting a withdrawn offer, got %d", resp.StatusCode)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	server := setupTestServer(t)
	_, userToken := server.addUser(t, "user1", model.RoleUser)
	_, adminToken := server.addUser(t, "admin", model.RoleAdmin)

	resp := do(t, "GET", server.URL+"/api/users", userToken, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", resp.StatusCode)
	}

	var created model.User
	resp = do(t, "POST", server.URL+"/api/users", adminToken, map[string]string{
		"username": "user2",
		"password": testPassword,
	}, &created)
	if resp.StatusCode != http.StatusCreated || created.Role != model.RoleUser {
		t.Fatalf("expected 201 with default role, got %d %+v", resp.StatusCode, created)
	}

	var users []model.User
	do(t, "GET", server.URL+"/api/users", adminToken, nil, &users)
	if len(users) != 3 {
		t.Errorf("expected 3 users, got %d", len(users))
	}

	resp = do(t, "DELETE", server.URL+"/api/users/"+created.ID, adminToken, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 deleting user, got %d", resp.StatusCode)
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	server := setupTestServer(t)
	id, token := server.addUser(t, "alice", model.RoleUser)

	if err := store.DeleteUser(context.Background(), server.db, id); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if resp := do(t, "GET", server.URL+"/api/items", token, nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := setupTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
