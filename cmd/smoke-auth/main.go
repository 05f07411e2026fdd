package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

/// Exercises the full session lifecycle against a running instance:
// register, login, refresh, logout, and a refresh after logout that
// must be rejected.
func main() {
	base := os.Getenv("PASSAGE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	email := fmt.Sprintf("smoke-%d@example.com", rand.Int())
	password := "smoke-pass-1"

	var session struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	post(client, base+"/v1/auth/register", map[string]string{
		"name":     "Smoke Test",
		"email":    email,
		"password": password,
	}, http.StatusCreated, &session)
	if session.Tokens.RefreshToken == "" {
		log.Fatal("register returned no refresh token")
	}

	post(client, base+"/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK, &session)

	var pair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	post(client, base+"/v1/auth/refresh", map[string]string{
		"refresh_token": session.Tokens.RefreshToken,
	}, http.StatusOK, &pair)
	if pair.RefreshToken == session.Tokens.RefreshToken {
		log.Fatal("refresh did not rotate the refresh token")
	}

	post(client, base+"/v1/auth/logout", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, http.StatusOK, nil)

	post(client, base+"/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, http.StatusUnauthorized, nil)

	fmt.Printf("✅ auth smoke test passed: account=%s\n", session.Account.ID)
}

func post(client *http.Client, url string, body map[string]string, wantStatus int, out any) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal %s: %v", url, err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("POST %s: got %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}
