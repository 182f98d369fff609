// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"

	. "github.com/onsi/gomega" //nolint:revive // gomega convention

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/web"
)

type apiResponse struct {
	Status int
	Body   struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   *web.ErrorBody  `json:"error"`
	}
}

// call sends a JSON request to the test server.
func call(method, path, token string, body any) apiResponse {
	var payload bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&payload).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequest(method, env.server.URL+path, &payload)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := apiResponse{Status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&out.Body)).To(Succeed())
	return out
}

func (r apiResponse) errorCode() string {
	if r.Body.Error == nil {
		return ""
	}
	return r.Body.Error.Code
}

type session struct {
	User   web.IdentityView `json:"user"`
	Tokens web.TokensView   `json:"tokens"`
}

func decode[T any](r apiResponse) T {
	var v T
	Expect(json.Unmarshal(r.Body.Data, &v)).To(Succeed())
	return v
}

// lastToken returns the token of the most recent email of kind.
func lastToken(kind string) string {
	env.svc.Wait()
	sent, ok := env.notifier.Last(kind)
	Expect(ok).To(BeTrue(), "no %s email sent", kind)
	return sent.Token
}

// signUp registers, verifies, and logs in an account.
func signUp(username, email, password string) session {
	resp := call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	Expect(resp.Status).To(Equal(http.StatusCreated))

	resp = call(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{"token": lastToken(auth.EmailVerification)})
	Expect(resp.Status).To(Equal(http.StatusOK))

	return login(email, password)
}

func login(email, password string) session {
	resp := call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	Expect(resp.Status).To(Equal(http.StatusOK), "login: %+v", resp.Body)
	return decode[session](resp)
}
