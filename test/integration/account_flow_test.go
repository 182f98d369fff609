// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codesnip/codesnip/internal/auth"
)

const (
	alicePassword = "P@ssw0rd1"
	bobPassword   = "B0b-secret!"
)

var _ = Describe("Account lifecycle", func() {
	BeforeEach(resetDatabase)

	Describe("registration and verification", func() {
		It("rejects login until the email is verified", func() {
			resp := call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
				"username": "alice", "email": "Alice@Example.com", "password": alicePassword,
			})
			Expect(resp.Status).To(Equal(http.StatusCreated))

			resp = call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
				"email": "alice@example.com", "password": alicePassword,
			})
			Expect(resp.Status).To(Equal(http.StatusForbidden))
			Expect(resp.errorCode()).To(Equal(auth.KindEmailNotVerified.Code()))

			token := lastToken(auth.EmailVerification)
			resp = call(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{"token": token})
			Expect(resp.Status).To(Equal(http.StatusOK))

			resp = call(http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{"token": token})
			Expect(resp.Status).To(Equal(http.StatusConflict))
			Expect(resp.errorCode()).To(Equal(auth.KindAlreadyVerified.Code()))

			s := login("alice@example.com", alicePassword)
			Expect(s.User.Email).To(Equal("alice@example.com"))
			Expect(s.User.IsVerified).To(BeTrue())
		})

		It("rejects a duplicate email regardless of case", func() {
			signUp("alice", "alice@example.com", alicePassword)

			resp := call(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
				"username": "alice2", "email": "ALICE@example.com", "password": alicePassword,
			})
			Expect(resp.Status).To(Equal(http.StatusConflict))
			Expect(resp.errorCode()).To(Equal(auth.KindAlreadyExists.Code()))
		})
	})

	Describe("refresh tokens", func() {
		It("rotates on every refresh", func() {
			s := signUp("alice", "alice@example.com", alicePassword)

			resp := call(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": s.Tokens.RefreshToken})
			Expect(resp.Status).To(Equal(http.StatusOK))
			rotated := decode[session](resp).Tokens
			Expect(rotated.RefreshToken).NotTo(Equal(s.Tokens.RefreshToken))

			resp = call(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": s.Tokens.RefreshToken})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.errorCode()).To(Equal(auth.KindInvalidToken.Code()))

			resp = call(http.MethodGet, "/api/v1/auth/me", rotated.AccessToken, nil)
			Expect(resp.Status).To(Equal(http.StatusOK))
		})

		It("lets exactly one concurrent refresh of the same token win", func() {
			s := signUp("alice", "alice@example.com", alicePassword)

			const racers = 8
			statuses := make([]int, racers)
			var wg sync.WaitGroup
			for i := range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					statuses[i] = call(http.MethodPost, "/api/v1/auth/refresh-token", "",
						map[string]string{"refreshToken": s.Tokens.RefreshToken}).Status
				}()
			}
			wg.Wait()

			wins := 0
			for _, status := range statuses {
				if status == http.StatusOK {
					wins++
				} else {
					Expect(status).To(Equal(http.StatusUnauthorized))
				}
			}
			Expect(wins).To(Equal(1))
		})
	})

	Describe("logout", func() {
		It("revokes every session of the subject", func() {
			first := signUp("alice", "alice@example.com", alicePassword)
			second := login("alice@example.com", alicePassword)

			resp := call(http.MethodPost, "/api/v1/auth/logout", second.Tokens.AccessToken, nil)
			Expect(resp.Status).To(Equal(http.StatusOK))

			for _, refresh := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
				resp = call(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": refresh})
				Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			}
		})
	})

	Describe("password reset", func() {
		It("replaces the password and revokes existing sessions", func() {
			s := signUp("alice", "alice@example.com", alicePassword)

			resp := call(http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "alice@example.com"})
			Expect(resp.Status).To(Equal(http.StatusAccepted))
			token := lastToken(auth.EmailPasswordReset)

			resp = call(http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
				"token": token, "newPassword": bobPassword,
			})
			Expect(resp.Status).To(Equal(http.StatusOK))

			resp = call(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": s.Tokens.RefreshToken})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))

			resp = call(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": alicePassword})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			login("alice@example.com", bobPassword)
		})

		It("answers unknown addresses the same way", func() {
			resp := call(http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "nobody@example.com"})
			Expect(resp.Status).To(Equal(http.StatusAccepted))
		})
	})

	Describe("administration", func() {
		It("requires the admin role and revokes another subject's sessions", func() {
			alice := signUp("alice", "alice@example.com", alicePassword)
			bob := signUp("bob", "bob@example.com", bobPassword)
			path := "/api/v1/admin/users/" + bob.User.ID + "/revoke-sessions"

			resp := call(http.MethodPost, path, alice.Tokens.AccessToken, nil)
			Expect(resp.Status).To(Equal(http.StatusForbidden))

			identity, err := env.identities.FindByEmail(context.Background(), "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			identity.Role = auth.RoleAdmin
			Expect(env.identities.Save(context.Background(), identity)).To(Succeed())

			resp = call(http.MethodPost, path, alice.Tokens.AccessToken, nil)
			Expect(resp.Status).To(Equal(http.StatusOK))
			Expect(decode[map[string]int64](resp)).To(HaveKeyWithValue("revoked", int64(1)))

			resp = call(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": bob.Tokens.RefreshToken})
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("deleted subjects", func() {
		It("rejects a still-valid access token", func() {
			s := signUp("alice", "alice@example.com", alicePassword)
			_, err := env.pool.Exec(context.Background(), "DELETE FROM identities WHERE id = $1", s.User.ID)
			Expect(err).NotTo(HaveOccurred())

			resp := call(http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, nil)
			Expect(resp.Status).To(Equal(http.StatusUnauthorized))
			Expect(resp.errorCode()).To(Equal(auth.KindSubjectGone.Code()))
		})
	})
})
