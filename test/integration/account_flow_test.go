// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/postgres"
	"github.com/speakdoc/speakdoc/internal/httpapi"
)

// mailbox records the latest message per recipient and subject.
type mailbox struct {
	mu   sync.Mutex
	msgs map[string]auth.Message
}

func (m *mailbox) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[msg.To+"|"+msg.Subject] = msg
	return nil
}

func (m *mailbox) token(to, subject string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[to+"|"+subject]
	Expect(ok).To(BeTrue(), "no %q mail for %s", subject, to)
	return msg.Body[strings.LastIndex(msg.Body, "/")+1:]
}

type apiReply struct {
	status  int
	Message string `json:"message"`
	Name    string `json:"name"`
	Action  string `json:"action"`
}

var _ = Describe("Account lifecycle over HTTP", func() {
	var (
		server *httptest.Server
		client *http.Client
		box    *mailbox
	)

	post := func(path string, body any) apiReply {
		var payload io.Reader = http.NoBody
		if body != nil {
			b, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			payload = bytes.NewReader(b)
		}
		resp, err := client.Post(server.URL+path, "application/json", payload)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		r := apiReply{status: resp.StatusCode}
		Expect(json.NewDecoder(resp.Body).Decode(&r)).To(Succeed())
		return r
	}

	BeforeEach(func() {
		_, err := pool.Exec(context.Background(), `TRUNCATE sessions, users CASCADE`)
		Expect(err).NotTo(HaveOccurred())

		box = &mailbox{msgs: make(map[string]auth.Message)}
		links, err := auth.NewLinks("http://localhost:8080")
		Expect(err).NotTo(HaveOccurred())

		deps := auth.Deps{
			Users:      postgres.NewUserRepository(pool),
			Sessions:   postgres.NewSessionRepository(pool),
			Transactor: postgres.NewTransactor(pool),
			Hasher:     auth.NewArgon2idHasher(),
			Issuer:     auth.NewTokenIssuer(),
			Notifier:   box,
			Links:      links,
		}
		verification, err := auth.NewVerificationService(deps)
		Expect(err).NotTo(HaveOccurred())
		resets, err := auth.NewPasswordResetService(deps)
		Expect(err).NotTo(HaveOccurred())
		accounts, err := auth.NewAuthService(deps, verification)
		Expect(err).NotTo(HaveOccurred())

		handler, err := httpapi.NewHandler(httpapi.Options{
			Accounts:     accounts,
			Verification: verification,
			Resets:       resets,
		})
		Expect(err).NotTo(HaveOccurred())
		server = httptest.NewServer(handler)

		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client = &http.Client{Jar: jar}
	})

	AfterEach(func() {
		server.Close()
	})

	signup := map[string]string{
		"name": "Ann", "email": "ann@example.com",
		"password": "s3cret", "confirm_password": "s3cret",
	}

	It("signs up, verifies, resets the password and logs out", func() {
		r := post("/signup", signup)
		Expect(r.status).To(Equal(http.StatusCreated))
		Expect(r.Message).To(Equal("Successfully created an account"))

		r = post("/signup", signup)
		Expect(r.status).To(Equal(http.StatusConflict))
		Expect(r.Message).To(Equal("ann@example.com already existed"))

		token := box.token("ann@example.com", "Verify Your Email")
		r = post("/verify-email/"+token, nil)
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.Message).To(Equal("Email verified successfully"))
		Expect(r.Action).To(Equal("login"))

		r = post("/verify-email/"+token, nil)
		Expect(r.status).To(Equal(http.StatusNotFound))

		r = post("/forgot-password", nil)
		Expect(r.status).To(Equal(http.StatusBadRequest))
		Expect(r.Message).To(Equal("No user email in session"))

		r = post("/login", map[string]string{"email": "ann@example.com", "password": "wrong"})
		Expect(r.status).To(Equal(http.StatusUnauthorized))
		Expect(r.Message).To(Equal("Your email or password is incorrect"))

		r = post("/login", map[string]string{"email": "ann@example.com", "password": "s3cret"})
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.Name).To(Equal("Ann"))

		r = post("/resend-verification-email", nil)
		Expect(r.status).To(Equal(http.StatusNotFound))
		Expect(r.Message).To(Equal("Account has been confirmed"))

		r = post("/forgot-password", nil)
		Expect(r.status).To(Equal(http.StatusOK))

		reset := box.token("ann@example.com", "Change Your Password")
		r = post("/change-password/"+reset, map[string]string{"password": "n3w", "confirm_password": "other"})
		Expect(r.status).To(Equal(http.StatusBadRequest))
		Expect(r.Message).To(Equal("Password and confirm password do not match"))

		r = post("/change-password/"+reset, map[string]string{"password": "n3w", "confirm_password": "n3w"})
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(r.Message).To(Equal("Successfully changed password"))

		r = post("/logout", nil)
		Expect(r.status).To(Equal(http.StatusOK))
		r = post("/logout", nil)
		Expect(r.status).To(Equal(http.StatusUnauthorized))

		r = post("/login", map[string]string{"email": "ann@example.com", "password": "s3cret"})
		Expect(r.status).To(Equal(http.StatusUnauthorized))
		r = post("/login", map[string]string{"email": "ann@example.com", "password": "n3w"})
		Expect(r.status).To(Equal(http.StatusOK))
	})

	It("resends a verification link that replaces the first", func() {
		Expect(post("/signup", signup).status).To(Equal(http.StatusCreated))
		first := box.token("ann@example.com", "Verify Your Email")

		Expect(post("/login", map[string]string{"email": "ann@example.com", "password": "s3cret"}).status).
			To(Equal(http.StatusOK))
		r := post("/resend-verification-email", nil)
		Expect(r.status).To(Equal(http.StatusOK))

		second := box.token("ann@example.com", "Verify Your Email")
		Expect(second).NotTo(Equal(first))
		Expect(post("/verify-email/"+first, nil).status).To(Equal(http.StatusNotFound))
		Expect(post("/verify-email/"+second, nil).status).To(Equal(http.StatusOK))
	})

	It("sends a reset link after a failed login", func() {
		Expect(post("/signup", signup).status).To(Equal(http.StatusCreated))

		r := post("/login", map[string]string{"email": "ann@example.com", "password": "wrong"})
		Expect(r.status).To(Equal(http.StatusUnauthorized))
		Expect(r.Message).To(Equal("Your email or password is incorrect"))

		r = post("/logout", nil)
		Expect(r.status).To(Equal(http.StatusUnauthorized), "a failed login does not sign in")

		r = post("/forgot-password", nil)
		Expect(r.status).To(Equal(http.StatusOK))
		reset := box.token("ann@example.com", "Change Your Password")

		r = post("/change-password/"+reset, map[string]string{"password": "n3w", "confirm_password": "n3w"})
		Expect(r.status).To(Equal(http.StatusOK))
		Expect(post("/login", map[string]string{"email": "ann@example.com", "password": "n3w"}).status).
			To(Equal(http.StatusOK))
	})
})
