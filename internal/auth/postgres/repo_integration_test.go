// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/postgres"
)

// recordingNotifier keeps the last message per recipient.
type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string]auth.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg auth.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string]auth.Message)
	}
	n.sent[msg.To] = msg
	return nil
}

func (n *recordingNotifier) token(to string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	body := n.sent[to].Body
	return body[strings.LastIndex(body, "/")+1:]
}

var _ = Describe("Account flows on PostgreSQL", func() {
	var (
		ctx          context.Context
		users        *postgres.UserRepository
		sessions     *postgres.SessionRepository
		notifier     *recordingNotifier
		now          time.Time
		verification *auth.VerificationService
		resets       *auth.PasswordResetService
		accounts     *auth.Service
	)

	BeforeEach(func() {
		truncate()
		ctx = context.Background()
		users = postgres.NewUserRepository(pool)
		sessions = postgres.NewSessionRepository(pool)
		notifier = &recordingNotifier{}
		now = time.Now().UTC().Truncate(time.Microsecond)

		links, err := auth.NewLinks("http://localhost:8080")
		Expect(err).NotTo(HaveOccurred())
		deps := auth.Deps{
			Users:      users,
			Sessions:   sessions,
			Transactor: postgres.NewTransactor(pool),
			Hasher:     auth.NewArgon2idHasher(),
			Issuer:     auth.NewTokenIssuer(auth.WithClock(func() time.Time { return now })),
			Notifier:   notifier,
			Links:      links,
		}
		verification, err = auth.NewVerificationService(deps)
		Expect(err).NotTo(HaveOccurred())
		resets, err = auth.NewPasswordResetService(deps)
		Expect(err).NotTo(HaveOccurred())
		accounts, err = auth.NewAuthService(deps, verification)
		Expect(err).NotTo(HaveOccurred())
	})

	signup := func(email string) (*auth.User, error) {
		pw := "s3cret"
		name := "Ann"
		return accounts.SignUp(ctx, auth.SignupRequest{
			Name: &name, Email: &email, Password: &pw, ConfirmPassword: &pw,
		})
	}

	Describe("signup", func() {
		It("rejects a second account for the same email in any case", func() {
			_, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = signup("ANN@example.com")
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})

		It("lets exactly one of many concurrent signups win", func() {
			const n = 4
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				created   int
				conflicts int
			)
			for range n {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := signup("race@example.com")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						created++
					case errors.Is(err, auth.ErrDuplicateEmail):
						conflicts++
					default:
						Fail("unexpected error: " + err.Error())
					}
				}()
			}
			wg.Wait()
			Expect(created).To(Equal(1))
			Expect(conflicts).To(Equal(n - 1))
		})
	})

	Describe("verification", func() {
		It("confirms once and reports already confirmed afterwards", func() {
			user, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())
			token := notifier.token("ann@example.com")

			outcome, err := verification.Resolve(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(auth.VerificationConfirmed))

			stored, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Confirmed).To(BeTrue())
			Expect(stored.ConfirmedAt).NotTo(BeNil())
			Expect(stored.Challenge).To(BeNil())

			_, err = verification.Resolve(ctx, token)
			Expect(errors.Is(err, auth.ErrTokenNotFound)).To(BeTrue())
		})

		It("resolves a token at most once under concurrency", func() {
			_, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())
			token := notifier.token("ann@example.com")

			const n = 6
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				resolved int
			)
			for range n {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					outcome, err := verification.Resolve(ctx, token)
					if err != nil {
						Expect(errors.Is(err, auth.ErrTokenNotFound)).To(BeTrue())
						return
					}
					Expect(outcome).To(Equal(auth.VerificationConfirmed))
					mu.Lock()
					resolved++
					mu.Unlock()
				}()
			}
			wg.Wait()
			Expect(resolved).To(Equal(1))
		})

		It("reports expiry and keeps the record unconfirmed", func() {
			user, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())
			token := notifier.token("ann@example.com")

			now = now.Add(time.Hour + time.Second)
			outcome, err := verification.Resolve(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(auth.VerificationExpired))

			stored, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Confirmed).To(BeFalse())
			Expect(stored.Challenge).NotTo(BeNil())
		})
	})

	Describe("password reset", func() {
		It("replaces the password through the emailed link", func() {
			_, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())

			email, pw := "ann@example.com", "s3cret"
			login, err := accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &pw}, auth.ClientInfo{})
			Expect(err).NotTo(HaveOccurred())

			id, err := accounts.Authenticate(ctx, login.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(resets.RequestReset(ctx, id.PendingResetEmail())).To(Succeed())

			newPw := "n3w-secret"
			outcome, err := resets.Resolve(ctx, notifier.token(email), auth.ChangePasswordRequest{
				Password: &newPw, ConfirmPassword: &newPw,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(auth.ResetCompleted))

			_, err = accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &pw}, auth.ClientInfo{})
			Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
			_, err = accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &newPw}, auth.ClientInfo{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts a reset request after a failed login", func() {
			_, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())

			email, wrong := "ann@example.com", "not-it"
			_, err = accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &wrong}, auth.ClientInfo{})
			var attempt *auth.AttemptError
			Expect(errors.As(err, &attempt)).To(BeTrue())
			Expect(attempt.Token).NotTo(BeEmpty())

			stored, err := sessions.GetByTokenHash(ctx, auth.HashToken(attempt.Token))
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Anonymous()).To(BeTrue())

			_, err = accounts.Authenticate(ctx, attempt.Token)
			Expect(errors.Is(err, auth.ErrUnauthenticated)).To(BeTrue())

			id, err := accounts.Resume(ctx, attempt.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(resets.RequestReset(ctx, id.PendingResetEmail())).To(Succeed())
			Expect(notifier.token(email)).NotTo(BeEmpty())
		})
	})

	Describe("sessions", func() {
		It("logs out and prunes expired sessions", func() {
			_, err := signup("ann@example.com")
			Expect(err).NotTo(HaveOccurred())

			email, pw := "ann@example.com", "s3cret"
			first, err := accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &pw}, auth.ClientInfo{})
			Expect(err).NotTo(HaveOccurred())
			_, err = accounts.Login(ctx, auth.LoginRequest{Email: &email, Password: &pw}, auth.ClientInfo{})
			Expect(err).NotTo(HaveOccurred())

			Expect(accounts.Logout(ctx, first.Identity)).To(Succeed())
			_, err = accounts.Authenticate(ctx, first.Token)
			Expect(errors.Is(err, auth.ErrUnauthenticated)).To(BeTrue())

			now = now.Add(auth.SessionTokenExpiry + time.Minute)
			pruned, err := accounts.PruneSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pruned).To(Equal(int64(1)))
		})
	})
})
