package otp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/outbound/notifier"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	otpgen "github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var reCode = regexp.MustCompile(`is: ([0-9]+)`)

type captureMail struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (c *captureMail) Send(_ context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureMail) Close() error { return nil }

type fixedID int64

func (f fixedID) Generate() int64 { return int64(f) }

func newDependency(t *testing.T, yaml string) Dependency {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	h, err := hash.NewHMACSHA256("module-test-secret")
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}

	return Dependency{
		Router:     router.NewRouter(router.Config{Config: cfg, UUID: uid.NewUUID()}),
		Store:      store.NewMemory(store.Options{}),
		Generator:  otpgen.NewCrypto(),
		HMAC:       h,
		Clock:      clock.New(),
		UID:        fixedID(1),
		Validator:  v,
		Config:     cfg,
		Instrument: instrument.NewNoop(),
	}
}

func post(t *testing.T, h http.Handler, path, body string) map[string]any {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("POST %s status = %d body = %s", path, rec.Code, rec.Body.String())
	}
	return resp["data"].(map[string]any)
}

func TestModule_IssueThenVerify(t *testing.T) {
	// Arrange
	dep := newDependency(t, "otp:\n  code_length: 6\n  ttl_minutes: 10\n  sender_identity: otp@example.com\n")
	client := &captureMail{}
	dep.Mail = client

	secret := []byte(strings.Repeat("k", 64))
	grant, err := jwt.NewHS512(jwt.Config{Secret: secret, TTL: 15 * time.Minute, Clock: clock.New(), UUID: uid.NewUUID()})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	dep.Grant = grant

	if err := New(dep); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Act
	issued := post(t, dep.Router, "/api/v1/otp/issue", `{"identity":"A@B.com"}`)

	// Assert
	if issued["expires_in_seconds"] != float64(600) {
		t.Fatalf("issue data = %v", issued)
	}
	if len(client.sent) != 1 || client.sent[0].To[0] != "a@b.com" || client.sent[0].Subject != notifier.DefaultSubject {
		t.Fatalf("sent = %+v", client.sent)
	}
	m := reCode.FindStringSubmatch(client.sent[0].TextBody)
	if len(m) != 2 || len(m[1]) != 6 {
		t.Fatalf("no code in mail body %q", client.sent[0].TextBody)
	}

	wrong := "000000"
	if m[1] == wrong {
		wrong = "111111"
	}
	miss := post(t, dep.Router, "/api/v1/otp/verify", `{"identity":"a@b.com","code":"`+wrong+`"}`)
	if miss["verified"] != false || miss["reason"] != "mismatch" {
		t.Fatalf("wrong code data = %v", miss)
	}

	ok := post(t, dep.Router, "/api/v1/otp/verify", `{"identity":"a@b.com","code":"`+m[1]+`"}`)
	if ok["verified"] != true {
		t.Fatalf("verify data = %v", ok)
	}
	token, _ := ok["grant_token"].(string)
	claims, err := grant.Verify(token)
	if err != nil || claims.Identity != "a@b.com" {
		t.Fatalf("grant claims = %+v, %v", claims, err)
	}

	again := post(t, dep.Router, "/api/v1/otp/verify", `{"identity":"a@b.com","code":"`+m[1]+`"}`)
	if again["reason"] != "not_found" {
		t.Fatalf("second verify data = %v", again)
	}
}

func TestModule_DeliveryModes(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mail    mail.Mail
		broker  messaging.Messaging
		wantErr error
	}{
		{name: "direct", mode: "direct", mail: &captureMail{}},
		{name: "direct without mail", mode: "direct", wantErr: ErrMailRequired},
		{name: "queue", mode: "queue", broker: messaging.NewMemory()},
		{name: "queue without broker", mode: "queue", wantErr: ErrMessagingRequired},
		{name: "none", mode: "none"},
		{name: "unknown", mode: "pigeon", wantErr: notifier.ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := newDependency(t, "otp:\n  delivery:\n    mode: "+tt.mode+"\n")
			dep.Mail = tt.mail
			dep.Messaging = tt.broker

			err := New(dep)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModule_RequiresDependencies(t *testing.T) {
	dep := newDependency(t, "otp:\n  delivery:\n    mode: none\n")
	dep.Store = nil

	if err := New(dep); err == nil {
		t.Fatalf("expected validation error for missing store")
	}
}
