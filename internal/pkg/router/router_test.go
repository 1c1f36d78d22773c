package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

type staticUUID string

func (s staticUUID) Generate() string { return string(s) }

type fakeVerifier struct {
	claims jwt.Claims
	err    error
}

func (f fakeVerifier) Generate(string) (string, error) { return "", nil }
func (f fakeVerifier) Verify(string) (jwt.Claims, error) {
	return f.claims, f.err
}

type echoBody struct {
	Name string `json:"name"`
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(Config{UUID: staticUUID("cid-test")})
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t)

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["message"] != "request has been successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	if rec.Header().Get(HeaderCorrelationID) != "cid-test" {
		t.Fatalf("correlation header = %q", rec.Header().Get(HeaderCorrelationID))
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := newTestRouter(t)

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound || body["code"] != "ERROR_CODE_NOT_FOUND" {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
}

func TestRouter_ErrorCodec(t *testing.T) {
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{name: "plain error hidden", err: errors.New("db password=secret"), wantStatus: 500, wantCode: "ERROR_CODE_INTERNAL"},
		{name: "business", err: goerror.NewBusiness("invalid identity", goerror.CodeInvalidIdentity), wantStatus: 400, wantCode: "ERROR_CODE_INVALID_IDENTITY"},
		{name: "delivery", err: goerror.NewDelivery(errors.New("smtp 421")), wantStatus: 502, wantCode: "ERROR_CODE_DELIVERY_FAILED"},
		{
			name:       "validation",
			err:        goerror.NewInvalidInput(v.Validate(struct{ Identity string `validate:"required"` }{})),
			wantStatus: 422,
			wantCode:   "ERROR_CODE_INVALID_INPUT",
			wantField:  "identity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			r := newTestRouter(t)
			r.POST("/x", func(*Request) (any, error) { return nil, tt.err })

			// Act
			rec, body := do(t, r, httptest.NewRequest(http.MethodPost, "/x", nil))

			// Assert
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if body["code"] != tt.wantCode {
				t.Fatalf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if strings.Contains(rec.Body.String(), "secret") || strings.Contains(rec.Body.String(), "smtp 421") {
				t.Fatalf("internal detail leaked: %s", rec.Body.String())
			}
			if tt.wantField != "" {
				fields, _ := body["error"].(map[string]any)
				if _, ok := fields[tt.wantField]; !ok {
					t.Fatalf("error fields = %v", body["error"])
				}
			}
		})
	}
}

func TestRequest_DecodeBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"a"}`},
		{name: "unknown field", body: `{"name":"a","x":1}`, wantErr: true},
		{name: "trailing data", body: `{"name":"a"}{}`, wantErr: true},
		{name: "not json", body: `name=a`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "oversized", body: `{"name":"` + strings.Repeat("a", maxJSONBodyBytes) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Request: httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))}

			var dst echoBody
			err := req.DecodeBody(&dst)

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeBody err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !goerror.HasCode(err, goerror.CodeInvalidFormat) {
				t.Fatalf("expected invalid format, got %v", err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   fakeVerifier
		wantStatus int
	}{
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer abc", verifier: fakeVerifier{err: jwt.ErrInvalidToken}, wantStatus: http.StatusUnauthorized},
		{name: "ok", header: "Bearer abc", verifier: fakeVerifier{claims: jwt.Claims{Identity: "a@example.com"}}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			r.GET("/secure", func(req *Request) (any, error) {
				return map[string]string{"identity": jwt.GetAuth(req.Context()).Identity}, nil
			}, Authenticate(tt.verifier))

			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, body := do(t, r, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", rec.Code, tt.wantStatus, body)
			}
			if tt.wantStatus == http.StatusOK {
				data, _ := body["data"].(map[string]any)
				if data["identity"] != "a@example.com" {
					t.Fatalf("data = %v", body["data"])
				}
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	r := newTestRouter(t)
	r.GET("/panic", func(*Request) (any, error) { panic("boom") })

	rec, body := do(t, r, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if rec.Code != http.StatusInternalServerError || body["message"] != "Internal server error" {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "h") }), mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,h" {
		t.Fatalf("order = %v", order)
	}
}

func TestDescribeBody(t *testing.T) {
	m := newMasker(nil)
	captured := func(s string) *capture {
		c := &capture{}
		c.keep([]byte(s))
		return c
	}

	tests := []struct {
		name        string
		contentType string
		body        *capture
		want        string
	}{
		{name: "json", contentType: "application/json", body: captured(`{"identity":"a@b.co","code":"123456"}`), want: `{"code":"***","identity":"a@b.co"}`},
		{name: "form", contentType: "application/x-www-form-urlencoded", body: captured("code=1&identity=x"), want: "map[code:*** identity:x]"},
		{name: "multipart", contentType: "multipart/form-data; boundary=x", body: captured("--x\r\nsecret"), want: "<multipart body omitted>"},
		{name: "binary", contentType: "application/octet-stream", body: captured("\xff\xfe"), want: "<binary body omitted>"},
		{name: "text", contentType: "text/plain", body: captured("hello"), want: "hello"},
		{name: "empty", contentType: "application/json", body: &capture{}, want: "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeBody(tt.contentType, tt.body, m)

			var rendered string
			if raw, ok := got.(json.RawMessage); ok {
				rendered = string(raw)
			} else {
				rendered = fmt.Sprint(got)
			}
			if rendered != tt.want {
				t.Fatalf("describeBody() = %s, want %s", rendered, tt.want)
			}
		})
	}
}

func TestPeekRequestBody_KeepsStream(t *testing.T) {
	// Arrange
	payload := strings.Repeat("a", maxLoggedBodyBytes+10)
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	r.Header.Set("Content-Type", "text/plain")

	// Act
	c := peekRequestBody(r)
	rest, err := io.ReadAll(r.Body)

	// Assert
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(rest) != payload {
		t.Fatalf("handler saw %d bytes, want %d", len(rest), len(payload))
	}
	if !c.truncated || c.buf.Len() != maxLoggedBodyBytes {
		t.Fatalf("capture truncated=%v len=%d", c.truncated, c.buf.Len())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "10.0.0.1:443", want: "203.0.113.9"},
		{name: "true client ip wins", headers: map[string]string{"True-Client-IP": "198.51.100.2", "X-Real-IP": "198.51.100.3"}, remote: "10.0.0.1:443", want: "198.51.100.2"},
		{name: "garbage header", headers: map[string]string{"X-Real-IP": "not-an-ip"}, remote: "192.0.2.4:5000", want: "192.0.2.4"},
		{name: "mapped v4", headers: map[string]string{"X-Real-IP": "::ffff:192.0.2.8"}, remote: "10.0.0.1:443", want: "192.0.2.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			var got string
			middlewareIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			})).ServeHTTP(httptest.NewRecorder(), r)

			if got != tt.want {
				t.Fatalf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCorrelationID(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderCorrelationID, "bad\x01id")
	h.Set(HeaderRequestID, " req-1 ")
	if got := correlationID(h); got != "req-1" {
		t.Fatalf("correlationID() = %q, want req-1", got)
	}

	h = http.Header{}
	h.Set(HeaderCorrelationID, strings.Repeat("c", 200))
	if got := correlationID(h); len(got) != maxCorrelationIDLen {
		t.Fatalf("len = %d, want %d", len(got), maxCorrelationIDLen)
	}

	mw := middlewareCorrelationID(staticUUID("generated"))
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(HeaderCorrelationID) != "generated" {
		t.Fatalf("header = %q", rec.Header().Get(HeaderCorrelationID))
	}
}

func TestRouter_SecureHeaders(t *testing.T) {
	r := newTestRouter(t)

	rec, _ := do(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}

func TestRequest_StreamSingleFile(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "skip me"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", "report.txt")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = fw.Write([]byte("release notes"))
	_ = mw.Close()

	hr := httptest.NewRequest(http.MethodPost, "/", &buf)
	hr.Header.Set("Content-Type", mw.FormDataContentType())
	req := &Request{Request: hr}

	// Act
	file, err := req.StreamSingleFile("file")

	// Assert
	if err != nil {
		t.Fatalf("StreamSingleFile() error = %v", err)
	}
	data, _ := io.ReadAll(file)
	if string(data) != "release notes" || file.Filename != "report.txt" {
		t.Fatalf("got %q from %q", data, file.Filename)
	}

	other := &Request{Request: httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))}
	other.Header.Set("Content-Type", "application/json")
	if _, err := other.StreamSingleFile("file"); !goerror.HasCode(err, goerror.CodeInvalidFormat) {
		t.Fatalf("expected invalid format for a JSON body, got %v", err)
	}
}
