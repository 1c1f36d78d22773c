package router

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// maxJSONBodyBytes caps DecodeBody. OTP requests are a few hundred bytes.
const maxJSONBodyBytes = 64 << 10

// Request wraps http.Request with helpers for inbound handlers.
type Request struct {
	*http.Request
}

// GetParam reads a path parameter stored by httprouter.
func (r *Request) GetParam(key string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(key)
}

// DecodeBody decodes exactly one JSON object into dst. Unknown fields,
// trailing data and bodies over maxJSONBodyBytes are rejected as an invalid
// format.
func (r *Request) DecodeBody(dst any) error {
	if r == nil || r.Body == nil {
		return goerror.NewInvalidFormat()
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return goerror.NewInvalidFormat()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return goerror.NewInvalidFormat()
	}

	return nil
}

// MultipartFile is a streamed multipart file part.
type MultipartFile struct {
	io.ReadCloser
	// Filename is the client supplied file name.
	Filename string
	// ContentType is the part Content-Type header.
	ContentType string
}

// StreamSingleFile returns the first part of the multipart form field name.
// Parts before it are drained. The file is not buffered; callers read it
// straight from the connection.
func (r *Request) StreamSingleFile(name string) (*MultipartFile, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, goerror.NewInvalidFormat("Invalid request content-type")
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, goerror.NewInvalidFormat()
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF means the field is absent. Anything else is a broken body.
			return nil, goerror.NewInvalidFormat()
		}

		if part.FormName() == name {
			return &MultipartFile{
				ReadCloser:  part,
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
			}, nil
		}

		if err := drain(part); err != nil {
			return nil, goerror.NewInvalidFormat()
		}
	}
}

func drain(part *multipart.Part) error {
	_, err := io.Copy(io.Discard, part)
	return errors.Join(err, part.Close())
}
