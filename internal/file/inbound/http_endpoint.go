package inbound

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shandysiswandi/otpgate/internal/file/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

const sniffLen = 512

// HTTPEndpoint exposes file upload and release behind a grant token.
type HTTPEndpoint struct {
	uc uc
}

// Upload stores a single file for the grant holder.
// @Summary Upload a file
// @Description Streams one file to object storage. Each grant token uploads once.
// @Tags File
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to release"
// @Success 200 {object} router.successResponse{data=UploadResponse} "File uploaded"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 409 {object} router.errorResponse "Grant already used"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 500 {object} router.errorResponse "Storage is unavailable"
// @Router /api/v1/files [post]
func (h *HTTPEndpoint) Upload(r *router.Request) (any, error) {
	ctx := r.Context()

	file, err := r.StreamSingleFile("file")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.ErrorContext(ctx, "failed to close file", "error", err)
		}
	}()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, goerror.NewInvalidFormat()
	}

	resp, err := h.uc.Upload(ctx, usecase.UploadInput{
		File:        io.MultiReader(bytes.NewReader(head[:n]), file),
		ContentType: http.DetectContentType(head[:n]),
	})
	if err != nil {
		return nil, err
	}

	return UploadResponse{
		Key:         resp.Key,
		Name:        resp.Name,
		Size:        resp.Size,
		DownloadURL: resp.DownloadURL,
	}, nil
}

// Release returns a short-lived download link for a file of the grant holder.
// @Summary Release a file
// @Description Looks up a file uploaded by the same identity and returns a presigned download URL.
// @Tags File
// @Security BearerAuth
// @Produce json
// @Param name path string true "File name returned by upload"
// @Success 200 {object} router.successResponse{data=ReleaseResponse} "File released"
// @Failure 400 {object} router.errorResponse "Invalid file name"
// @Failure 401 {object} router.errorResponse "Unauthorized"
// @Failure 404 {object} router.errorResponse "File not found"
// @Failure 500 {object} router.errorResponse "Storage is unavailable"
// @Router /api/v1/files/{name} [get]
func (h *HTTPEndpoint) Release(r *router.Request) (any, error) {
	resp, err := h.uc.Release(r.Context(), usecase.ReleaseInput{Name: r.GetParam("name")})
	if err != nil {
		return nil, err
	}

	return ReleaseResponse{
		Key:         resp.Key,
		Size:        resp.Size,
		ContentType: resp.ContentType,
		DownloadURL: resp.DownloadURL,
	}, nil
}
