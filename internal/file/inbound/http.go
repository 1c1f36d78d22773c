package inbound

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/file/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

type uc interface {
	Upload(ctx context.Context, in usecase.UploadInput) (*usecase.UploadOutput, error)
	Release(ctx context.Context, in usecase.ReleaseInput) (*usecase.ReleaseOutput, error)
}

func RegisterHTTPEndpoint(r *router.Router, grant jwt.JWT, uc uc) {
	end := &HTTPEndpoint{uc: uc}
	auth := router.Authenticate(grant)

	r.POST("/api/v1/files", end.Upload, auth)
	r.GET("/api/v1/files/:name", end.Release, auth)
}
