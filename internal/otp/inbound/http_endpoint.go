package inbound

import (
	"strings"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

// HTTPEndpoint exposes the issue and verify handlers.
type HTTPEndpoint struct {
	uc uc
}

// Issue generates a code for an identity and delivers it out of band.
// @Summary Issue a one-time code
// @Description Stores a fresh code for the identity, replacing any pending one, and delivers it by email. The code is never part of the response.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body IssueRequest true "Issue payload"
// @Success 200 {object} router.successResponse{data=IssueResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid identity"
// @Failure 500 {object} router.errorResponse "Storage is unavailable"
// @Failure 502 {object} router.errorResponse "Unable to deliver the code"
// @Router /api/v1/otp/issue [post]
func (h *HTTPEndpoint) Issue(r *router.Request) (any, error) {
	// any body that does not carry a usable identity is an identity error
	var req IssueRequest
	if err := r.DecodeBody(&req); err != nil || strings.TrimSpace(req.Identity) == "" {
		return nil, goerror.NewBusiness("invalid identity", goerror.CodeInvalidIdentity)
	}

	resp, err := h.uc.Issue(r.Context(), usecase.IssueInput{Identity: req.Identity})
	if err != nil {
		return nil, err
	}

	return IssueResponse{ExpiresInSeconds: int64(resp.ExpiresIn.Seconds())}, nil
}

// Verify checks a submitted code. A wrong, expired or unknown code is a
// normal 200 response with verified=false and a reason.
// @Summary Verify a one-time code
// @Description Consumes the pending code of the identity when it matches. On success a file grant token is returned when file release is enabled.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyResponse} "Verification outcome"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 500 {object} router.errorResponse "Storage is unavailable"
// @Router /api/v1/otp/verify [post]
func (h *HTTPEndpoint) Verify(r *router.Request) (any, error) {
	var req VerifyRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Identity) == "" || strings.TrimSpace(req.Code) == "" {
		return nil, goerror.NewInvalidFormat("identity and code are required")
	}

	resp, err := h.uc.Verify(r.Context(), usecase.VerifyInput{
		Identity: req.Identity,
		Code:     strings.TrimSpace(req.Code),
	})
	if err != nil {
		return nil, err
	}

	out := VerifyResponse{Verified: resp.Outcome.Verified, GrantToken: resp.GrantToken}
	if !resp.Outcome.Verified {
		out.Reason = resp.Outcome.Reason.String()
	}
	return out, nil
}
