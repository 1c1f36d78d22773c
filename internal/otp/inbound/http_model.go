package inbound

type IssueRequest struct {
	Identity string `json:"identity" example:"someone@example.com"`
}

// IssueResponse deliberately has no code field.
type IssueResponse struct {
	ExpiresInSeconds int64 `json:"expires_in_seconds" example:"600"`
}

func (IssueResponse) Message() string {
	return "A verification code has been sent"
}

type VerifyRequest struct {
	Identity string `json:"identity" example:"someone@example.com"`
	Code     string `json:"code" example:"483920"`
}

type VerifyResponse struct {
	Verified   bool   `json:"verified"`
	Reason     string `json:"reason,omitempty" enums:"not_found,expired,mismatch"`
	GrantToken string `json:"grant_token,omitempty"`
}

func (v VerifyResponse) Message() string {
	if v.Verified {
		return "Code verified"
	}
	return "Code not verified"
}
