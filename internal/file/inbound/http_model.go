package inbound

type UploadResponse struct {
	Key         string `json:"key" example:"3f1c9a0b7e2d4c11/0199a000-0000-7000-8000-000000000001.pdf"`
	Name        string `json:"name" example:"0199a000-0000-7000-8000-000000000001.pdf"`
	Size        int64  `json:"size" example:"48213"`
	DownloadURL string `json:"download_url"`
}

func (UploadResponse) Message() string {
	return "File uploaded"
}

type ReleaseResponse struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type" example:"application/pdf"`
	DownloadURL string `json:"download_url"`
}

func (ReleaseResponse) Message() string {
	return "File released"
}
