package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AttachmentService uploads media for image/audio/video messages. Messages
// only ever carry the returned URL as content; the text pipeline never
// touches this service.
type AttachmentService struct {
	cld *cloudinary.Cloudinary
}

func NewAttachmentService(cloudName, apiKey, apiSecret string) (*AttachmentService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initializing Cloudinary: %w", err)
	}
	return &AttachmentService{cld: cld}, nil
}

// Upload stores the file and returns its public URL.
func (s *AttachmentService) Upload(ctx context.Context, file multipart.File, folder string) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}
	result, err := s.cld.Upload.Upload(ctx, data, uploader.UploadParams{
		Folder:       folder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("uploading attachment: %w", err)
	}
	return result.SecureURL, nil
}

// UploadFromHeader opens and uploads a multipart file header.
func (s *AttachmentService) UploadFromHeader(ctx context.Context, fh *multipart.FileHeader, folder string) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer file.Close()
	return s.Upload(ctx, file, folder)
}
