// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iagallery/iag-backend/internal/config"
)

// StorageService keeps artwork master files. With AWS credentials it uses
// S3 and short-lived presigned URLs; without them it falls back to local
// disk for development.
type StorageService struct {
	s3Client *s3.S3
	bucket   string
	localDir string
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	svc := &StorageService{
		bucket:   cfg.AWS.S3Bucket,
		localDir: "./uploads",
	}

	if cfg.AWS.AccessKeyID == "" || cfg.AWS.SecretAccessKey == "" {
		logrus.Warn("AWS credentials not configured, using local file storage")
		return svc, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc.s3Client = s3.New(sess)
	return svc, nil
}

// UploadMaster stores the artwork master asset and returns its storage key.
func (s *StorageService) UploadMaster(r io.Reader, filename string, contentType string) (string, error) {
	key := "artworks/" + uuid.New().String() + filepath.Ext(filename)

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	if s.s3Client == nil {
		path := filepath.Join(s.localDir, key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create upload directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write upload: %w", err)
		}
		return key, nil
	}

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}

// PresignedDownloadURL returns a short-lived URL for the master asset.
func (s *StorageService) PresignedDownloadURL(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("artwork has no master asset")
	}

	if s.s3Client == nil {
		return "/uploads/" + key, nil
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(15 * time.Minute)
	if err != nil {
		return "", fmt.Errorf("failed to presign download URL: %w", err)
	}

	return url, nil
}
