// Package offsite copies completed backups to S3-compatible object storage.
package offsite

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/miketropi/wp-backup/internal/backup"
)

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Artifacts builds the download artifact of a job folder.
type Artifacts interface {
	BuildDownload(ctx context.Context, backupRoot, archiveRoot, folder string) (string, error)
}

// S3Config locates the bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix string
}

// NewS3Client returns a client for an S3-compatible endpoint. An empty
// endpoint uses AWS.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.Endpoint != "",
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Uploader is a backup.Notifier that uploads the download artifact of
// every completed job. Failed jobs are ignored.
type Uploader struct {
	client    PutObjectAPI
	artifacts Artifacts
	layout    backup.Layout
	bucket    string
	prefix    string
	logger    zerolog.Logger
}

// NewUploader creates an Uploader.
func NewUploader(client PutObjectAPI, artifacts Artifacts, layout backup.Layout, bucket, prefix string, logger zerolog.Logger) *Uploader {
	return &Uploader{
		client:    client,
		artifacts: artifacts,
		layout:    layout,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		logger:    logger.With().Str("component", "offsite").Logger(),
	}
}

// Key is the object key for a job folder.
func (u *Uploader) Key(folder string) string {
	if u.prefix == "" {
		return folder + ".zip"
	}
	return path.Join(u.prefix, folder+".zip")
}

func (u *Uploader) Notify(ctx context.Context, ev backup.Event) error {
	if ev.Kind != backup.EventCompleted || ev.Job == nil {
		return nil
	}
	folder := ev.Job.Folder
	artifact, err := u.artifacts.BuildDownload(ctx, u.layout.BackupRoot, u.layout.ArchiveRoot, folder)
	if err != nil {
		return fmt.Errorf("build artifact for %s: %w", folder, err)
	}

	f, err := os.Open(artifact)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", artifact, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact %s: %w", artifact, err)
	}

	key := u.Key(folder)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
		Metadata: map[string]string{
			"backup-id":    ev.Job.ID,
			"backup-types": ev.Job.Types,
			"site-url":     ev.Job.SiteURL,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s/%s: %w", folder, u.bucket, key, err)
	}
	u.logger.Info().Str("folder", folder).Str("bucket", u.bucket).Str("key", key).Int64("bytes", info.Size()).Msg("backup uploaded")
	return nil
}
