package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ost-tracker/config"
)

// NewS3Client erstellt einen Client für den S3-kompatiblen Speicher,
// aus dem die Exportdateien abgeholt werden.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.SourceS3URL,
				SigningRegion:     cfg.SourceS3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.SourceS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.SourceS3Access, cfg.SourceS3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// DownloadFile lädt ein Objekt aus dem Bucket in eine lokale Datei und
// gibt die geschriebene Bytezahl zurück. Die Exporte sind mehrere
// Gigabyte groß, daher wird gestreamt statt gepuffert.
func DownloadFile(ctx context.Context, client *s3.Client, bucket, key, dest string) (int64, error) {
	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return 0, fmt.Errorf("objekt %s/%s abrufen: %w", bucket, key, err)
	}
	defer obj.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("zieldatei anlegen: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, obj.Body)
	if err != nil {
		return n, fmt.Errorf("objekt schreiben: %w", err)
	}
	return n, nil
}

// UploadFile lädt eine lokale Datei in den Bucket hoch, z.B. für
// Datenbank-Backups.
func UploadFile(ctx context.Context, client *s3.Client, bucket, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   f,
	})
	return err
}
