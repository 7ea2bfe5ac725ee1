package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ppiankov/truthcast/internal/model"
)

// ErrUnsupportedContentType is returned for audio formats the transcriber does not accept
var ErrUnsupportedContentType = errors.New("unsupported audio content type")

// Audio is an opened recording
type Audio struct {
	Name        string // file name sent to the transcriber
	ContentType string
	Body        io.ReadCloser
}

// AudioSource opens recordings by reference
type AudioSource interface {
	Open(ctx context.Context, ref string) (*Audio, error)
}

// FileAudioSource opens local files. Relative references resolve against Root.
type FileAudioSource struct {
	Root string
}

// Open opens the file at ref
func (f FileAudioSource) Open(_ context.Context, ref string) (*Audio, error) {
	p := strings.TrimPrefix(ref, "file://")
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}

	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	return &Audio{
		Name:        filepath.Base(p),
		ContentType: ContentTypeFor(p),
		Body:        file,
	}, nil
}

// s3GetObjectAPI is the part of the S3 client used here
type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3AudioSource opens s3://bucket/key references
type S3AudioSource struct {
	client s3GetObjectAPI
}

// NewS3AudioSource creates an S3 source from configuration. Static keys are
// used when set; otherwise the default AWS credential chain applies.
func NewS3AudioSource(ctx context.Context, cfg model.TranscriptConfig) (*S3AudioSource, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3AudioSource{client: client}, nil
}

// Open streams the object named by an s3:// reference
func (s *S3AudioSource) Open(ctx context.Context, ref string) (*Audio, error) {
	bucket, key, ok := ParseS3Ref(ref)
	if !ok {
		return nil, fmt.Errorf("invalid s3 reference %q", ref)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", ref, err)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		ct = ContentTypeFor(key)
	}
	return &Audio{
		Name:        path.Base(key),
		ContentType: ct,
		Body:        out.Body,
	}, nil
}

// ParseS3Ref splits s3://bucket/key
func ParseS3Ref(ref string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// RoutedSource dispatches s3:// references to S3 and everything else to local files
type RoutedSource struct {
	Files FileAudioSource
	S3    AudioSource // nil disables s3:// references
}

// Open opens ref with the matching source
func (r RoutedSource) Open(ctx context.Context, ref string) (*Audio, error) {
	if strings.HasPrefix(ref, "s3://") {
		if r.S3 == nil {
			return nil, fmt.Errorf("s3 audio is not configured: %s", ref)
		}
		return r.S3.Open(ctx, ref)
	}
	return r.Files.Open(ctx, ref)
}

// ContentTypeFor guesses an audio content type from a file name
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".mpeg", ".mpga":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ValidateContentType checks ct (parameters ignored) against the allowed list.
// An empty list allows everything.
func ValidateContentType(ct string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(ct))
	}
	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedContentType, ct, strings.Join(allowed, ", "))
}
