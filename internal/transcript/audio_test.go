package transcript

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ppiankov/truthcast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves objects from memory
type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	gotKey  string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.gotKey = key
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	out := &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}
	if ct, ok := f.types[key]; ok {
		out.ContentType = aws.String(ct)
	}
	return out, nil
}

func TestS3AudioSource_Open(t *testing.T) {
	fake := &fakeS3{
		objects: map[string]string{"shows/2024/ep1.mp3": "audio", "shows/raw.wav": "wav"},
		types:   map[string]string{"shows/raw.wav": "binary/octet-stream"},
	}
	src := &S3AudioSource{client: fake}

	audio, err := src.Open(context.Background(), "s3://shows/2024/ep1.mp3")
	require.NoError(t, err)
	defer audio.Body.Close()
	assert.Equal(t, "shows/2024/ep1.mp3", fake.gotKey)
	assert.Equal(t, "ep1.mp3", audio.Name)
	assert.Equal(t, "audio/mpeg", audio.ContentType)

	audio, err = src.Open(context.Background(), "s3://shows/raw.wav")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", audio.ContentType)

	_, err = src.Open(context.Background(), "s3://shows/missing.mp3")
	assert.Error(t, err)

	_, err = src.Open(context.Background(), "https://example.com/a.mp3")
	assert.Error(t, err)
}

func TestNewS3AudioSource(t *testing.T) {
	src, err := NewS3AudioSource(context.Background(), model.TranscriptConfig{
		S3Region:    "eu-central-1",
		S3Endpoint:  "http://127.0.0.1:9000",
		S3AccessKey: "access",
		S3SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, src.client)
}

func TestParseS3Ref(t *testing.T) {
	tests := []struct {
		ref    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://bucket/key.mp3", "bucket", "key.mp3", true},
		{"s3://bucket/dir/key.mp3", "bucket", "dir/key.mp3", true},
		{"s3://bucket", "", "", false},
		{"s3:///key", "", "", false},
		{"/local/file.mp3", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := ParseS3Ref(tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		assert.Equal(t, tt.bucket, bucket, tt.ref)
		assert.Equal(t, tt.key, key, tt.ref)
	}
}

func TestRoutedSource(t *testing.T) {
	audio := writeAudio(t, "local.mp3")
	r := RoutedSource{}

	a, err := r.Open(context.Background(), audio)
	require.NoError(t, err)
	a.Body.Close()

	_, err = r.Open(context.Background(), "s3://bucket/key.mp3")
	assert.Error(t, err, "s3 references need an S3 source")

	r.S3 = &S3AudioSource{client: &fakeS3{objects: map[string]string{"bucket/key.mp3": "x"}}}
	a, err = r.Open(context.Background(), "s3://bucket/key.mp3")
	require.NoError(t, err)
	a.Body.Close()
}

func TestValidateContentType(t *testing.T) {
	allowed := model.DefaultConfig().Transcript.AllowedContentTypes

	assert.NoError(t, ValidateContentType("audio/mpeg", allowed))
	assert.NoError(t, ValidateContentType("Audio/WAV", allowed))
	assert.NoError(t, ValidateContentType("audio/webm; codecs=opus", allowed))
	assert.ErrorIs(t, ValidateContentType("video/mp4", allowed), ErrUnsupportedContentType)
	assert.ErrorIs(t, ValidateContentType("", allowed), ErrUnsupportedContentType)
	assert.NoError(t, ValidateContentType("anything", nil))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentTypeFor("a.MP3"))
	assert.Equal(t, "audio/mp4", ContentTypeFor("a.m4a"))
	assert.Equal(t, "audio/webm", ContentTypeFor("a.webm"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
}
