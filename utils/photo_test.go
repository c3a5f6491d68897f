package utils

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileHeader(t *testing.T, name, contentType string, body []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["photo"][0]
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, err := io.ReadAll(in.Body)
	f.body = b
	return &s3.PutObjectOutput{}, err
}

func TestProofPhotoKey(t *testing.T) {
	key, err := ProofPhotoKey("u-1", fileHeader(t, "a.png", "image/png", []byte("png")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "proofs/u-1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	_, err = ProofPhotoKey("u-1", fileHeader(t, "a.txt", "text/plain", []byte("hi")))
	assert.ErrorIs(t, err, ErrPhotoNotAnImage)

	big := fileHeader(t, "a.jpg", "image/jpeg", []byte("x"))
	big.Size = MaxPhotoBytes + 1
	_, err = ProofPhotoKey("u-1", big)
	assert.ErrorIs(t, err, ErrPhotoTooLarge)
}

func TestR2PhotoStoreUpload(t *testing.T) {
	putter := &fakePutter{}
	store := &R2PhotoStore{Client: putter, Bucket: "proofs", CDNBaseURL: "https://cdn.example.com/"}

	url, err := store.UploadProofPhoto(context.Background(), "u-1", fileHeader(t, "a.jpg", "image/jpeg", []byte("jpeg-bytes")))
	require.NoError(t, err)

	require.NotNil(t, putter.input)
	assert.Equal(t, "proofs", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(putter.input.ContentType))
	assert.Equal(t, []byte("jpeg-bytes"), putter.body)
	assert.Equal(t, "https://cdn.example.com/"+aws.ToString(putter.input.Key), url)
}

func TestLocalPhotoStoreUpload(t *testing.T) {
	dir := t.TempDir()
	store := LocalPhotoStore{Dir: dir, BaseURL: "/uploads"}
	require.NoError(t, store.EnsureUploadDir())

	url, err := store.UploadProofPhoto(context.Background(), "u-1", fileHeader(t, "a.webp", "image/webp", []byte("webp")))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/proofs/u-1/"))

	saved, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(url, "/uploads/"))))
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), saved)
}
