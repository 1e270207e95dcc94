package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/signup-portal/internal/config"
	"github.com/ignite/signup-portal/internal/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodePlaceholder(t *testing.T, uri string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(uri, prefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestBlurPlaceholder_Downscales(t *testing.T) {
	uri, err := BlurPlaceholder(pngBytes(t, 200, 100))
	require.NoError(t, err)

	img := decodePlaceholder(t, uri)
	assert.Equal(t, BlurWidth, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
}

func TestBlurPlaceholder_SmallImageKeepsWidth(t *testing.T) {
	uri, err := BlurPlaceholder(pngBytes(t, 4, 2))
	require.NoError(t, err)

	img := decodePlaceholder(t, uri)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestBlurPlaceholder_WideImageKeepsOneRow(t *testing.T) {
	uri, err := BlurPlaceholder(pngBytes(t, 400, 3))
	require.NoError(t, err)

	img := decodePlaceholder(t, uri)
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestBlurPlaceholder_InvalidData(t *testing.T) {
	_, err := BlurPlaceholder([]byte("not an image"))
	assert.Error(t, err)
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGB
// pixels, with no image data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestBlurPlaceholder_RejectsOversizedDimensions(t *testing.T) {
	_, err := BlurPlaceholder(pngHeader(12000, 12000))
	assert.ErrorIs(t, err, ErrImageTooManyPixels)
}

func TestBlurPlaceholder_AcceptsDimensionsAtLimit(t *testing.T) {
	// Passes the size check, then fails decoding the missing pixel data.
	_, err := BlurPlaceholder(pngHeader(8000, 5000))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrImageTooManyPixels)
}

type fakeStore struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []*s3.DeleteObjectInput
	err     error
}

func (f *fakeStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestUploader(store *fakeStore, cdn string) *Uploader {
	return NewUploader(store, config.StorageConfig{S3Bucket: "portal-images", AWSRegion: "us-east-1", CDNDomain: cdn})
}

func TestUpload_StoresAndDescribesImage(t *testing.T) {
	store := &fakeStore{}
	uploader := newTestUploader(store, "img.example.com")
	data := pngBytes(t, 64, 32)

	ref, err := uploader.Upload(context.Background(), "avatar.png", bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, ref.Validate())

	require.Len(t, store.puts, 1)
	put := store.puts[0]
	assert.Equal(t, "portal-images", aws.ToString(put.Bucket))
	assert.Equal(t, "image/png", aws.ToString(put.ContentType))
	assert.Equal(t, "avatar.png", put.Metadata["original-filename"])
	assert.Equal(t, data, store.bodies[0])

	key := aws.ToString(put.Key)
	assert.True(t, strings.HasPrefix(key, "images/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	require.NotNil(t, ref.UTKey)
	assert.Equal(t, key, *ref.UTKey)
	assert.Equal(t, "https://img.example.com/"+key, ref.URL)
	require.NotNil(t, ref.BlurData)
	assert.True(t, strings.HasPrefix(*ref.BlurData, "data:image/png;base64,"))
}

func TestUpload_S3URLWithoutCDN(t *testing.T) {
	store := &fakeStore{}
	ref, err := newTestUploader(store, "").Upload(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 2, 2)))
	require.NoError(t, err)

	assert.Equal(t, "https://portal-images.s3.us-east-1.amazonaws.com/"+*ref.UTKey, ref.URL)
}

func TestUpload_UndecodableImageHasNoBlur(t *testing.T) {
	store := &fakeStore{}
	// Valid GIF signature with a truncated body.
	data := append([]byte("GIF89a"), 0x01, 0x00, 0x01, 0x00)

	ref, err := newTestUploader(store, "").Upload(context.Background(), "broken.gif", bytes.NewReader(data))
	require.NoError(t, err)

	assert.NotNil(t, ref.UTKey)
	assert.Nil(t, ref.BlurData)
}

func TestUpload_OversizedDimensionsHaveNoBlur(t *testing.T) {
	store := &fakeStore{}

	ref, err := newTestUploader(store, "").Upload(context.Background(), "huge.png", bytes.NewReader(pngHeader(12000, 12000)))
	require.NoError(t, err)

	require.Len(t, store.puts, 1)
	assert.NotNil(t, ref.UTKey)
	assert.Nil(t, ref.BlurData)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyImage},
		{"text", []byte("hello world, not an image"), ErrUnsupportedImageType},
		{"too large", append(pngBytes(t, 1, 1), make([]byte, MaxUploadBytes)...), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			_, err := newTestUploader(store, "").Upload(context.Background(), "x", bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.puts)
		})
	}
}

func TestUpload_StoreError(t *testing.T) {
	boom := errors.New("access denied")
	store := &fakeStore{err: boom}

	_, err := newTestUploader(store, "").Upload(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 2, 2)))
	assert.ErrorIs(t, err, boom)
}

func TestDelete(t *testing.T) {
	store := &fakeStore{}
	uploader := newTestUploader(store, "")

	require.NoError(t, uploader.Delete(context.Background(), domain.ImageReference{URL: "https://example.com/a.png"}))
	assert.Empty(t, store.deletes)

	require.NoError(t, uploader.Delete(context.Background(), domain.ImageReference{
		URL:   "https://example.com/a.png",
		UTKey: aws.String("images/a.png"),
	}))
	require.Len(t, store.deletes, 1)
	assert.Equal(t, "portal-images", aws.ToString(store.deletes[0].Bucket))
	assert.Equal(t, "images/a.png", aws.ToString(store.deletes[0].Key))
}

func TestDelete_RejectsForeignKeys(t *testing.T) {
	keys := []string{
		"config/secrets.json",
		"images/",
		"images/../config/secrets.json",
		"images/nested/a.png",
		"images\\a.png",
		"/images/a.png",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			store := &fakeStore{}
			err := newTestUploader(store, "").Delete(context.Background(), domain.ImageReference{
				URL:   "https://example.com/a.png",
				UTKey: aws.String(key),
			})
			assert.ErrorIs(t, err, ErrInvalidStorageKey)
			assert.Empty(t, store.deletes)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{[]byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, "image/png"},
		{[]byte("GIF87a...."), "image/gif"},
		{[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{[]byte("plain"), "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectContentType(tt.data))
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "avatar.png", sanitizeFilename("../../etc/avatar.png"))
	assert.Equal(t, "caf_.png", sanitizeFilename("café.png"))
	assert.Equal(t, "", sanitizeFilename(""))
}
