package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/solidus-pim/server/internal/audit"
)

type fakeRepo struct {
	byHash  map[string]*Asset
	byID    map[string]*Asset
	files   map[string]*File
	pending []string
	links   map[string][]ProductLink
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byHash: map[string]*Asset{},
		byID:   map[string]*Asset{},
		files:  map[string]*File{},
		links:  map[string][]ProductLink{},
	}
}

func (f *fakeRepo) GetByHash(_ context.Context, hash string) (*Asset, error) {
	a, ok := f.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) GetByULID(_ context.Context, ulid string) (*Asset, error) {
	a, ok := f.byID[ulid]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) Create(_ context.Context, asset Asset, original File) error {
	f.byHash[asset.FileHash] = &asset
	f.byID[asset.ID] = &asset
	f.files[original.ID] = &original
	f.pending = append(f.pending, original.ID)
	return nil
}

func (f *fakeRepo) List(_ context.Context, _ Filters) ([]Asset, int64, error) {
	var out []Asset
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) IncrementDownloadCount(_ context.Context, ulid string) error {
	f.byID[ulid].DownloadCount++
	return nil
}

func (f *fakeRepo) IncrementViewCount(_ context.Context, ulid string) error {
	f.byID[ulid].ViewCount++
	return nil
}

func (f *fakeRepo) ListFiles(_ context.Context, assetULID string) ([]File, error) {
	var out []File
	for _, file := range f.files {
		if file.AssetID == assetULID {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (f *fakeRepo) NextPendingFiles(_ context.Context, limit int) ([]File, error) {
	var out []File
	for _, id := range f.pending {
		if len(out) >= limit {
			break
		}
		out = append(out, *f.files[id])
	}
	return out, nil
}

func (f *fakeRepo) MarkFileProcessing(_ context.Context, fileID string) error {
	f.files[fileID].Status = FileStatusProcessing
	for i, id := range f.pending {
		if id == fileID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRepo) CompleteFile(_ context.Context, fileID string, width, height int) error {
	file := f.files[fileID]
	file.Status = FileStatusCompleted
	file.Width = width
	file.Height = height
	return nil
}

func (f *fakeRepo) FailFile(_ context.Context, fileID, reason string) error {
	file := f.files[fileID]
	file.Status = FileStatusFailed
	file.ProcessError = reason
	return nil
}

func (f *fakeRepo) LinkProduct(_ context.Context, link ProductLink) error {
	f.links[link.ProductID] = append(f.links[link.ProductID], link)
	return nil
}

func (f *fakeRepo) UnlinkProduct(_ context.Context, productULID, assetULID string) error {
	list := f.links[productULID]
	for i, link := range list {
		if link.AssetID == assetULID {
			f.links[productULID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrLinkNotFound
}

func (f *fakeRepo) ListLinksForProduct(_ context.Context, productULID string) ([]ProductLink, error) {
	return f.links[productULID], nil
}

func (f *fakeRepo) SetPrimaryImage(_ context.Context, productULID, assetULID string) error {
	for i := range f.links[productULID] {
		f.links[productULID][i].IsPrimary = f.links[productULID][i].AssetID == assetULID
	}
	return nil
}

type fakeBlobs struct {
	objects   map[string][]byte
	tempSeq   int
	discarded []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) SaveTemp(_ context.Context, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	f.tempSeq++
	path := fmt.Sprintf("tmp/upload-%d", f.tempSeq)
	f.objects[path] = data
	return path, int64(len(data)), nil
}

func (f *fakeBlobs) Promote(_ context.Context, tempPath, finalPath string) error {
	f.objects[finalPath] = f.objects[tempPath]
	delete(f.objects, tempPath)
	return nil
}

func (f *fakeBlobs) Discard(_ context.Context, tempPath string) error {
	delete(f.objects, tempPath)
	f.discarded = append(f.discarded, tempPath)
	return nil
}

func (f *fakeBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type nopAuditStore struct{}

func (nopAuditStore) Insert(context.Context, audit.Entry) error { return nil }
func (nopAuditStore) List(context.Context, audit.Filters) ([]audit.Entry, int64, error) {
	return nil, 0, nil
}
func (nopAuditStore) CountOlderThan(context.Context, time.Time) (int64, error)  { return 0, nil }
func (nopAuditStore) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func newTestService(repo Repository, blobs BlobStore) *Service {
	recorder := audit.NewRecorder(nopAuditStore{}, zerolog.Nop())
	return NewService(repo, blobs, recorder, zerolog.Nop())
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRegisterStoresContentAddressed(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	content := []byte("fake image bytes")
	asset, err := svc.Register(context.Background(), RegisterParams{
		FileName: "front.JPG",
		MIMEType: "image/jpeg",
	}, bytes.NewReader(content), "admin")

	require.NoError(t, err)
	wantHash := sha256.Sum256(content)
	require.Equal(t, hex.EncodeToString(wantHash[:]), asset.FileHash)
	require.Equal(t, TypeImage, asset.Type)
	require.Equal(t, int64(len(content)), asset.SizeBytes)

	require.True(t, strings.HasPrefix(asset.StoragePath, "assets/image/"))
	require.True(t, strings.HasSuffix(asset.StoragePath, asset.FileHash+".jpg"))
	require.Contains(t, asset.StoragePath, "/"+asset.FileHash[:2]+"/")
	require.Contains(t, blobs.objects, asset.StoragePath)

	files, err := svc.ListFiles(context.Background(), asset.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, 1, files[0].Version)
	require.Equal(t, FileStatusPending, files[0].Status)
}

func TestRegisterDuplicateHash(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	content := []byte("same bytes")
	first, err := svc.Register(context.Background(), RegisterParams{
		FileName: "a.pdf", MIMEType: "application/pdf",
	}, bytes.NewReader(content), "admin")
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), RegisterParams{
		FileName: "b.pdf", MIMEType: "application/pdf",
	}, bytes.NewReader(content), "admin")
	require.ErrorIs(t, err, ErrDuplicate)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, blobs.discarded, 1)
}

func TestRegisterRequiresMetadata(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeBlobs())

	_, err := svc.Register(context.Background(), RegisterParams{MIMEType: "image/png"}, bytes.NewReader(nil), "admin")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Register(context.Background(), RegisterParams{FileName: "x.png"}, bytes.NewReader(nil), "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestProcessPendingExtractsImageDimensions(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	asset, err := svc.Register(context.Background(), RegisterParams{
		FileName: "front.png", MIMEType: "image/png",
	}, bytes.NewReader(pngBytes(t, 640, 480)), "admin")
	require.NoError(t, err)

	processed, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	files, err := svc.ListFiles(context.Background(), asset.ID)
	require.NoError(t, err)
	require.Equal(t, FileStatusCompleted, files[0].Status)
	require.Equal(t, 640, files[0].Width)
	require.Equal(t, 480, files[0].Height)
}

func TestProcessPendingMarksFailed(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	asset, err := svc.Register(context.Background(), RegisterParams{
		FileName: "broken.png", MIMEType: "image/png",
	}, bytes.NewReader([]byte("not a png")), "admin")
	require.NoError(t, err)

	processed, err := svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	files, err := svc.ListFiles(context.Background(), asset.ID)
	require.NoError(t, err)
	require.Equal(t, FileStatusFailed, files[0].Status)
	require.NotEmpty(t, files[0].ProcessError)
}

func TestOpenIncrementsDownloadCount(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	content := []byte("spec sheet")
	asset, err := svc.Register(context.Background(), RegisterParams{
		FileName: "sheet.pdf", MIMEType: "application/pdf",
	}, bytes.NewReader(content), "admin")
	require.NoError(t, err)

	got, rc, err := svc.Open(context.Background(), asset.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, data)
	require.Equal(t, asset.ID, got.ID)
	require.Equal(t, int64(1), repo.byID[asset.ID].DownloadCount)
}

func TestPrimaryImageInvariant(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	first, err := svc.Register(context.Background(), RegisterParams{
		FileName: "one.png", MIMEType: "image/png",
	}, bytes.NewReader([]byte("one")), "admin")
	require.NoError(t, err)
	second, err := svc.Register(context.Background(), RegisterParams{
		FileName: "two.png", MIMEType: "image/png",
	}, bytes.NewReader([]byte("two")), "admin")
	require.NoError(t, err)

	const productID = "01HYX3KQW7ERTV9XNBM2P8QJZF"
	_, err = svc.LinkToProduct(context.Background(), productID, first.ID, true, 0, "admin")
	require.NoError(t, err)
	_, err = svc.LinkToProduct(context.Background(), productID, second.ID, true, 1, "admin")
	require.NoError(t, err)

	links, err := svc.ListProductAssets(context.Background(), productID)
	require.NoError(t, err)
	primaries := 0
	for _, link := range links {
		if link.IsPrimary {
			primaries++
			require.Equal(t, second.ID, link.AssetID)
		}
	}
	require.Equal(t, 1, primaries)
}

func TestPrimaryImageRejectsNonImage(t *testing.T) {
	repo := newFakeRepo()
	blobs := newFakeBlobs()
	svc := newTestService(repo, blobs)

	doc, err := svc.Register(context.Background(), RegisterParams{
		FileName: "manual.pdf", MIMEType: "application/pdf",
	}, bytes.NewReader([]byte("manual")), "admin")
	require.NoError(t, err)

	_, err = svc.LinkToProduct(context.Background(), "01HYX3KQW7ERTV9XNBM2P8QJZF", doc.ID, true, 0, "admin")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		mime string
		want Type
	}{
		{"image/jpeg", TypeImage},
		{"image/png", TypeImage},
		{"video/mp4", TypeVideo},
		{"application/pdf", TypeDocument},
		{"text/csv", TypeDocument},
		{"text/plain", TypeDocument},
		{"application/zip", TypeArchive},
		{"application/gzip", TypeArchive},
		{"application/octet-stream", TypeOther},
		{"", TypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.mime))
		})
	}
}

func TestStoragePathLayout(t *testing.T) {
	at := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	hash := "abcdef0123456789"
	path := StoragePath(TypeImage, hash, "Front Left.PNG", at)
	require.Equal(t, "assets/image/2026/03/07/ab/abcdef0123456789.png", path)
}
