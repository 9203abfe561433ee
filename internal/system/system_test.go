package system

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/vconcat/internal/errs"
)

type listingRunner struct {
	out string
	err error
}

func (r listingRunner) Run(_ context.Context, _ string, _ []string, stdout io.Writer) error {
	if r.err != nil {
		return r.err
	}
	_, err := io.WriteString(stdout, r.out)
	return err
}

func TestGetBestH264Encoder(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "h264_nvenc", GetBestH264Encoder(ctx, listingRunner{out: " V....D h264_nvenc  NVIDIA NVENC"}))
	assert.Equal(t, "h264_videotoolbox", GetBestH264Encoder(ctx, listingRunner{out: "h264_nvenc\nh264_videotoolbox"}))
	assert.Equal(t, "libx264", GetBestH264Encoder(ctx, listingRunner{out: "libx264"}))
	assert.Equal(t, "libx264", GetBestH264Encoder(ctx, listingRunner{err: errors.New("no ffmpeg")}))
}

func TestQualityArgs(t *testing.T) {
	assert.Equal(t, []string{"-b:v", "7500k"}, QualityArgs("h264_videotoolbox", 75))
	assert.Equal(t, []string{"-cq", "28"}, QualityArgs("h264_nvenc", 28))
	assert.Equal(t, []string{"-crf", "23", "-preset", "medium"}, QualityArgs("libx264", DefaultQuality("libx264")))
}

func TestWorkDirOwned(t *testing.T) {
	wd, err := CreateWorkDir("", "vconcat_test_")
	require.NoError(t, err)
	assert.True(t, wd.Owned())
	require.NoError(t, os.WriteFile(wd.Join("frame_000000.raw"), []byte{1}, 0644))

	require.NoError(t, wd.Remove())
	_, err = os.Stat(wd.Path)
	assert.True(t, os.IsNotExist(err), "owned dir should be gone")
}

func TestWorkDirPersistentPurge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "persist")
	wd, err := CreateWorkDir(dir, "unused_")
	require.NoError(t, err)
	assert.False(t, wd.Owned())

	wd.Track("frame_*.png")
	wd.Track("sources")
	require.NoError(t, os.WriteFile(wd.Join("frame_000001.png"), []byte{1}, 0644))
	require.NoError(t, os.MkdirAll(wd.Join("sources", "0"), 0755))
	require.NoError(t, os.WriteFile(wd.Join("keep.txt"), []byte("mine"), 0644))

	require.NoError(t, wd.Remove(), "remove is a no-op for caller dirs")
	require.NoError(t, wd.Purge())

	_, err = os.Stat(wd.Join("frame_000001.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(wd.Join("sources"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(wd.Join("keep.txt"))
	assert.NoError(t, err, "unrelated files survive")
}

func TestWorkDirEnsureSpace(t *testing.T) {
	wd, err := CreateWorkDir(t.TempDir(), "")
	require.NoError(t, err)
	if _, err := disk.Usage(wd.Path); err != nil {
		t.Skipf("disk usage unavailable: %v", err)
	}
	assert.NoError(t, wd.EnsureSpace(1))
	err = wd.EnsureSpace(1 << 62)
	assert.ErrorIs(t, err, errs.ErrFilesystem)
}

func TestImagePool(t *testing.T) {
	p := NewImagePool()
	a := p.Get(8, 4)
	assert.Equal(t, 8, a.Rect.Dx())
	assert.Equal(t, 4, a.Rect.Dy())
	p.Put(a)
	p.Put(nil)
	b := p.Get(8, 4)
	assert.Equal(t, a.Rect, b.Rect)
	assert.GreaterOrEqual(t, p.Allocated(), int64(1))
}

func TestExecRunnerCapturesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	err := ExecRunner{}.Run(context.Background(), "sh", []string{"-c", "echo broken pipe >&2; exit 3"}, nil)
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "sh", ee.Name)
	assert.Contains(t, ee.Stderr, "broken pipe")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "2.0 GiB", FormatBytes(2<<30))
}
