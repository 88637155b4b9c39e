package run

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/collect"
	"github.com/John-Robertt/vidcollect/internal/config"
	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/gallery"
	"github.com/John-Robertt/vidcollect/internal/publish"
)

type memStore struct {
	keys []string
}

func (m *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	return nil
}

func baseConfig(src, dst string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Source:      src,
		Destination: dst,
		Extensions:  domain.DefaultExtensionSet(),
		Gallery:     config.GallerySettings{URLPrefix: config.DefaultURLPrefix},
	}
}

func seed(t *testing.T, fs afero.Fs) {
	t.Helper()
	for p, c := range map[string]string{
		"/src/a.mp4":     "A",
		"/src/sub/b.MKV": "BB",
		"/src/notes.txt": "N",
	} {
		if err := afero.WriteFile(fs, p, []byte(c), 0o644); err != nil {
			t.Fatalf("写入失败：%v", err)
		}
	}
}

func TestExecute_CollectGalleryPublishReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs)

	eff := baseConfig("/src", "/dst")
	eff.Gallery.Enabled = true
	eff.Publish = config.PublishSettings{Bucket: "videos", Prefix: "archive", Region: "us-east-1"}
	eff.ReportPath = "/reports/run.json"

	store := &memStore{}
	var gotOpt publish.S3Options
	rr, err := Execute(context.Background(), eff, Deps{
		Fs: fs,
		NewStore: func(ctx context.Context, opt publish.S3Options) (publish.ObjectStore, error) {
			gotOpt = opt
			return store, nil
		},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if rr.Summary.Copied != 2 || rr.Summary.Published != 2 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if gotOpt.Bucket != "videos" || gotOpt.Region != "us-east-1" {
		t.Fatalf("S3 选项未透传：%+v", gotOpt)
	}
	if len(store.keys) != 2 || !strings.HasPrefix(store.keys[0], "archive/") {
		t.Fatalf("上传 key 不符合预期：%v", store.keys)
	}

	b, err := afero.ReadFile(fs, filepath.Join("/dst", gallery.JSONName))
	if err != nil {
		t.Fatalf("gallery 未生成：%v", err)
	}
	var videos []gallery.Video
	if err := json.Unmarshal(b, &videos); err != nil || len(videos) != 2 {
		t.Fatalf("videos.json 不符合预期：%s err=%v", b, err)
	}

	rb, err := afero.ReadFile(fs, "/reports/run.json")
	if err != nil {
		t.Fatalf("report 未写出：%v", err)
	}
	var got domain.RunReport
	if err := json.Unmarshal(rb, &got); err != nil {
		t.Fatalf("report 不是合法 JSON：%v", err)
	}
	if got.Summary.Copied != 2 || got.Summary.Published != 2 || got.Destination != "/dst" {
		t.Fatalf("report 内容不符合预期：%+v", got.Summary)
	}
}

func TestExecute_DryRunSkipsSideEffects(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs)

	eff := baseConfig("/src", "/dst")
	eff.DryRun = true
	eff.Gallery.Enabled = true
	eff.Publish = config.PublishSettings{Bucket: "videos"}

	called := false
	rr, err := Execute(context.Background(), eff, Deps{
		Fs: fs,
		NewStore: func(ctx context.Context, opt publish.S3Options) (publish.ObjectStore, error) {
			called = true
			return &memStore{}, nil
		},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Planned != 2 || rr.Summary.Copied != 0 {
		t.Fatalf("dry-run summary 不符合预期：%+v", rr.Summary)
	}
	if called {
		t.Fatalf("dry-run 不应发布")
	}
	if ok, _ := afero.Exists(fs, "/dst"); ok {
		t.Fatalf("dry-run 不应创建目标目录")
	}
}

func TestExecute_StoreInitFailureMarksPublishFailed(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs)

	eff := baseConfig("/src", "/dst")
	eff.Publish = config.PublishSettings{Bucket: "videos"}

	rr, err := Execute(context.Background(), eff, Deps{
		Fs: fs,
		NewStore: func(ctx context.Context, opt publish.S3Options) (publish.ObjectStore, error) {
			return nil, errors.New("no credentials")
		},
	})
	if err != nil {
		t.Fatalf("发布失败不应让运行失败：%v", err)
	}
	if rr.Summary.Copied != 2 || rr.Summary.PublishFailed != 2 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	for _, f := range rr.Files {
		if f.Status == domain.StatusCopied && f.PublishCode != domain.ErrCodePublishFailed {
			t.Fatalf("copied 条目应标记 publish_failed：%+v", f)
		}
	}
}

func TestExecute_SetupErrorIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs)
	if err := afero.WriteFile(fs, "/dst", []byte("file"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	eff := baseConfig("/src", "/dst")
	eff.ReportPath = "/reports/run.json"

	_, err := Execute(context.Background(), eff, Deps{Fs: fs})
	if !collect.IsSetupError(err) {
		t.Fatalf("期望 SetupError，实际：%T %v", err, err)
	}
	if ok, _ := afero.Exists(fs, "/reports/run.json"); ok {
		t.Fatalf("准备失败时不应写 report")
	}
}

func TestExecute_MetricsTextfile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.mp4"), []byte("A"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	eff := baseConfig(src, filepath.Join(root, "dst"))
	eff.MetricsFile = filepath.Join(root, "metrics", "vidcollect.prom")

	if _, err := Execute(context.Background(), eff, Deps{}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(eff.MetricsFile)
	if err != nil {
		t.Fatalf("metrics 未写出：%v", err)
	}
	if !strings.Contains(string(b), `vidcollect_files_total{status="copied"} 1`) {
		t.Fatalf("metrics 内容不符合预期：\n%s", b)
	}
}

func TestExecute_CancelledWritesPartialReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eff := baseConfig("/src", "/dst")
	eff.ReportPath = "/reports/run.json"

	_, err := Execute(ctx, eff, Deps{Fs: fs})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际：%v", err)
	}
	if ok, _ := afero.Exists(fs, "/reports/run.json"); !ok {
		t.Fatalf("取消时仍应写出部分 report")
	}
}
