package publish

import (
	"context"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/domain"
)

// ObjectStore 是发布目标的最小抽象（S3 或测试替身）。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// 部分平台的 mime 表缺少这些视频类型。
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
}

// ContentType 按扩展名推断 Content-Type。
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// ObjectKey 返回 <prefix>/<name>；prefix 为空时就是 name。
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Publisher 把本次运行复制成功的文件上传到对象存储。
type Publisher struct {
	Fs     afero.Fs
	Store  ObjectStore
	Prefix string
	Logger zerolog.Logger
}

// Publish 按顺序上传 rr 中 status=copied 的文件，把结果写回对应 FileResult，并重算 summary。
//
// - 单个文件上传失败只记录 publish_error_code，不改变其 copied 状态
// - 同一目标名在本次运行中被覆盖过：只上传最后一次写入（较早的条目不再对应磁盘内容）
// - ctx 取消时停止，返回 ctx.Err()
func (p *Publisher) Publish(ctx context.Context, rr *domain.RunReport) error {
	fs := p.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	last := make(map[string]int, len(rr.Files))
	for i, f := range rr.Files {
		if f.Status == domain.StatusCopied {
			last[f.Dst] = i
		}
	}

	defer rr.Finalize()
	for i := range rr.Files {
		f := &rr.Files[i]
		if f.Status != domain.StatusCopied || last[f.Dst] != i {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		key := ObjectKey(p.Prefix, filepath.Base(f.Dst))
		if err := p.putFile(ctx, fs, f.Dst, key); err != nil {
			f.PublishCode = domain.ErrCodePublishFailed
			f.PublishMsg = err.Error()
			p.Logger.Warn().Err(err).Str("dst", f.Dst).Str("key", key).Msg("上传失败")
			continue
		}
		f.Object = key
		p.Logger.Debug().Str("dst", f.Dst).Str("key", key).Msg("已上传")
	}
	return nil
}

func (p *Publisher) putFile(ctx context.Context, fs afero.Fs, name, key string) error {
	f, err := fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return p.Store.Put(ctx, key, f, fi.Size(), ContentType(name))
}
