package collect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/app/planner"
	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/infra/fsx"
	"github.com/John-Robertt/vidcollect/internal/scan"
)

// SetupError 表示目标目录无法准备（不存在且无法创建，或路径被普通文件占用）。
// 这是唯一会让 Collect 在遍历之前失败的错误。
type SetupError struct {
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("无法准备目标目录 %q：%v", e.Path, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func IsSetupError(err error) bool {
	var e *SetupError
	return errors.As(err, &e)
}

// Collector 把源目录树中命中扩展名的文件复制到一个扁平的目标目录。
//
// 零值字段的含义：
// - Fs 为 nil：使用 afero.NewOsFs()
// - Extensions 零值：默认视频扩展名集合
// - Observer 为 nil：不发事件，结果不变
type Collector struct {
	Fs          afero.Fs
	Extensions  domain.ExtensionSet
	ExcludeDirs []string

	DryRun        bool
	Verify        bool
	PreserveTimes bool

	Logger   zerolog.Logger
	Observer Observer
}

// Collect 执行一次收集并返回 RunReport。
//
// 单个文件的失败只记录在对应 FileResult 中，不中止运行；
// 返回非 nil 错误的情况只有：
// - 目标目录准备失败（*SetupError），此时没有任何文件被处理
// - ctx 被取消（返回已处理部分的报告 + ctx.Err()）
func (c *Collector) Collect(ctx context.Context, src, dst string) (domain.RunReport, error) {
	fs := c.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	log := c.Logger

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("解析源目录失败：%w", err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return domain.RunReport{}, &SetupError{Path: dst, Err: err}
	}

	rr := domain.RunReport{
		Source:      absSrc,
		Destination: absDst,
		DryRun:      c.DryRun,
		StartedAt:   time.Now().UTC(),
		Files:       make([]domain.FileResult, 0, 64),
	}

	if c.Observer != nil {
		c.Observer.OnStart(absSrc, absDst, c.DryRun)
	}

	// dry-run 不创建目录；但目标被普通文件占用时仍要报出来。
	if c.DryRun {
		if fi, err := fs.Stat(absDst); err == nil && !fi.IsDir() {
			return finish(rr), &SetupError{Path: absDst, Err: &fsx.PathTypeConflictError{Path: absDst, Want: "dir", Got: "file"}}
		}
	} else if err := fsx.EnsureDir(fs, absDst); err != nil {
		return finish(rr), &SetupError{Path: absDst, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return finish(rr), err
	}

	claims := planner.NewClaims()
	opt := scan.Options{
		Extensions:  c.Extensions,
		ExcludeDirs: c.ExcludeDirs,
		OnError: func(path string, err error) {
			log.Warn().Err(err).Str("path", path).Msg("遍历时跳过不可读路径")
		},
	}

	err = scan.Walk(fs, absSrc, opt, func(v domain.VideoFile) error {
		// 取消只在文件之间检查：正在进行的复制总能完整结束（或完整回滚临时文件）。
		if err := ctx.Err(); err != nil {
			return err
		}

		res := c.collectOne(fs, v, absDst, claims)
		rr.Files = append(rr.Files, res)

		ev := log.Debug()
		if res.Status == domain.StatusFailed {
			ev = log.Warn()
		}
		ev.Str("src", res.Src).Str("dst", res.Dst).Str("status", res.Status).Str("error_code", res.ErrorCode).Msg("文件处理完成")

		if c.Observer != nil {
			c.Observer.OnFileDone(len(rr.Files), res)
		}
		return nil
	})
	if err != nil {
		rr = finish(rr)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			log.Warn().Int("processed", len(rr.Files)).Msg("运行被取消")
			return rr, ctxErr
		}
		return rr, fmt.Errorf("遍历源目录失败：%w", err)
	}

	rr = finish(rr)
	if c.Observer != nil {
		c.Observer.OnFinish(rr)
	}
	return rr, nil
}

func (c *Collector) collectOne(fs afero.Fs, v domain.VideoFile, dstDir string, claims *planner.Claims) domain.FileResult {
	dst := filepath.Join(dstDir, v.Name)
	res := domain.FileResult{
		Src:  v.AbsPath,
		Dst:  dst,
		Size: v.Size,
	}

	if c.DryRun {
		same, err := fsx.SameFile(fs, v.AbsPath, dst)
		switch {
		case err != nil:
			fillError(&res, err)
		case same:
			fillError(&res, &fsx.SameFileError{Src: v.AbsPath, Dst: dst})
		default:
			res.Status = domain.StatusPlanned
			c.claim(claims, v.Name, &res)
		}
		return res
	}

	cr, err := fsx.CopyFile(fs, v.AbsPath, dstDir, fsx.CopyOptions{
		PreserveTimes: c.PreserveTimes,
		Verify:        c.Verify,
	})
	if err != nil {
		fillError(&res, err)
		return res
	}

	res.Status = domain.StatusCopied
	res.Dst = cr.Dst
	res.Size = cr.Size
	res.SHA256 = cr.SHA256
	c.claim(claims, v.Name, &res)
	return res
}

// claim 只标记不改名：扁平目录下 last-writer-wins 的行为保持不变。
func (c *Collector) claim(claims *planner.Claims, name string, res *domain.FileResult) {
	prev, overwrote := claims.Claim(name, res.Src)
	if !overwrote {
		return
	}
	res.Overwrote = true
	c.Logger.Warn().
		Str("dst", res.Dst).
		Str("previous_src", prev).
		Str("src", res.Src).
		Msg("同名文件覆盖了本次运行早先复制的另一个源文件")
}

func fillError(res *domain.FileResult, err error) {
	res.ErrorMsg = err.Error()
	switch {
	case fsx.IsSameFile(err):
		res.Status = domain.StatusSkipped
		res.ErrorCode = domain.ErrCodeSameFile
		res.ErrorMsg = "源与目标是同一文件"
	case fsx.IsPathTypeConflict(err):
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeTargetConflict
	case fsx.IsVerify(err):
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeVerifyFailed
	default:
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeCopyFailed
	}
}

func finish(rr domain.RunReport) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}
