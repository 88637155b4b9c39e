package run

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/collect"
	"github.com/John-Robertt/vidcollect/internal/config"
	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/gallery"
	"github.com/John-Robertt/vidcollect/internal/infra/fsx"
	"github.com/John-Robertt/vidcollect/internal/infra/metrics"
	"github.com/John-Robertt/vidcollect/internal/publish"
)

// StoreFactory 按配置构造发布目标。
type StoreFactory func(ctx context.Context, opt publish.S3Options) (publish.ObjectStore, error)

// Deps 是 Execute 的外部依赖；零值可用（OsFs + S3 + 新 Metrics）。
type Deps struct {
	Fs       afero.Fs
	Logger   zerolog.Logger
	Observer collect.Observer

	NewStore StoreFactory
	Metrics  *metrics.Metrics
}

func defaultStore(ctx context.Context, opt publish.S3Options) (publish.ObjectStore, error) {
	return publish.NewS3Store(ctx, opt)
}

// Execute 执行一次 collect，并在非 dry-run 时依次做 gallery / publish；最后写 report 与 metrics。
//
// 返回非 nil 错误的情况只有：目标目录准备失败（collect.SetupError）与 ctx 取消。
// 其余阶段的失败都降级为日志（gallery/report/metrics）或文件级结果（publish）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.RunReport, error) {
	started := time.Now()
	fs := deps.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	log := deps.Logger

	c := &collect.Collector{
		Fs:            fs,
		Extensions:    eff.Extensions,
		ExcludeDirs:   eff.ExcludeDirs,
		DryRun:        eff.DryRun,
		Verify:        eff.Verify,
		PreserveTimes: eff.PreserveTimes,
		Logger:        log,
		Observer:      deps.Observer,
	}

	rr, err := c.Collect(ctx, eff.Source, eff.Destination)
	if err != nil {
		if collect.IsSetupError(err) {
			return rr, err
		}
		// 取消：已处理部分照常落 report，便于排查。
		writeReport(fs, log, eff.ReportPath, rr)
		return rr, err
	}
	log.Info().
		Int("copied", rr.Summary.Copied).
		Int("skipped", rr.Summary.Skipped).
		Int("failed", rr.Summary.Failed).
		Int("planned", rr.Summary.Planned).
		Int64("bytes", rr.Summary.BytesCopied).
		Msg("收集完成")

	if !eff.DryRun {
		if eff.Gallery.Enabled {
			videos, err := gallery.Generate(fs, rr.Destination, gallery.Options{
				URLPrefix:  eff.Gallery.URLPrefix,
				Extensions: eff.Extensions,
			})
			if err != nil {
				log.Error().Err(err).Str("dir", rr.Destination).Msg("生成 gallery 失败")
			} else {
				log.Info().Int("videos", len(videos)).Str("dir", rr.Destination).Msg("gallery 已更新")
			}
		}

		if eff.Publish.Enabled() {
			if err := publishCopied(ctx, fs, log, eff.Publish, deps.NewStore, &rr); err != nil {
				writeReport(fs, log, eff.ReportPath, rr)
				return rr, err
			}
		}
	}

	writeReport(fs, log, eff.ReportPath, rr)

	if eff.MetricsFile != "" {
		m := deps.Metrics
		if m == nil {
			m = metrics.New()
		}
		m.Observe(rr, time.Since(started))
		if err := m.WriteTextfile(eff.MetricsFile); err != nil {
			log.Error().Err(err).Str("path", eff.MetricsFile).Msg("写入 metrics 失败")
		}
	}
	return rr, nil
}

// publishCopied 只在 ctx 取消时返回错误；构造 store 失败会把所有 copied 条目标记为 publish_failed。
func publishCopied(ctx context.Context, fs afero.Fs, log zerolog.Logger, ps config.PublishSettings, newStore StoreFactory, rr *domain.RunReport) error {
	if newStore == nil {
		newStore = defaultStore
	}
	store, err := newStore(ctx, publish.S3Options{
		Bucket:          ps.Bucket,
		Region:          ps.Region,
		Endpoint:        ps.Endpoint,
		PathStyle:       ps.PathStyle,
		AccessKeyID:     ps.AccessKeyID,
		SecretAccessKey: ps.SecretAccessKey,
		Proxy:           ps.Proxy,
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", ps.Bucket).Msg("初始化对象存储失败")
		for i := range rr.Files {
			if rr.Files[i].Status == domain.StatusCopied {
				rr.Files[i].PublishCode = domain.ErrCodePublishFailed
				rr.Files[i].PublishMsg = err.Error()
			}
		}
		rr.Finalize()
		return nil
	}

	p := &publish.Publisher{Fs: fs, Store: store, Prefix: ps.Prefix, Logger: log}
	if err := p.Publish(ctx, rr); err != nil {
		return err
	}
	log.Info().Int("published", rr.Summary.Published).Int("failed", rr.Summary.PublishFailed).Str("bucket", ps.Bucket).Msg("发布完成")
	return nil
}

func writeReport(fs afero.Fs, log zerolog.Logger, path string, rr domain.RunReport) {
	if path == "" {
		return
	}
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("序列化 report 失败")
		return
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomicReplace(fs, filepath.Dir(path), filepath.Base(path), b); err != nil {
		log.Error().Err(err).Str("path", path).Msg("写入 report 失败")
	}
}
