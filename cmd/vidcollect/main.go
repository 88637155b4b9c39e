package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/vidcollect/internal/app/run"
	"github.com/John-Robertt/vidcollect/internal/config"
	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/logging"
	"github.com/John-Robertt/vidcollect/internal/scan"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vidcollect",
		Short: "把目录树中的视频文件收集到一个扁平目录",
		Long: `vidcollect 递归扫描源目录，把扩展名命中视频集合的文件复制到目标目录（扁平，不保留子目录）。

示例：
  vidcollect collect ~/Movies/raw ./public/videos
  vidcollect collect --dry-run --json ~/Movies/raw ./public/videos
  vidcollect collect --config vidcollect.toml --gallery
  vidcollect scan ~/Movies/raw --ext mp4,mkv`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCollectCmd(), newScanCmd())
	return root
}

type collectFlags struct {
	configPath    string
	exts          []string
	dryRun        bool
	verify        bool
	preserveTimes bool
	gallery       bool
	jsonOut       bool
	report        string
	metricsFile   string
	logLevel      string
}

func newCollectCmd() *cobra.Command {
	var f collectFlags
	cmd := &cobra.Command{
		Use:   "collect [source] [destination]",
		Short: "复制命中的视频文件到目标目录",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "配置文件（toml|yaml|yml|json）；默认尝试 ./vidcollect.{toml,yaml,yml,json}")
	fl.StringSliceVar(&f.exts, "ext", nil, "扩展名列表，逗号分隔，可重复（默认 mp4,mkv,avi,mov,wmv,flv,webm）")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只输出计划，不写入")
	fl.BoolVar(&f.verify, "verify", false, "复制后用 SHA-256 校验目标文件")
	fl.BoolVar(&f.preserveTimes, "preserve-times", false, "保留源文件修改时间")
	fl.BoolVar(&f.gallery, "gallery", false, "在目标目录重新生成 videos.json 与 index.html")
	fl.BoolVar(&f.jsonOut, "json", false, "stdout 只输出 RunReport JSON（状态行改走 stderr）")
	fl.StringVar(&f.report, "report", "", "额外把 RunReport JSON 原子写入该路径")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "写出 Prometheus textfile")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	return cmd
}

func runCollect(cmd *cobra.Command, args []string, f collectFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}

	cli := config.CLIArgs{
		ConfigPath:       f.configPath,
		Extensions:       f.exts,
		ExtensionsSet:    cmd.Flags().Changed("ext"),
		DryRun:           f.dryRun,
		DryRunSet:        cmd.Flags().Changed("dry-run"),
		Verify:           f.verify,
		VerifySet:        cmd.Flags().Changed("verify"),
		PreserveTimes:    f.preserveTimes,
		PreserveTimesSet: cmd.Flags().Changed("preserve-times"),
		Gallery:          f.gallery,
		GallerySet:       cmd.Flags().Changed("gallery"),
		ReportPath:       f.report,
		MetricsFile:      f.metricsFile,
		LogLevel:         f.logLevel,
	}
	if len(args) > 0 {
		cli.Source = args[0]
	}
	if len(args) > 1 {
		cli.Destination = args[1]
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		if f.jsonOut {
			emitJSON(stdout, reportForConfigError(cwd, cli, err))
		}
		return err
	}

	logger := logging.Setup(eff.LogLevel, stderr)
	logConfig(logger, eff)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 文本模式：状态行就是 stdout 的内容；--json：stdout 只留给报告。
	statusW := stdout
	if f.jsonOut {
		statusW = stderr
	}
	ui := newStatusUI(statusW, isTTY(statusW))
	defer ui.Close()

	rr, err := run.Execute(ctx, eff, run.Deps{
		Fs:       afero.NewOsFs(),
		Logger:   logger,
		Observer: ui,
	})
	if err != nil {
		// 取消仍输出已处理部分；目标目录准备失败没有可输出的条目。
		if len(rr.Files) > 0 || f.jsonOut {
			rr.Finalize()
			emitReport(stdout, stderr, f.jsonOut, rr)
		}
		return err
	}

	emitReport(stdout, stderr, f.jsonOut, rr)
	if eff.ReportPath != "" {
		fmt.Fprintf(stderr, "report: %s\n", eff.ReportPath)
	}
	return nil
}

func logConfig(logger zerolog.Logger, eff config.EffectiveConfig) {
	for _, w := range eff.Warnings {
		logger.Warn().Str("config", eff.ConfigFile).Msg(w)
	}
	ev := logger.Debug().
		Str("source", eff.Source).
		Str("destination", eff.Destination).
		Str("extensions", eff.Extensions.String()).
		Strs("exclude_dirs", eff.ExcludeDirs).
		Bool("dry_run", eff.DryRun).
		Bool("verify", eff.Verify).
		Bool("gallery", eff.Gallery.Enabled)
	if eff.ConfigFile != "" {
		ev = ev.Str("config", eff.ConfigFile)
	}
	if eff.Publish.Enabled() {
		// 凭证不进日志。
		ev = ev.Str("bucket", eff.Publish.Bucket).Str("prefix", eff.Publish.Prefix).Str("endpoint", eff.Publish.Endpoint)
	}
	ev.Msg("配置（生效）")
}

func emitReport(stdout, stderr io.Writer, jsonOut bool, rr domain.RunReport) {
	if !jsonOut {
		fmt.Fprintln(stdout, summaryLine(rr))
		return
	}
	// --json：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）。
	emitJSON(stdout, rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func emitJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// reportForConfigError 让 --json 的调用方在配置失败时也能拿到一个可解析的报告。
func reportForConfigError(cwd string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	src := cli.Source
	if src != "" && !filepath.IsAbs(src) {
		src = filepath.Join(cwd, src)
	}
	rr := domain.RunReport{
		Source:     src,
		DryRun:     cli.DryRunSet && cli.DryRun,
		StartedAt:  now,
		FinishedAt: now,
		Files: []domain.FileResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

type scanFlags struct {
	configPath string
	exts       []string
	jsonOut    bool
	logLevel   string
}

func newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [source]",
		Short: "列出源目录中命中的视频文件（只读）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "配置文件（toml|yaml|yml|json）")
	fl.StringSliceVar(&f.exts, "ext", nil, "扩展名列表，逗号分隔，可重复")
	fl.BoolVar(&f.jsonOut, "json", false, "输出 JSON 数组")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	return cmd
}

func runScan(cmd *cobra.Command, args []string, f scanFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}
	cli := config.CLIArgs{
		ConfigPath:    f.configPath,
		Extensions:    f.exts,
		ExtensionsSet: cmd.Flags().Changed("ext"),
		LogLevel:      f.logLevel,
		SourceOnly:    true,
	}
	if len(args) > 0 {
		cli.Source = args[0]
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return err
	}
	logger := logging.Setup(eff.LogLevel, stderr)

	files, err := scan.ScanVideos(afero.NewOsFs(), eff.Source, scan.Options{
		Extensions:  eff.Extensions,
		ExcludeDirs: eff.ExcludeDirs,
		OnError: func(path string, err error) {
			logger.Warn().Err(err).Str("path", path).Msg("遍历时跳过不可读路径")
		},
	})
	if err != nil {
		return err
	}

	if f.jsonOut {
		emitJSON(stdout, files)
		return nil
	}
	var total int64
	for _, v := range files {
		total += v.Size
		fmt.Fprintf(stdout, "%12d  %s\n", v.Size, v.RelPath)
	}
	fmt.Fprintf(stdout, "共 %d 个视频文件，%d 字节\n", len(files), total)
	return nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
