package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/infra/httpx"
	"github.com/John-Robertt/vidcollect/internal/logging"
)

const (
	// ErrCodeNotFound 表示 --config 指定的配置文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示合并后仍缺少 source 或 destination。
	ErrCodeMissingPath = domain.ErrCodeConfigMissingPath
)

const (
	// DefaultURLPrefix 是 gallery 中视频 URL 的默认前缀。
	DefaultURLPrefix = "/videos"
	// DefaultRegion 在配置了 bucket 但未给 region 时使用。
	DefaultRegion = "us-east-1"
)

// DefaultFileNames 是未指定 --config 时，在 cwd 下按顺序尝试的文件名（都不存在也不报错）。
var DefaultFileNames = []string{"vidcollect.toml", "vidcollect.yaml", "vidcollect.yml", "vidcollect.json"}

// 环境变量（优先级介于 CLI 与配置文件之间）。
const (
	EnvSource            = "VIDCOLLECT_SOURCE"
	EnvDestination       = "VIDCOLLECT_DESTINATION"
	EnvExtensions        = "VIDCOLLECT_EXTENSIONS"
	EnvLogLevel          = "VIDCOLLECT_LOG_LEVEL"
	EnvS3Bucket          = "VIDCOLLECT_S3_BUCKET"
	EnvS3AccessKeyID     = "VIDCOLLECT_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "VIDCOLLECT_S3_SECRET_ACCESS_KEY"
)

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --dry-run=false 必须能覆盖 config.dry_run=true。
type CLIArgs struct {
	ConfigPath string

	Source      string
	Destination string

	Extensions    []string
	ExtensionsSet bool

	DryRun    bool
	DryRunSet bool

	Verify    bool
	VerifySet bool

	PreserveTimes    bool
	PreserveTimesSet bool

	Gallery    bool
	GallerySet bool

	ReportPath  string
	MetricsFile string
	LogLevel    string

	// SourceOnly 用于只读的 scan 子命令：不要求 destination。
	SourceOnly bool
}

// FileConfig 对应 vidcollect.{toml,yaml,yml,json} 的解析结构。
type FileConfig struct {
	Source        string         `json:"source" yaml:"source" toml:"source"`
	Destination   string         `json:"destination" yaml:"destination" toml:"destination"`
	Extensions    []string       `json:"extensions" yaml:"extensions" toml:"extensions"`
	ExcludeDirs   []string       `json:"exclude_dirs" yaml:"exclude_dirs" toml:"exclude_dirs"`
	DryRun        *bool          `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	Verify        *bool          `json:"verify" yaml:"verify" toml:"verify"`
	PreserveTimes *bool          `json:"preserve_times" yaml:"preserve_times" toml:"preserve_times"`
	Gallery       *GalleryConfig `json:"gallery" yaml:"gallery" toml:"gallery"`
	Publish       *PublishConfig `json:"publish" yaml:"publish" toml:"publish"`
	MetricsFile   string         `json:"metrics_file" yaml:"metrics_file" toml:"metrics_file"`
	Report        string         `json:"report" yaml:"report" toml:"report"`
	LogLevel      string         `json:"log_level" yaml:"log_level" toml:"log_level"`
}

type GalleryConfig struct {
	Enabled   *bool  `json:"enabled" yaml:"enabled" toml:"enabled"`
	URLPrefix string `json:"url_prefix" yaml:"url_prefix" toml:"url_prefix"`
}

type PublishConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix          string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Region          string `json:"region" yaml:"region" toml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	PathStyle       bool   `json:"path_style" yaml:"path_style" toml:"path_style"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" toml:"secret_access_key"`
	Proxy           string `json:"proxy" yaml:"proxy" toml:"proxy"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Source      string
	Destination string

	Extensions  domain.ExtensionSet
	ExcludeDirs []string

	DryRun        bool
	Verify        bool
	PreserveTimes bool

	Gallery GallerySettings
	Publish PublishSettings

	MetricsFile string
	ReportPath  string
	LogLevel    string

	// ConfigFile 是实际读取的配置文件（未读取任何文件时为空）。
	ConfigFile string
	// Warnings 收集不致命的问题（例如 TOML 中的未知键），由上层决定如何输出。
	Warnings []string
}

type GallerySettings struct {
	Enabled   bool
	URLPrefix string
}

type PublishSettings struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	// Proxy 为空时遵循 HTTP(S)_PROXY 环境变量。
	Proxy string
}

// Enabled 表示是否需要上传（只看 bucket）。
func (p PublishSettings) Enabled() bool { return p.Bucket != "" }

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：缺少 source 或 destination", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在，否则 config_not_found
// 2) 否则依次尝试 <cwd>/vidcollect.{toml,yaml,yml,json}，都不存在则只用默认值
//
// 覆盖优先级（固定）：CLI > 环境变量 VIDCOLLECT_* > 配置文件 > 默认值。
// 相对路径：配置文件里的相对配置文件所在目录；CLI/环境变量里的相对 cwd。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		warns   []string
	)

	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		var exists bool
		fc, warns, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		for _, name := range DefaultFileNames {
			p := filepath.Join(cwdAbs, name)
			f, w, exists, e := readFileConfig(p)
			if e != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: e}
			}
			if exists {
				cfgPath, fc, warns = p, f, w
				break
			}
		}
	}

	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.Warnings = warns
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	fileBase := cwdAbs
	if cfgPath != "" {
		fileBase = filepath.Dir(cfgPath)
	}

	// source / destination：CLI > env > config
	source := pick(
		layer{cli.Source, cwdAbs},
		layer{os.Getenv(EnvSource), cwdAbs},
		layer{fc.Source, fileBase},
	)
	destination := pick(
		layer{cli.Destination, cwdAbs},
		layer{os.Getenv(EnvDestination), cwdAbs},
		layer{fc.Destination, fileBase},
	)
	switch {
	case cli.SourceOnly && source == "":
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: fmt.Errorf("缺少 source（可通过参数、%s 或配置文件提供）", EnvSource)}
	case cli.SourceOnly:
	case source == "" && destination == "":
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: fmt.Errorf("缺少 source 与 destination（可通过参数、%s/%s 或配置文件提供）", EnvSource, EnvDestination)}
	case source == "":
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: fmt.Errorf("缺少 source（可通过参数、%s 或配置文件提供）", EnvSource)}
	case destination == "":
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath, Err: fmt.Errorf("缺少 destination（可通过参数、%s 或配置文件提供）", EnvDestination)}
	}

	// extensions：CLI > env > config > 默认
	var exts []string
	switch {
	case cli.ExtensionsSet:
		exts = splitList(cli.Extensions...)
	case strings.TrimSpace(os.Getenv(EnvExtensions)) != "":
		exts = splitList(os.Getenv(EnvExtensions))
	default:
		exts = splitList(fc.Extensions...)
	}

	logLevel := firstNonEmpty(cli.LogLevel, os.Getenv(EnvLogLevel), fc.LogLevel, "info")
	if _, err := logging.ParseLevel(logLevel); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	gallery := GallerySettings{URLPrefix: DefaultURLPrefix}
	if fc.Gallery != nil {
		if fc.Gallery.Enabled != nil {
			gallery.Enabled = *fc.Gallery.Enabled
		}
		if p := strings.TrimSpace(fc.Gallery.URLPrefix); p != "" {
			gallery.URLPrefix = p
		}
	}
	if cli.GallerySet {
		gallery.Enabled = cli.Gallery
	}
	prefix, err := normalizeURLPrefix(gallery.URLPrefix)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	gallery.URLPrefix = prefix

	publish, err := mergePublish(fc.Publish)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	metricsFile := ""
	if cli.MetricsFile != "" {
		metricsFile = absCleanFrom(cwdAbs, cli.MetricsFile)
	} else if fc.MetricsFile != "" {
		metricsFile = absCleanFrom(fileBase, fc.MetricsFile)
	}
	reportPath := ""
	if cli.ReportPath != "" {
		reportPath = absCleanFrom(cwdAbs, cli.ReportPath)
	} else if fc.Report != "" {
		reportPath = absCleanFrom(fileBase, fc.Report)
	}

	return EffectiveConfig{
		Source:        source,
		Destination:   destination,
		Extensions:    domain.NewExtensionSet(exts),
		ExcludeDirs:   append([]string(nil), fc.ExcludeDirs...),
		DryRun:        boolLayer(cli.DryRunSet, cli.DryRun, fc.DryRun),
		Verify:        boolLayer(cli.VerifySet, cli.Verify, fc.Verify),
		PreserveTimes: boolLayer(cli.PreserveTimesSet, cli.PreserveTimes, fc.PreserveTimes),
		Gallery:       gallery,
		Publish:       publish,
		MetricsFile:   metricsFile,
		ReportPath:    reportPath,
		LogLevel:      strings.ToLower(strings.TrimSpace(logLevel)),
		ConfigFile:    cfgPath,
	}, nil
}

func mergePublish(pc *PublishConfig) (PublishSettings, error) {
	var p PublishSettings
	if pc != nil {
		p = PublishSettings{
			Bucket:          strings.TrimSpace(pc.Bucket),
			Prefix:          strings.Trim(strings.TrimSpace(pc.Prefix), "/"),
			Region:          strings.TrimSpace(pc.Region),
			Endpoint:        strings.TrimSpace(pc.Endpoint),
			PathStyle:       pc.PathStyle,
			AccessKeyID:     strings.TrimSpace(pc.AccessKeyID),
			SecretAccessKey: strings.TrimSpace(pc.SecretAccessKey),
			Proxy:           strings.TrimSpace(pc.Proxy),
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3Bucket)); v != "" {
		p.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3AccessKeyID)); v != "" {
		p.AccessKeyID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3SecretAccessKey)); v != "" {
		p.SecretAccessKey = v
	}

	if !p.Enabled() {
		return p, nil
	}
	if p.Region == "" {
		p.Region = DefaultRegion
	}
	if p.Endpoint != "" {
		u, err := url.Parse(p.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return PublishSettings{}, fmt.Errorf("publish.endpoint 无效：%q", p.Endpoint)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return PublishSettings{}, fmt.Errorf("publish.endpoint 必须是 http/https：%q", p.Endpoint)
		}
	}
	if p.Proxy != "" {
		if _, err := httpx.ParseProxyURL(p.Proxy); err != nil {
			return PublishSettings{}, fmt.Errorf("publish.proxy 无效：%w", err)
		}
	}
	// 静态凭证必须成对出现；都为空则走默认凭证链。
	if (p.AccessKeyID == "") != (p.SecretAccessKey == "") {
		return PublishSettings{}, fmt.Errorf("publish.access_key_id 与 publish.secret_access_key 必须同时提供")
	}
	return p, nil
}

func normalizeURLPrefix(p string) (string, error) {
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("gallery.url_prefix 无效：%q", p)
		}
		return strings.TrimRight(p, "/"), nil
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("gallery.url_prefix 必须以 / 开头或是 http/https URL：%q", p)
	}
	// "/" 本身规范化为空前缀，拼接后得到 "/<name>"。
	return strings.TrimRight(p, "/"), nil
}

type layer struct {
	value string
	base  string
}

// pick 返回第一个非空层的值（相对路径按该层的 base 解析）。
func pick(layers ...layer) string {
	for _, l := range layers {
		if strings.TrimSpace(l.value) != "" {
			return absCleanFrom(l.base, l.value)
		}
	}
	return ""
}

func boolLayer(set, cli bool, file *bool) bool {
	if set {
		return cli
	}
	if file != nil {
		return *file
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// splitList 允许 "mp4,mkv" 与重复参数混用。
func splitList(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 按扩展名读取并解析配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, warns []string, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil, false, nil
		}
		return FileConfig{}, nil, false, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(b), &fc)
		if err != nil {
			return FileConfig{}, nil, true, err
		}
		for _, k := range md.Undecoded() {
			warns = append(warns, fmt.Sprintf("未知配置项：%s", k.String()))
		}
	case ".yaml", ".yml":
		if len(bytes.TrimSpace(b)) == 0 {
			return FileConfig{}, nil, true, nil
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return FileConfig{}, nil, true, err
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return FileConfig{}, nil, true, err
		}
	default:
		return FileConfig{}, nil, true, fmt.Errorf("不支持的配置文件格式：%q（可选 .toml/.yaml/.yml/.json）", filepath.Ext(path))
	}
	return fc, warns, true, nil
}
