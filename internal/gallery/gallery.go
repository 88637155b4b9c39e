package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/John-Robertt/vidcollect/internal/domain"
	"github.com/John-Robertt/vidcollect/internal/infra/fsx"
)

const (
	JSONName = "videos.json"
	HTMLName = "index.html"
)

// Video 是 gallery 中的一条视频；JSON 字段名与前端 /api/videos 的约定一致。
type Video struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	File       string `json:"file"`
	ArxivLink  string `json:"arxivLink,omitempty"`
	ArxivTitle string `json:"arxivTitle,omitempty"`
	CreatedAt  string `json:"createdAt"`
	Size       int64  `json:"size"`
}

// Annotation 是可在 index.html 中手工编辑、重新生成时需要保留的字段。
type Annotation struct {
	Title      string
	ArxivLink  string
	ArxivTitle string
}

type Options struct {
	// URLPrefix 已规范化（无结尾 /）；空串表示站点根。
	URLPrefix  string
	Extensions domain.ExtensionSet
}

// Build 根据目标目录（扁平）当前的视频文件构建条目，按文件名排序。
// 若目录中已有 index.html，则沿用其中的标题与 arXiv 链接。
func Build(fs afero.Fs, dir string, opt Options) ([]Video, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}

	ann, err := readExistingAnnotations(fs, filepath.Join(dir, HTMLName))
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(entries))
	for _, fi := range entries {
		if !fi.Mode().IsRegular() || !opt.Extensions.Match(fi.Name()) {
			continue
		}
		name := fi.Name()
		u := opt.URLPrefix + "/" + url.PathEscape(name)

		v := Video{
			ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(u)).String(),
			Title:     TitleFromName(name),
			URL:       u,
			File:      name,
			CreatedAt: fi.ModTime().UTC().Format("2006-01-02"),
			Size:      fi.Size(),
		}
		if a, ok := ann[name]; ok {
			if a.Title != "" {
				v.Title = a.Title
			}
			v.ArxivLink = a.ArxivLink
			v.ArxivTitle = a.ArxivTitle
		}
		videos = append(videos, v)
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].File < videos[j].File })
	return videos, nil
}

// TitleFromName 去掉扩展名，把 _ - . 视为分隔符。
func TitleFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	t := strings.Join(strings.Fields(base), " ")
	if t == "" {
		return name
	}
	return t
}

// ReadAnnotations 从先前生成的 index.html 中读回 data-file -> 可编辑字段。
func ReadAnnotations(r io.Reader) (map[string]Annotation, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	out := map[string]Annotation{}
	doc.Find("li.video[data-file]").Each(func(_ int, s *goquery.Selection) {
		file := strings.TrimSpace(s.AttrOr("data-file", ""))
		if file == "" {
			return
		}
		link := s.Find("a.arxiv").First()
		out[file] = Annotation{
			Title:      normSpace(s.Find(".title").First().Text()),
			ArxivLink:  strings.TrimSpace(link.AttrOr("href", "")),
			ArxivTitle: normSpace(link.Text()),
		}
	})
	return out, nil
}

func readExistingAnnotations(fs afero.Fs, path string) (map[string]Annotation, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Annotation{}, nil
		}
		return nil, err
	}
	defer f.Close()

	ann, err := ReadAnnotations(f)
	if err != nil {
		return nil, fmt.Errorf("解析已有 %s 失败：%w", HTMLName, err)
	}
	return ann, nil
}

var pageTmpl = template.Must(template.New("gallery").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Generated Videos</title>
<style>
body{margin:0;font-family:system-ui,sans-serif;background:#0f172a;color:#e2e8f0}
h1{padding:24px;margin:0;color:#22d3ee}
ul.videos{list-style:none;display:grid;grid-template-columns:repeat(auto-fill,minmax(320px,1fr));gap:24px;padding:0 24px 24px;margin:0}
li.video{background:#1e293b;border-radius:12px;overflow:hidden}
li.video video{width:100%;aspect-ratio:16/9;background:#000}
li.video .title{font-size:1.1rem;margin:12px 16px 4px}
li.video a.arxiv{display:block;margin:0 16px;color:#2dd4bf}
li.video time{display:block;margin:4px 16px 12px;color:#94a3b8;font-size:.85rem}
</style>
</head>
<body>
<h1>Generated Videos</h1>
<ul class="videos">
{{- range .}}
<li class="video" data-id="{{.ID}}" data-file="{{.File}}">
<video controls preload="metadata" src="{{.URL}}"></video>
<h2 class="title">{{.Title}}</h2>
{{- if .ArxivLink}}
<a class="arxiv" href="{{.ArxivLink}}" target="_blank" rel="noopener">{{.ArxivTitle}}</a>
{{- end}}
<time datetime="{{.CreatedAt}}">{{.CreatedAt}}</time>
</li>
{{- end}}
</ul>
</body>
</html>
`))

// RenderHTML 渲染静态 gallery 页面。
func RenderHTML(videos []Video) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, videos); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderJSON 输出 /api/videos 形态的数组（空列表为 []）。
func RenderJSON(videos []Video) ([]byte, error) {
	if videos == nil {
		videos = []Video{}
	}
	b, err := json.MarshalIndent(videos, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Generate 重新生成 dir 下的 videos.json 与 index.html（均为原子替换）。
func Generate(fs afero.Fs, dir string, opt Options) ([]Video, error) {
	videos, err := Build(fs, dir, opt)
	if err != nil {
		return nil, err
	}

	jb, err := RenderJSON(videos)
	if err != nil {
		return nil, err
	}
	hb, err := RenderHTML(videos)
	if err != nil {
		return nil, err
	}

	if err := fsx.WriteFileAtomicReplace(fs, dir, JSONName, jb); err != nil {
		return nil, fmt.Errorf("写入 %s 失败：%w", JSONName, err)
	}
	if err := fsx.WriteFileAtomicReplace(fs, dir, HTMLName, hb); err != nil {
		return nil, fmt.Errorf("写入 %s 失败：%w", HTMLName, err)
	}
	return videos, nil
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
