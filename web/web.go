package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// 页面名称
const (
	PageSites   = "sites.html"
	PageForm    = "form.html"
	PageTimeout = "timeout.html"
)

// RenderBytes 先写入缓冲区，渲染失败时不会输出半个页面
func RenderBytes(page string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, page, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", page, err)
	}
	return buf.Bytes(), nil
}
