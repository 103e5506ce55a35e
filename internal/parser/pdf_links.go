package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"resume-agent-go/internal/types"
)

// ExtractPDFHyperlinks 读取每页 /Annots 中 /Subtype /Link 的 /A /URI。
// 结果按分类去重 (同一分类内按 URL 保留首次出现)。
// 解析库在损坏的文件上可能 panic，这里统一转成 error，由调用方降级为空集合。
func ExtractPDFHyperlinks(path string) (links []types.Hyperlink, err error) {
	defer func() {
		if r := recover(); r != nil {
			links = nil
			err = fmt.Errorf("解析PDF链接注释时发生panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开PDF失败: %w", err)
	}
	defer f.Close()

	seen := make(map[types.LinkCategory]map[string]bool)
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		annots := page.V.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			annot := annots.Index(j)
			if annot.Key("Subtype").Name() != "Link" {
				continue
			}
			uri := strings.TrimSpace(annot.Key("A").Key("URI").RawString())
			if uri == "" {
				continue
			}
			category, desc := CategorizeLink(uri)
			if seen[category] == nil {
				seen[category] = make(map[string]bool)
			}
			if seen[category][uri] {
				continue
			}
			seen[category][uri] = true
			links = append(links, types.Hyperlink{
				URL:         uri,
				Page:        i,
				Category:    category,
				Description: desc,
			})
		}
	}
	return links, nil
}

// plainTextFromPDF eino 解析失败时的备用文本提取
func plainTextFromPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF纯文本提取panic: %v", r)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	rs, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rs); err != nil {
		return "", err
	}
	return buf.String(), nil
}
