package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"resume-agent-go/pkg/utils"
)

var usernameUnsafeRe = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)

var genericResumeNames = map[string]bool{
	"resume":   true,
	"cv":       true,
	"document": true,
}

// DeriveUsername 由文件名得到稳定且可用作目录名的用户标识。
// 文件名没有区分度时使用 路径+修改时间+大小 的 md5 前8位；
// 无法 stat 文件时退化为时间戳。
func DeriveUsername(path string) string {
	return deriveUsername(path, time.Now)
}

func deriveUsername(path string, now func() time.Time) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := usernameUnsafeRe.ReplaceAllString(strings.ToLower(base), "_")

	if !genericResumeNames[name] && len([]rune(name)) >= 3 {
		return name
	}

	info, err := os.Stat(path)
	if err != nil {
		return "user_" + now().Format("20060102_150405")
	}
	mtime := strconv.FormatFloat(float64(info.ModTime().UnixNano())/1e9, 'f', -1, 64)
	sum := utils.CalculateMD5([]byte(fmt.Sprintf("%s_%s_%d", path, mtime, info.Size())))
	return "user_" + sum[:8]
}
