package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"resume-agent-go/internal/config"
	appCoreLogger "resume-agent-go/internal/logger"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
)

const usage = `用法: resumecli [-c config.yaml] <命令> [参数]

命令:
  extract  <file>                 提取简历文本与超链接
  segment  <file>                 切分章节并打印联系方式
  github   <url|username>...      分析 GitHub 链接或用户 (--out 保存JSON)
  linkedin <file|url>             分析简历中或给定的 LinkedIn 链接
  users                           列出已持久化向量存储的用户
  ask      <file> [-q 问题]        分析简历并进入问答循环
`

// app 子命令共享的配置与组件
type app struct {
	cfg     *config.Config
	storage *storage.Storage
	comp    *processor.Components
	out     io.Writer
	in      io.Reader
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"extract":  runExtract,
	"segment":  runSegment,
	"github":   runGitHub,
	"linkedin": runLinkedIn,
	"users":    runUsers,
	"ask":      runAsk,
}

func main() {
	global := pflag.NewFlagSet("resumecli", pflag.ExitOnError)
	configPath := global.StringP("config", "c", "", "配置文件路径")
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "错误: 未知命令 '%s'\n\n", args[0])
		global.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer a.storage.Close()

	if err := cmd(ctx, a, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := appCoreLogger.Init(appCoreLogger.Config{
		Level:      cfg.Logger.Level,
		Format:     "pretty",
		TimeFormat: cfg.Logger.TimeFormat,
		File:       cfg.Logger.File,
	}); err != nil {
		return nil, err
	}
	log := appCoreLogger.Logger

	store, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	comp, err := processor.NewComponents(ctx, cfg, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, storage: store, comp: comp, out: os.Stdout, in: os.Stdin}, nil
}
