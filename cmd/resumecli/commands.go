package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"resume-agent-go/internal/enricher/github"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/session"
	"resume-agent-go/internal/types"
	"resume-agent-go/internal/workflow"
	"resume-agent-go/pkg/utils"
)

var errArgs = errors.New("参数错误")

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	return utils.TruncateRunes(s, n, "...(已截断，使用 --maxlen 显示更多)")
}

func runExtract(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	maxLen := fs.Int("maxlen", 1000, "显示的文本最大长度，-1 显示全部")
	save := fs.String("save", "", "保存提取的文本到文件")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: extract 需要一个文件路径", errArgs)
	}

	start := time.Now()
	doc, err := a.comp.Loader.Load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "提取完成! 格式: %s, 耗时: %v\n", doc.Format, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(a.out, "\n===== 提取的文本 (总计 %d 字符) =====\n%s\n", len([]rune(doc.Text)), truncate(doc.Text, *maxLen))

	if len(doc.Hyperlinks) > 0 {
		fmt.Fprintln(a.out, "\n===== 超链接 =====")
		for cat, urls := range doc.LinksByCategory() {
			fmt.Fprintf(a.out, "%s: %s\n", cat, strings.Join(urls, ", "))
		}
	}
	if *save != "" {
		if err := os.WriteFile(*save, []byte(doc.Text), 0o644); err != nil {
			return fmt.Errorf("保存到文件失败: %w", err)
		}
		fmt.Fprintf(a.out, "文本已保存到: %s\n", *save)
	}
	return nil
}

func runSegment(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("segment", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "以JSON输出分块")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: segment 需要一个文件路径", errArgs)
	}
	doc, err := a.comp.Loader.Load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	sections, contact := a.comp.Segmenter.Split(doc)
	if *asJSON {
		return printJSON(a, map[string]any{"contact_info": contact, "sections": sections})
	}

	fmt.Fprintln(a.out, parser.FormatContactInfo(contact))
	fmt.Fprintf(a.out, "\n共 %d 个分块, 章节: %v\n", len(sections), parser.SectionNames(sections))
	for _, s := range sections {
		fmt.Fprintf(a.out, "\n--- [%s %d/%d] ---\n%s\n", s.Name, s.ChunkIndex+1, s.TotalChunks, s.Text)
	}
	return nil
}

func runGitHub(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("github", pflag.ContinueOnError)
	out := fs.String("out", "", "保存JSON结果到文件")
	maxRepos := fs.Int("max-repos", 0, "单个用户拉取的仓库上限 (0 使用配置值)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: github 需要至少一个链接或用户名", errArgs)
	}

	var links, users []string
	for _, arg := range fs.Args() {
		if strings.Contains(arg, "github.com") {
			links = append(links, arg)
		} else {
			users = append(users, arg)
		}
	}

	result := map[string]any{}
	if len(links) > 0 {
		analysis := a.comp.GitHub.AnalyzeLinks(ctx, links)
		fmt.Fprintln(a.out, github.Report(strings.Join(links, ", "), analysis, time.Now()))
		result["analysis"] = analysis
	}
	if len(users) > 0 {
		reports := make(map[string]*types.GitHubUserReport, len(users))
		for _, u := range users {
			r := a.comp.GitHub.ParseUser(ctx, u, *maxRepos)
			reports[u] = r
			fmt.Fprintln(a.out, github.UserReport(r))
		}
		result["users"] = reports
	}

	if *out != "" {
		if err := writeJSON(*out, result); err != nil {
			return fmt.Errorf("保存JSON失败: %w", err)
		}
		fmt.Fprintf(a.out, "💾 结果已保存到: %s\n", *out)
	}
	return nil
}

func runLinkedIn(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: linkedin 需要一个简历文件或链接", errArgs)
	}
	target := args[0]
	var analysis *types.LinkedInAnalysis
	if _, err := os.Stat(target); err == nil {
		doc, err := a.comp.Loader.Load(ctx, target)
		if err != nil {
			return err
		}
		_, contact := a.comp.Segmenter.Split(doc)
		analysis = a.comp.LinkedIn.AnalyzeContact(ctx, contact)
	} else {
		analysis = a.comp.LinkedIn.Analyze(ctx, target)
	}
	if err := printJSON(a, analysis); err != nil {
		return err
	}
	if analysis.Summary != "" {
		fmt.Fprintf(a.out, "\n===== Professional Summary =====\n%s\n", analysis.Summary)
	}
	return nil
}

func runUsers(ctx context.Context, a *app, _ []string) error {
	users, err := a.comp.Builder.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(a.out, "没有已持久化的用户")
		return nil
	}
	for _, u := range users {
		fmt.Fprintln(a.out, u)
	}
	return nil
}

func runAsk(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("ask", pflag.ContinueOnError)
	question := fs.StringP("query", "q", "", "第一个问题，为空时从标准输入读取")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: ask 需要一个简历文件", errArgs)
	}
	wf, err := a.comp.RequireWorkflow()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	return askLoop(ctx, a, wf, path, *question)
}

func askLoop(ctx context.Context, a *app, runner session.Runner, path, first string) error {
	scanner := bufio.NewScanner(a.in)
	next := func() (string, bool) {
		for {
			fmt.Fprint(a.out, "\n❓ 问题 (exit 退出): ")
			if !scanner.Scan() {
				return "", false
			}
			q := strings.TrimSpace(scanner.Text())
			switch strings.ToLower(q) {
			case "":
				continue
			case "exit", "quit", "q":
				return "", false
			}
			return q, true
		}
	}

	query := strings.TrimSpace(first)
	if query == "" {
		var ok bool
		if query, ok = next(); !ok {
			return nil
		}
	}

	state := runner.Run(ctx, workflow.NewState(uuid.New().String(), path, query))
	defer state.Close()
	fmt.Fprintf(a.out, "\n💬 %s\n", state.Answer)
	if state.Stage == workflow.StageFailed && state.Index == nil {
		return state.Err
	}

	for {
		q, ok := next()
		if !ok || ctx.Err() != nil {
			return nil
		}
		state = runner.Continue(ctx, state, q)
		fmt.Fprintf(a.out, "\n💬 %s\n", state.Answer)
	}
}
