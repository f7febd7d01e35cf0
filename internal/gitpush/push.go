// Package gitpush publishes the output directory to a remote repository.
// Before any remote write, every emitted byte is re-scanned for residual
// secrets; a single hit aborts the push.
package gitpush

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/marrusl/yoinkc/internal/hostexec"
	"github.com/marrusl/yoinkc/internal/logger"
	"github.com/marrusl/yoinkc/internal/redact"
	"github.com/marrusl/yoinkc/internal/yerrors"
)

const apiBase = "https://api.github.com"

// Options configure one push.
type Options struct {
	Repo    string // owner/name
	Token   string // falls back to GITHUB_TOKEN
	Public  bool   // repositories are private unless explicitly opted in
	Yes     bool   // skip the interactive confirmation
	Confirm func(prompt string) bool
}

// Stats summarize what would be pushed, shown before confirmation.
type Stats struct {
	SizeBytes  int64
	FileCount  int
	FixmeCount int
}

// CollectStats walks the output directory.
func CollectStats(outputDir string) Stats {
	var stats Stats
	_ = filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		stats.FileCount++
		stats.SizeBytes += info.Size()
		if data, rerr := os.ReadFile(path); rerr == nil {
			stats.FixmeCount += bytes.Count(data, []byte("FIXME"))
		}
		return nil
	})
	return stats
}

// Pusher runs the git plumbing through the executor and the GitHub API
// through a retrying HTTP client.
type Pusher struct {
	Exec hostexec.Executor
	Log  logger.Logger
}

func (p *Pusher) git(ctx context.Context, dir string, args ...string) error {
	argv := append([]string{"git", "-C", dir}, args...)
	res, err := p.Exec.Run(ctx, argv)
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("git %s exited %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ensureRepo creates the remote repository when it does not exist yet.
// Created repositories default to private.
func (p *Pusher) ensureRepo(opts Options) error {
	owner, name, found := strings.Cut(opts.Repo, "/")
	if !found {
		return fmt.Errorf("repository must be owner/name, got %q", opts.Repo)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	get, err := retryablehttp.NewRequest("GET", apiBase+"/repos/"+owner+"/"+name, nil)
	if err != nil {
		return err
	}
	get.Header.Set("Authorization", "Bearer "+opts.Token)
	get.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(get)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"name":    name,
		"private": !opts.Public,
	})
	post, err := retryablehttp.NewRequest("POST", apiBase+"/user/repos", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	post.Header.Set("Authorization", "Bearer "+opts.Token)
	post.Header.Set("Accept", "application/vnd.github+json")
	post.Header.Set("Content-Type", "application/json")
	resp, err = client.Do(post)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		return fmt.Errorf("repository creation returned HTTP %d", resp.StatusCode)
	}
	visibility := "private"
	if opts.Public {
		visibility = "public"
	}
	p.Log.WithField("repo", opts.Repo).Info("created " + visibility + " repository")
	return nil
}

// Push re-scans the output for residual secrets, confirms with the operator,
// then commits and pushes. A residual secret is fatal and nothing is written
// remotely.
func (p *Pusher) Push(ctx context.Context, outputDir string, opts Options) error {
	token := opts.Token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return yerrors.New(yerrors.KindPush, "no GitHub token").
			WithSolutions("pass --github-token TOKEN", "or set GITHUB_TOKEN in the environment")
	}
	opts.Token = token

	// Belt and braces: the redaction pass already ran, but nothing leaves
	// this machine without a second scan over the emitted bytes.
	if hit, err := redact.ScanDir(outputDir); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "residual-secret scan failed", err)
	} else if hit != "" {
		return yerrors.New(yerrors.KindPush, "residual secret detected in "+hit+" — push aborted").
			WithSolutions("inspect the file and remove the secret", "re-run inspection so the redaction pass covers it")
	}

	stats := CollectStats(outputDir)
	if !opts.Yes {
		prompt := fmt.Sprintf("Push %d files (%.1f KB, %d FIXMEs) to %s? [y/N] ",
			stats.FileCount, float64(stats.SizeBytes)/1024, stats.FixmeCount, opts.Repo)
		confirm := opts.Confirm
		if confirm == nil {
			confirm = stdinConfirm
		}
		if !confirm(prompt) {
			return yerrors.New(yerrors.KindPush, "push cancelled by operator")
		}
	}

	if err := p.ensureRepo(opts); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "cannot ensure remote repository", err)
	}

	if !isDirFn(filepath.Join(outputDir, ".git")) {
		if err := p.git(ctx, outputDir, "init"); err != nil {
			return yerrors.Wrap(yerrors.KindPush, "git init failed", err)
		}
	}
	if err := p.git(ctx, outputDir, "add", "-A"); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "git add failed", err)
	}
	if err := p.git(ctx, outputDir, "commit", "-m", "Inspection output", "--allow-empty"); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "git commit failed", err)
	}
	remote := "https://x-access-token:" + token + "@github.com/" + opts.Repo + ".git"
	_ = p.git(ctx, outputDir, "remote", "remove", "origin")
	if err := p.git(ctx, outputDir, "remote", "add", "origin", remote); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "git remote add failed", err)
	}
	if err := p.git(ctx, outputDir, "push", "-u", "origin", "HEAD"); err != nil {
		return yerrors.Wrap(yerrors.KindPush, "git push failed", err)
	}
	p.Log.WithField("repo", opts.Repo).Info("pushed output")
	return nil
}

func stdinConfirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func isDirFn(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
