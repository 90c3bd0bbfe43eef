package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"Karana-Planner/internal/intent"
	"Karana-Planner/internal/nlu"
)

// Client 通过调用本地脚本进程完成意图识别，适合离线设备或自托管模型。
// 脚本从标准输入读取 JSON 请求，向标准输出写出 JSON 结果。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewClient 创建脚本桥接客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定识别脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

// Recognize 调用外部脚本，并解析输出。
func (c *Client) Recognize(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
	payload := map[string]any{
		"utterance": req.Utterance,
		"locale":    req.Locale,
		"hints":     req.Hints,
		"timestamp": time.Now().Unix(),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("执行识别脚本失败: %v, stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	var resp struct {
		Thought string          `json:"thought"`
		Actions []intent.Action `json:"actions"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("解析识别脚本输出失败: %w", err)
	}

	return &nlu.Response{
		Actions: nlu.Normalize(resp.Actions),
		Thought: resp.Thought,
	}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
