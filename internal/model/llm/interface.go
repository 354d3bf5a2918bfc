package llm

import (
	"context"
	"fmt"
)

// Client 推理客户端接口；规划器唯一的模型入口
type Client interface {
	// Chat 聊天补全
	Chat(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// NewClient 创建推理客户端；所有 OpenAI 兼容端点（本地 vLLM/Ollama 网关等）走同一实现
func NewClient(provider, model, apiKey, baseURL string) (Client, error) {
	switch provider {
	case "", "openai", "local":
		return NewOpenAIClient(model, apiKey, baseURL)
	default:
		return nil, fmt.Errorf("unsupported inference provider: %s", provider)
	}
}
