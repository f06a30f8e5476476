package wecom

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// 消息推送 — 应用消息接口封装
// 文档: https://developer.work.weixin.qq.com/document/path/90236
// =============================================================================

// textMessageRequest 文本消息请求体
type textMessageRequest struct {
	ToUser  string `json:"touser"` // 接收人，多个用"|"分隔
	MsgType string `json:"msgtype"`
	AgentID int    `json:"agentid"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
	DuplicateCheckInterval int `json:"duplicate_check_interval,omitempty"`
}

// SendText 向指定成员推送文本消息
// userIDs为企业微信成员账号，空列表直接返回
func (c *Client) SendText(ctx context.Context, userIDs []string, content string) error {
	if len(userIDs) == 0 {
		return nil
	}

	req := textMessageRequest{
		ToUser:  strings.Join(userIDs, "|"),
		MsgType: "text",
		AgentID: c.agentID,
	}
	req.Text.Content = content

	var resp struct {
		InvalidUser string `json:"invaliduser"`
	}
	if err := c.doRequest(ctx, "POST", "/cgi-bin/message/send", req, &resp); err != nil {
		return fmt.Errorf("发送企业微信消息失败: %w", err)
	}

	// 部分账号无效不视为失败，由调用方按需记录
	if resp.InvalidUser != "" {
		return fmt.Errorf("部分接收人无效: %s", resp.InvalidUser)
	}

	return nil
}
