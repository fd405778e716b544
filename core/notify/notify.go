// Package notify 承载面向用户的提示消息分发。core 层只负责产生提示，
// 展示方式（toast、终端输出等）由接入方实现 Notifier 决定。
package notify

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity 提示级别。
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification 一条面向用户的提示。
type Notification struct {
	ID       string
	Severity Severity
	Message  string
	At       time.Time
}

// Notifier 由接入方实现，负责把提示呈现给用户。
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier 默认空实现。
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// FuncNotifier 允许用函数直接充当 Notifier，便于测试与简单接入。
type FuncNotifier func(n Notification)

func (f FuncNotifier) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

// New 创建带唯一 ID 与时间戳的提示。
func New(severity Severity, message string) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Severity: severity,
		Message:  message,
		At:       time.Now(),
	}
}

// ClassifySeverity 按服务端消息内容判定提示级别：
// 包含「尚未」「未注册」语义的业务失败属于引导性提示，用 warning；其余用 error。
func ClassifySeverity(message string) Severity {
	if strings.Contains(message, "尚未") || strings.Contains(message, "未注册") {
		return SeverityWarning
	}
	return SeverityError
}
