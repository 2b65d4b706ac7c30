package planner

import (
	"context"
	"strings"
)

// Decision 离开页面时的选择
type Decision int

const (
	DecisionCancel Decision = iota
	DecisionSaveAndLeave
	DecisionDiscardAndLeave
)

// ParseDecision 解析页面提交的选择
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "save", "save_and_leave":
		return DecisionSaveAndLeave, true
	case "discard", "leave", "discard_and_leave":
		return DecisionDiscardAndLeave, true
	case "cancel", "stay":
		return DecisionCancel, true
	default:
		return DecisionCancel, false
	}
}

// Choice 提示框按钮
type Choice struct {
	Decision Decision `json:"decision"`
	Label    string   `json:"label"`
}

// Prompt 未保存修改提示
type Prompt struct {
	Header  string   `json:"header"`
	Message string   `json:"message"`
	Choices []Choice `json:"choices"`
}

// UnsavedChangesPrompt 页内导航时的三选一提示
var UnsavedChangesPrompt = Prompt{
	Header:  "Unsaved Changes",
	Message: "You have unsaved changes that will be lost. Do you want to save before leaving?",
	Choices: []Choice{
		{Decision: DecisionSaveAndLeave, Label: "Save & Leave"},
		{Decision: DecisionDiscardAndLeave, Label: "Leave Without Saving"},
		{Decision: DecisionCancel, Label: "Cancel"},
	},
}

// BeforeUnloadText 关闭/刷新浏览器时只能给出的通用提示
const BeforeUnloadText = "You have unsaved changes that will be lost. Are you sure you want to leave?"

// Prompter 向用户询问离开方式
type Prompter interface {
	Confirm(ctx context.Context, p Prompt) (Decision, error)
}

// PrompterFunc 函数形式的 Prompter
type PrompterFunc func(ctx context.Context, p Prompt) (Decision, error)

// Confirm 实现 Prompter
func (f PrompterFunc) Confirm(ctx context.Context, p Prompt) (Decision, error) { return f(ctx, p) }

// Guard 有未保存修改时拦截离开
type Guard struct {
	state *State
	saver *Coordinator
}

// NewGuard 创建离开拦截
func NewGuard(s *State, saver *Coordinator) *Guard {
	return &Guard{state: s, saver: saver}
}

// CanLeave 无修改直接放行；否则按用户选择保存、丢弃或留下
// 保存失败时留在页面
func (g *Guard) CanLeave(ctx context.Context, p Prompter) (bool, error) {
	if !g.state.Tracker.Dirty() {
		return true, nil
	}
	d, err := p.Confirm(ctx, UnsavedChangesPrompt)
	if err != nil {
		return false, err
	}
	switch d {
	case DecisionSaveAndLeave:
		if _, err := g.saver.Save(ctx, g.state); err != nil {
			return false, err
		}
		return true, nil
	case DecisionDiscardAndLeave:
		g.state.Tracker.Clear()
		return true, nil
	default:
		return false, nil
	}
}

// BeforeUnloadMessage 有未保存修改时返回浏览器关闭提示，否则返回空串
func (g *Guard) BeforeUnloadMessage() string {
	if !g.state.Tracker.Dirty() {
		return ""
	}
	return BeforeUnloadText
}
