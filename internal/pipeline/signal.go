package pipeline

import "sync"

// CompletionHub 是子流水线完成事件的进程内广播器。
// 报告生成等待方订阅会话，任一子流水线记录进入终态后广播唤醒，
// 等待方被唤醒后重新检查数据库状态。
// 仅作为加速信号使用，正确性始终由数据库状态保证。
type CompletionHub struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// NewCompletionHub 创建完成事件广播器
func NewCompletionHub() *CompletionHub {
	return &CompletionHub{
		waiters: make(map[string][]chan struct{}),
	}
}

// Subscribe 订阅会话的完成事件。
// 返回的通道在下一次广播时关闭；cancel用于提前退订。
func (h *CompletionHub) Subscribe(sessionID string) (<-chan struct{}, func()) {
	ch := make(chan struct{})

	h.mu.Lock()
	h.waiters[sessionID] = append(h.waiters[sessionID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		chans := h.waiters[sessionID]
		for i, c := range chans {
			if c == ch {
				h.waiters[sessionID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(h.waiters[sessionID]) == 0 {
			delete(h.waiters, sessionID)
		}
	}
	return ch, cancel
}

// Notify 广播会话的完成事件，唤醒全部订阅者
func (h *CompletionHub) Notify(sessionID string) {
	h.mu.Lock()
	chans := h.waiters[sessionID]
	delete(h.waiters, sessionID)
	h.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
}
