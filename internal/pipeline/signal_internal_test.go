package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionHub_DeferredCancelCoversResubscribe(t *testing.T) {
	// 等待方在循环里退订后重订阅并覆盖cancel变量，
	// 延迟退订必须通过闭包取最新的cancel，否则最后一次订阅泄漏
	hub := NewCompletionHub()

	func() {
		_, cancel := hub.Subscribe("sess-1")
		defer func() { cancel() }()

		// 模拟收到一次完成信号后的重订阅
		cancel()
		_, cancel = hub.Subscribe("sess-1")
	}()

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.waiters, "等待方退出后不应残留订阅")
}

func TestCompletionHub_CancelRemovesOnlyOwnChannel(t *testing.T) {
	hub := NewCompletionHub()

	_, cancel1 := hub.Subscribe("sess-1")
	ch2, cancel2 := hub.Subscribe("sess-1")
	defer cancel2()

	cancel1()

	hub.Notify("sess-1")
	select {
	case <-ch2:
	default:
		t.Fatal("剩余订阅者应被广播唤醒")
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	assert.Empty(t, hub.waiters)
}
