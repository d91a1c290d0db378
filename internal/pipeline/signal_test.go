package pipeline_test

import (
	"testing"
	"time"

	"assessment-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
)

func TestCompletionHub_NotifyWakesSubscribers(t *testing.T) {
	hub := pipeline.NewCompletionHub()

	ch1, cancel1 := hub.Subscribe("session-1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("session-1")
	defer cancel2()

	hub.Notify("session-1")

	for _, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("订阅者未被唤醒")
		}
	}
}

func TestCompletionHub_NotifyOtherSessionDoesNotWake(t *testing.T) {
	hub := pipeline.NewCompletionHub()

	ch, cancel := hub.Subscribe("session-1")
	defer cancel()

	hub.Notify("session-2")

	select {
	case <-ch:
		t.Fatal("不应被其他会话的信号唤醒")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCompletionHub_CancelRemovesSubscriber(t *testing.T) {
	hub := pipeline.NewCompletionHub()

	ch, cancel := hub.Subscribe("session-1")
	cancel()

	// 取消后Notify不触达已移除的通道
	hub.Notify("session-1")
	select {
	case _, open := <-ch:
		// 通道若被关闭说明取消没有生效
		assert.True(t, open, "已取消的通道不应被关闭")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCompletionHub_NotifyWithoutSubscribersIsNoop(t *testing.T) {
	hub := pipeline.NewCompletionHub()
	assert.NotPanics(t, func() {
		hub.Notify("session-without-waiters")
	})
}
