// internal/services/notifier.go
package services

import "sync"

// AssetsObserver 资产变更观察者
// 收到通知后应整体重新拉取资产列表：这是一个粗粒度的
// invalidate-all 信号，不携带增量差异
type AssetsObserver interface {
	OnAssetsChanged()
}

// Notifier 资产变更通知器
// 替代源行为中的 fire-and-forget 自定义事件：
// 订阅接口显式、消息语义固定为"资产有变化，请重新拉取"
type Notifier struct {
	mu        sync.RWMutex
	observers []AssetsObserver
}

// NewNotifier 创建通知器
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe 订阅资产变更通知
func (n *Notifier) Subscribe(observer AssetsObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.observers = append(n.observers, observer)
}

// Unsubscribe 取消订阅
func (n *Notifier) Unsubscribe(observer AssetsObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, o := range n.observers {
		if o == observer {
			n.observers = append(n.observers[:i], n.observers[i+1:]...)
			break
		}
	}
}

// NotifyAssetsChanged 广播资产变更
// 同步调用所有观察者，观察者自己负责不阻塞
func (n *Notifier) NotifyAssetsChanged() {
	n.mu.RLock()
	observers := make([]AssetsObserver, len(n.observers))
	copy(observers, n.observers)
	n.mu.RUnlock()

	for _, observer := range observers {
		observer.OnAssetsChanged()
	}
}
