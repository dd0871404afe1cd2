package graph

import (
	"context"
	"sync"
)

const defaultAccountConcurrency = 2

type accountSlots struct {
	active  int
	waiters []chan struct{}
}

// AccountQueue bounds concurrent in-flight upstream calls per external
// account. Waiters resume FIFO as slots free. The queue is keyed by
// normalized account id, so operations from different tenants hitting the
// same underlying account share one limit. Bookkeeping for an account is
// dropped once it has no active calls and no waiters.
type AccountQueue struct {
	mu       sync.Mutex
	limit    int
	accounts map[string]*accountSlots
}

func NewAccountQueue(limit int) *AccountQueue {
	if limit <= 0 {
		limit = defaultAccountConcurrency
	}
	return &AccountQueue{
		limit:    limit,
		accounts: make(map[string]*accountSlots),
	}
}

// Acquire claims a slot for accountID, blocking FIFO behind earlier callers
// when the account is saturated. The returned release function must be
// called exactly once. A context cancellation while waiting relinquishes
// the claim and returns ctx.Err().
func (q *AccountQueue) Acquire(ctx context.Context, accountID string) (func(), error) {
	q.mu.Lock()
	slots := q.accounts[accountID]
	if slots == nil {
		slots = &accountSlots{}
		q.accounts[accountID] = slots
	}
	if slots.active < q.limit {
		slots.active++
		q.mu.Unlock()
		return func() { q.release(accountID) }, nil
	}
	ready := make(chan struct{}, 1)
	slots.waiters = append(slots.waiters, ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return func() { q.release(accountID) }, nil
	case <-ctx.Done():
		q.abandonWait(accountID, ready)
		return nil, ctx.Err()
	}
}

// WithSlot runs fn inside an account slot.
func (q *AccountQueue) WithSlot(ctx context.Context, accountID string, fn func() error) error {
	release, err := q.Acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (q *AccountQueue) release(accountID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slots := q.accounts[accountID]
	if slots == nil {
		return
	}
	if len(slots.waiters) > 0 {
		// Hand the slot to the oldest waiter; active count is unchanged.
		next := slots.waiters[0]
		slots.waiters = slots.waiters[1:]
		next <- struct{}{}
		return
	}
	slots.active--
	if slots.active <= 0 && len(slots.waiters) == 0 {
		delete(q.accounts, accountID)
	}
}

// abandonWait removes a cancelled waiter. If the slot was already handed
// over in the meantime, it is passed on instead of leaking.
func (q *AccountQueue) abandonWait(accountID string, ready chan struct{}) {
	q.mu.Lock()
	slots := q.accounts[accountID]
	if slots != nil {
		for i, w := range slots.waiters {
			if w == ready {
				slots.waiters = append(slots.waiters[:i], slots.waiters[i+1:]...)
				q.mu.Unlock()
				return
			}
		}
	}
	q.mu.Unlock()

	// Not in the waiter list: release already signaled us. Give the slot
	// back as if we had held it.
	select {
	case <-ready:
		q.release(accountID)
	default:
	}
}

// Pending reports active calls and queued waiters for an account. Tests and
// the metrics snapshot use it.
func (q *AccountQueue) Pending(accountID string) (active, waiting int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slots := q.accounts[accountID]
	if slots == nil {
		return 0, 0
	}
	return slots.active, len(slots.waiters)
}

// Tracked reports how many accounts currently hold bookkeeping.
func (q *AccountQueue) Tracked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.accounts)
}
