package usecase

import (
	"context"

	"characterchat/domain"
)

// ReplyStream exposes an in-flight reply as a sequence of growing
// conversation snapshots. The snapshot channel has capacity one with
// last-wins semantics: a slow consumer observes only the newest snapshot,
// never a stale one. The channel closes once the reply is finalized or
// failed; Wait reports the terminal outcome.
type ReplyStream struct {
	snapshots chan domain.Snapshot
	done      chan struct{}
	cancel    context.CancelFunc

	// set before done closes, read only after
	err   error
	reply domain.Message
	ok    bool
}

func newReplyStream(cancel context.CancelFunc) *ReplyStream {
	return &ReplyStream{
		snapshots: make(chan domain.Snapshot, 1),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// Snapshots returns the snapshot channel. Each received snapshot supersedes
// the previous one; the one flagged Final reflects the persisted state.
func (r *ReplyStream) Snapshots() <-chan domain.Snapshot {
	return r.snapshots
}

// Cancel aborts the in-flight generation. A canceled reply is never
// persisted; the partially accumulated text is discarded.
func (r *ReplyStream) Cancel() {
	r.cancel()
}

// Wait blocks until the reply is finalized or failed and returns the
// terminal error, if any.
func (r *ReplyStream) Wait() error {
	<-r.done
	return r.err
}

// Reply returns the final assistant message once the stream has finished
// successfully.
func (r *ReplyStream) Reply() (domain.Message, bool) {
	<-r.done
	return r.reply, r.ok
}

// publish replaces whatever snapshot is currently buffered. Only the
// producing goroutine calls publish, succeed and fail.
func (r *ReplyStream) publish(snap domain.Snapshot) {
	for {
		select {
		case r.snapshots <- snap:
			return
		default:
			// Displace the stale snapshot.
			select {
			case <-r.snapshots:
			default:
			}
		}
	}
}

func (r *ReplyStream) succeed(reply domain.Message) {
	r.reply = reply
	r.ok = true
	close(r.snapshots)
	close(r.done)
	r.cancel()
}

func (r *ReplyStream) fail(err error) {
	r.err = err
	close(r.snapshots)
	close(r.done)
	r.cancel()
}
