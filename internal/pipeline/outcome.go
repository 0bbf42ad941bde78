package pipeline

import (
	"github.com/rjoshi44/huntd/internal/model"
)

type outcomeKind int

const (
	outcomeAdvance outcomeKind = iota
	outcomeTerminal
	outcomeRetry
)

// Outcome is a stage handler's verdict. Handlers never write to the queue
// themselves; they describe the transition and the dispatcher commits it,
// which keeps the transition and any spawns in one transaction.
type Outcome struct {
	kind    outcomeKind
	next    model.Stage
	payload any
	status  model.Status
	message string
	reason  string
	cause   error
	spawns  []*model.QueueItem
}

// Advance moves the item to the next stage with the updated payload.
func Advance(next model.Stage, payload any) Outcome {
	return Outcome{kind: outcomeAdvance, next: next, payload: payload}
}

// Terminal finalizes the item with a terminal status and result message.
func Terminal(status model.Status, message string) Outcome {
	return Outcome{kind: outcomeTerminal, status: status, message: message}
}

// Retry reports a transient failure. cause, when set, lets the dispatcher
// honor server-provided backoff hints.
func Retry(reason string, cause error) Outcome {
	return Outcome{kind: outcomeRetry, reason: reason, cause: cause}
}

// WithSpawns attaches items to enqueue atomically with this transition.
func (o Outcome) WithSpawns(spawns ...*model.QueueItem) Outcome {
	o.spawns = append(o.spawns, spawns...)
	return o
}

// WithPayload attaches an updated payload to a terminal outcome, so summary
// fields written by the final stage survive on the item.
func (o Outcome) WithPayload(payload any) Outcome {
	o.payload = payload
	return o
}

// failure maps an error onto the retry taxonomy: transient errors become a
// retry, everything else fails the item permanently.
func failure(what string, err error) Outcome {
	if model.IsTransient(err) {
		return Retry(what+": "+err.Error(), err)
	}
	return Terminal(model.StatusFailed, what+": "+err.Error())
}
