// Package prompt implements the Lock/Unlock/CreateCollection prompt
// state machine driven by the GNOME Prompter's two-step Ready/{Empty}
// then Ready/{Yes,No} callback sequence. The machine is pure and
// synchronous: it never performs a D-Bus call or touches the keyring
// itself, only tells its caller what to do next via Action.
package prompt

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/sxaes/gopass-secret-service/internal/exchange"
	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// Role identifies what kind of operation a Record drives to completion.
type Role int

const (
	RoleLock Role = iota
	RoleUnlock
	RoleCreateCollection
)

func (r Role) String() string {
	switch r {
	case RoleLock:
		return "Lock"
	case RoleUnlock:
		return "Unlock"
	case RoleCreateCollection:
		return "CreateCollection"
	default:
		return "unknown role"
	}
}

// Reply is the prompter's PromptReady reply value: one of the empty
// string, "yes", or "no". Any other value is a protocol violation.
type Reply int

const (
	ReplyEmpty Reply = iota
	ReplyYes
	ReplyNo
)

// ParseReply validates and converts the raw PromptReady reply string.
func ParseReply(s string) (Reply, error) {
	switch s {
	case "":
		return ReplyEmpty, nil
	case "yes":
		return ReplyYes, nil
	case "no":
		return ReplyNo, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized prompt reply %q", xerrors.ErrProtocolViolation, s)
	}
}

// State is a Record's position in the Lock/Unlock/CreateCollection
// prompt state machine.
type State int

const (
	StateNew State = iota
	StateAwaitingFirstReady
	StateAwaitingSecondReady
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateAwaitingFirstReady:
		return "AwaitingFirstReady"
	case StateAwaitingSecondReady:
		return "AwaitingSecondReady"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "unknown state"
	}
}

// maxUnlockAttempts bounds the number of secret attempts an Unlock Record
// accepts (the first prompt plus maxUnlockAttempts-1 re-prompts after
// IncorrectSecret responses) before giving up. The
// upstream protocol leaves this unbounded; an unbounded retry loop is
// not an acceptable default for a daemon.
const maxUnlockAttempts = 3

// Record tracks one org.freedesktop.Secret.Prompt object through its
// Lock/Unlock/CreateCollection life cycle.
type Record struct {
	Role    Role
	Targets []dbus.ObjectPath

	state     State
	dismissed bool
	result    []dbus.ObjectPath
	failure   error

	exchange      *exchange.SecretExchange
	aesKeyPayload string
	attempts      int
}

// NewRecord creates a fresh Record for role, bound to targets.
func NewRecord(role Role, targets []dbus.ObjectPath) *Record {
	return &Record{Role: role, Targets: targets, state: StateNew}
}

// State returns the Record's current state.
func (r *Record) State() State { return r.state }

// Dismissed reports whether the Record completed via dismissal.
func (r *Record) Dismissed() bool { return r.dismissed }

// Result returns the Record's completion result (the unlocked/locked
// object paths), valid once State is StateCompleted.
func (r *Record) Result() []dbus.ObjectPath { return r.result }

// Failure returns the error that drove the Record to StateFailed, if any.
func (r *Record) Failure() error { return r.failure }

// ActionKind selects which step an Action describes, and so which of the
// Action's fields are meaningful.
type ActionKind int

const (
	ActionPerformPrompt ActionKind = iota
	ActionStopPromptingAndComplete
	ActionApplyLockedAndComplete
	ActionVerifyUnlockAndComplete
)

// Action describes the single next step the bus-facing caller (not the
// Machine) must perform, since only the caller may suspend on D-Bus
// calls or keyring I/O.
type Action struct {
	Kind ActionKind

	// ActionPerformPrompt
	ExchangeBegin string

	// ActionStopPromptingAndComplete, ActionApplyLockedAndComplete
	Dismissed bool
	Result    []dbus.ObjectPath

	// ActionApplyLockedAndComplete
	Locked bool

	// ActionVerifyUnlockAndComplete
	Secret *key.Secret
}

// Machine drives a single Record's PromptReady transitions. It holds no
// state of its own beyond the Record it is given.
type Machine struct{}

// fail transitions rec to StateFailed with err and returns err.
func (rec *Record) fail(err error) (Action, error) {
	rec.state = StateFailed
	rec.failure = err
	return Action{}, err
}

// PromptReady advances rec's state machine on one PromptReady(reply,
// exchangePayload) callback and reports what the caller must do next.
func (m Machine) PromptReady(rec *Record, reply Reply, exchangePayload string) (Action, error) {
	switch rec.state {
	case StateNew:
		if reply != ReplyEmpty {
			return rec.fail(fmt.Errorf("%w: expected empty first reply in state %s, got reply %d", xerrors.ErrProtocolViolation, rec.state, reply))
		}
		return m.firstReady(rec, exchangePayload)

	case StateAwaitingFirstReady:
		// A prompter that calls PromptReady twice before the caller has
		// transitioned past StateNew is itself a protocol violation;
		// StateNew handles the legitimate first call.
		return rec.fail(fmt.Errorf("%w: unexpected reply in state %s", xerrors.ErrProtocolViolation, rec.state))

	case StateAwaitingSecondReady:
		return m.secondReady(rec, reply, exchangePayload)

	default:
		return rec.fail(fmt.Errorf("%w: prompt already %s", xerrors.ErrProtocolViolation, rec.state))
	}
}

// firstReady handles the Empty reply that starts every role's exchange.
// For Unlock, exchangePayload already carries the prompter's own DH
// public value, so the shared AES key is derived here rather than
// waiting for the second reply.
func (m Machine) firstReady(rec *Record, exchangePayload string) (Action, error) {
	if rec.Role == RoleCreateCollection {
		rec.state = StateCompleted
		rec.dismissed = false
		rec.result = nil
		return Action{Kind: ActionStopPromptingAndComplete, Dismissed: false, Result: nil}, nil
	}

	se, err := exchange.New()
	if err != nil {
		return rec.fail(fmt.Errorf("%w: %v", xerrors.ErrCrypto, err))
	}
	rec.exchange = se

	if rec.Role == RoleUnlock {
		aesKeyPayload, err := se.CreateSharedSecret(exchangePayload)
		if err != nil {
			return rec.fail(fmt.Errorf("%w: %v", xerrors.ErrBadExchange, err))
		}
		rec.aesKeyPayload = aesKeyPayload
	}

	rec.state = StateAwaitingSecondReady
	return Action{Kind: ActionPerformPrompt, ExchangeBegin: se.Begin()}, nil
}

// secondReady handles the Yes/No reply that concludes Lock/Unlock.
func (m Machine) secondReady(rec *Record, reply Reply, exchangePayload string) (Action, error) {
	if reply == ReplyEmpty {
		return rec.fail(fmt.Errorf("%w: empty reply in state %s", xerrors.ErrProtocolViolation, rec.state))
	}

	if reply == ReplyNo {
		rec.state = StateCompleted
		rec.dismissed = true
		rec.result = nil
		rec.releaseExchange()
		return Action{Kind: ActionStopPromptingAndComplete, Dismissed: true, Result: nil}, nil
	}

	switch rec.Role {
	case RoleLock:
		rec.state = StateCompleted
		rec.dismissed = false
		rec.result = rec.Targets
		rec.releaseExchange()
		return Action{Kind: ActionApplyLockedAndComplete, Locked: true, Dismissed: false, Result: rec.Targets}, nil

	case RoleUnlock:
		secret, err := rec.exchange.RetrieveSecret(exchangePayload, rec.aesKeyPayload)
		if err != nil {
			return rec.fail(fmt.Errorf("%w: %v", xerrors.ErrCrypto, err))
		}
		if secret == nil {
			return rec.fail(fmt.Errorf("%w: final exchange payload missing secret or iv", xerrors.ErrBadExchange))
		}
		return Action{Kind: ActionVerifyUnlockAndComplete, Secret: secret}, nil

	default:
		return rec.fail(fmt.Errorf("%w: unexpected role %s in second-ready state", xerrors.ErrProtocolViolation, rec.Role))
	}
}

// CompleteUnlockSuccess finalizes an Unlock Record after the caller has
// verified the retrieved secret against the keyring and unlocked
// rec.Targets.
func (rec *Record) CompleteUnlockSuccess() Action {
	rec.state = StateCompleted
	rec.dismissed = false
	rec.result = rec.Targets
	rec.releaseExchange()
	return Action{Kind: ActionStopPromptingAndComplete, Dismissed: false, Result: rec.Targets}
}

// RetryUnlock records a failed (IncorrectSecret) verification attempt.
// It reports whether the caller should re-prompt (ok) or whether
// maxUnlockAttempts has been exhausted, in which case rec transitions
// to StateFailed(ErrIncorrectSecret) and ok is false.
func (rec *Record) RetryUnlock() (ok bool) {
	rec.attempts++
	if rec.attempts >= maxUnlockAttempts {
		rec.state = StateFailed
		rec.failure = xerrors.ErrIncorrectSecret
		rec.releaseExchange()
		return false
	}
	rec.state = StateAwaitingSecondReady
	return true
}

func (rec *Record) releaseExchange() {
	if rec.exchange != nil {
		rec.exchange.Close()
		rec.exchange = nil
	}
}
