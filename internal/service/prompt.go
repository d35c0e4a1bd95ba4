package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	dbtypes "github.com/sxaes/gopass-secret-service/internal/dbus"
	"github.com/sxaes/gopass-secret-service/internal/key"
	"github.com/sxaes/gopass-secret-service/internal/prompt"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// Prompt is the org.freedesktop.Secret.Prompt object returned by
// Service.Lock/Unlock. It also answers on the same path for
// org.gnome.keyring.internal.Prompter.Callback, mirroring the upstream
// daemon's approach of serving both interfaces off one object: the
// external system prompter calls PromptReady/PromptDone back on exactly
// the path it was handed by BeginPrompting.
type Prompt struct {
	path dbus.ObjectPath
	id   string
	svc  *Service

	mu             sync.Mutex
	record         *prompt.Record
	machine        prompt.Machine
	daemonExchange string
}

// PromptManager manages active prompts.
type PromptManager struct {
	prompts map[string]*Prompt
	mu      sync.RWMutex
	conn    *dbus.Conn
}

// NewPromptManager creates a new prompt manager.
func NewPromptManager(conn *dbus.Conn) *PromptManager {
	return &PromptManager{
		prompts: make(map[string]*Prompt),
		conn:    conn,
	}
}

const promptIntrospectionXML = `<node>
  <interface name="org.freedesktop.Secret.Prompt">
    <method name="Prompt">
      <arg name="window-id" type="s" direction="in"/>
    </method>
    <method name="Dismiss"/>
    <signal name="Completed">
      <arg name="dismissed" type="b"/>
      <arg name="result" type="v"/>
    </signal>
  </interface>
  <interface name="org.gnome.keyring.internal.Prompter.Callback">
    <method name="PromptReady">
      <arg name="reply" type="s" direction="in"/>
      <arg name="properties" type="a{sv}" direction="in"/>
      <arg name="exchange" type="s" direction="in"/>
    </method>
    <method name="PromptDone"/>
  </interface>
</node>`

// CreateRecordPrompt creates and exports a Prompt bound to rec.
func (m *PromptManager) CreateRecordPrompt(svc *Service, rec *prompt.Record) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rawID := uuid.New()
	id := fmt.Sprintf("p%x", rawID[:])
	p := &Prompt{
		path:   dbtypes.PromptPath(id),
		id:     id,
		svc:    svc,
		record: rec,
	}

	if err := m.conn.Export(p, p.path, dbtypes.PromptInterface); err != nil {
		return nil, err
	}
	if err := m.conn.Export(p, p.path, dbtypes.PrompterCallbackInterface); err != nil {
		m.conn.Export(nil, p.path, dbtypes.PromptInterface)
		return nil, err
	}
	if err := m.conn.Export(introspect(promptIntrospectionXML), p.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		p.unexport()
		return nil, err
	}

	m.prompts[id] = p
	return p, nil
}

// GetPrompt returns a prompt by path.
func (m *PromptManager) GetPrompt(path dbus.ObjectPath) (*Prompt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, err := dbtypes.ParsePromptPath(path)
	if err != nil {
		return nil, false
	}

	p, ok := m.prompts[id]
	return p, ok
}

// ParsePromptPath extracts the prompt ID from a D-Bus path.
func ParsePromptPath(path dbus.ObjectPath) (string, error) {
	return dbtypes.ParsePromptPath(path)
}

func (m *PromptManager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prompts, id)
}

// CloseAll unexports every active prompt.
func (m *PromptManager) CloseAll() {
	m.mu.Lock()
	prompts := make([]*Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		prompts = append(prompts, p)
	}
	m.prompts = make(map[string]*Prompt)
	m.mu.Unlock()

	for _, p := range prompts {
		p.unexport()
	}
}

// Path returns the prompt's D-Bus path.
func (p *Prompt) Path() dbus.ObjectPath {
	return p.path
}

func (p *Prompt) unexport() {
	p.svc.conn.Export(nil, p.path, dbtypes.PromptInterface)
	p.svc.conn.Export(nil, p.path, dbtypes.PrompterCallbackInterface)
	p.svc.conn.Export(nil, p.path, "org.freedesktop.DBus.Introspectable")
}

// Prompt implements org.freedesktop.Secret.Prompt.Prompt. It only kicks off
// the BeginPrompting round trip with the external system prompter; every
// state transition happens later, driven by PromptReady callbacks.
func (p *Prompt) Prompt(windowID string) *dbus.Error {
	go p.svc.prompter.beginPrompting(p)
	return nil
}

// Dismiss implements org.freedesktop.Secret.Prompt.Dismiss.
func (p *Prompt) Dismiss() *dbus.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.record.State() == prompt.StateCompleted || p.record.State() == prompt.StateFailed {
		return nil
	}

	go p.svc.prompter.stopPrompting(p)
	p.finishLocked(true, nil)
	return nil
}

// PromptReady implements org.gnome.keyring.internal.Prompter.Callback.PromptReady.
func (p *Prompt) PromptReady(reply string, properties map[string]dbus.Variant, exchange string) *dbus.Error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := prompt.ParseReply(reply)
	if err != nil {
		log.Printf("prompt %s: %v", p.id, err)
		p.finishLocked(true, nil)
		return nil
	}

	action, err := p.machine.PromptReady(p.record, r, exchange)
	if err != nil {
		log.Printf("prompt %s: %v", p.id, err)
		p.finishLocked(true, nil)
		return nil
	}

	p.dispatchLocked(action)
	return nil
}

// PromptDone implements org.gnome.keyring.internal.Prompter.Callback.PromptDone.
func (p *Prompt) PromptDone() *dbus.Error {
	p.unexport()
	p.svc.prompts.remove(p.id)
	return nil
}

// dispatchLocked performs the side effect action calls for, holding p.mu.
// D-Bus round trips with the external prompter and keyring I/O happen on a
// goroutine, matching the teacher's fire-and-forget dispatch pattern for
// work that must not block the caller's PromptReady return.
func (p *Prompt) dispatchLocked(action prompt.Action) {
	switch action.Kind {
	case prompt.ActionPerformPrompt:
		p.daemonExchange = action.ExchangeBegin
		properties := propertiesFor(p.record.Role)
		go p.svc.prompter.performPrompt(p, properties, action.ExchangeBegin)

	case prompt.ActionStopPromptingAndComplete:
		go p.svc.prompter.stopPrompting(p)
		p.finishLocked(action.Dismissed, action.Result)

	case prompt.ActionApplyLockedAndComplete:
		go p.applyLocked(action.Result, action.Locked)
		go p.svc.prompter.stopPrompting(p)
		p.finishLocked(action.Dismissed, action.Result)

	case prompt.ActionVerifyUnlockAndComplete:
		go p.verifyUnlock(action.Secret)
	}
}

// applyLocked sets every target collection's lock state via the keyring and
// refreshes its exported Locked property and emits CollectionChanged for it.
func (p *Prompt) applyLocked(targets []dbus.ObjectPath, locked bool) {
	ctx := context.Background()
	names := collectionNames(targets)

	var err error
	if locked {
		err = p.svc.keyring.Lock(ctx, names)
	} else {
		err = p.svc.keyring.Unlock(ctx, names)
	}
	if err != nil {
		log.Printf("prompt %s: failed to apply locked=%v to %v: %v", p.id, locked, names, err)
	}

	for _, target := range targets {
		name, parseErr := dbtypes.ParseCollectionPath(target)
		if parseErr != nil {
			continue
		}
		if coll, ok := p.svc.collections.Get(name); ok {
			coll.refreshLocked(locked)
		}
		p.svc.emitCollectionChanged(target)
	}
}

// verifyUnlock checks secret against the login keyring. On success it
// unlocks the record's targets and completes the prompt; on
// ErrIncorrectSecret it re-prompts up to the bounded retry limit; any
// other failure fails the record outright.
func (p *Prompt) verifyUnlock(secret *key.Secret) {
	defer secret.Close()

	ctx := context.Background()
	err := p.svc.keyring.Open(ctx, loginCollectionName, secret)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case err == nil:
		p.applyLockedLocked(p.record.Targets, false)
		action := p.record.CompleteUnlockSuccess()
		go p.svc.prompter.stopPrompting(p)
		p.finishLocked(action.Dismissed, action.Result)

	case errors.Is(err, xerrors.ErrIncorrectSecret):
		if p.record.RetryUnlock() {
			properties := propertiesFor(prompt.RoleUnlock)
			go p.svc.prompter.performPrompt(p, properties, p.daemonExchange)
			return
		}
		go p.svc.prompter.stopPrompting(p)
		p.finishLocked(true, nil)

	default:
		log.Printf("prompt %s: unlock verification failed: %v", p.id, err)
		go p.svc.prompter.stopPrompting(p)
		p.finishLocked(true, nil)
	}
}

// applyLockedLocked is applyLocked's synchronous counterpart, used when
// the caller (verifyUnlock) already holds p.mu and must complete before
// emitting the prompt's own Completed signal.
func (p *Prompt) applyLockedLocked(targets []dbus.ObjectPath, locked bool) {
	ctx := context.Background()
	names := collectionNames(targets)

	var err error
	if locked {
		err = p.svc.keyring.Lock(ctx, names)
	} else {
		err = p.svc.keyring.Unlock(ctx, names)
	}
	if err != nil {
		log.Printf("prompt %s: failed to apply locked=%v to %v: %v", p.id, locked, names, err)
	}

	for _, target := range targets {
		name, err := dbtypes.ParseCollectionPath(target)
		if err != nil {
			continue
		}
		if coll, ok := p.svc.collections.Get(name); ok {
			coll.refreshLocked(locked)
		}
		p.svc.emitCollectionChanged(target)
	}
}

func collectionNames(targets []dbus.ObjectPath) []string {
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		if name, err := dbtypes.ParseCollectionPath(target); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// finishLocked emits Completed and unexports the prompt. Holds p.mu.
func (p *Prompt) finishLocked(dismissed bool, result []dbus.ObjectPath) {
	if result == nil {
		result = []dbus.ObjectPath{}
	}
	p.svc.conn.Emit(p.path, dbtypes.PromptInterface+".Completed", dismissed, dbus.MakeVariant(result))
	p.unexport()
	p.svc.prompts.remove(p.id)
}
