package service

import (
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"

	dbtypes "github.com/sxaes/gopass-secret-service/internal/dbus"
	"github.com/sxaes/gopass-secret-service/internal/prompt"
	"github.com/sxaes/gopass-secret-service/internal/xerrors"
)

// Prompter drives the org.gnome.keyring.internal.Prompter round trip with
// the external system prompter on behalf of Service.Lock/Unlock, grounded
// on gnome/prompter.rs's PrompterCallback/Prompter proxy pair. Every
// exported call here is fire-and-forget: the D-Bus method that triggered
// it (Prompt.Prompt, or a PromptReady callback) must return immediately,
// and the real state transition happens on the next PromptReady call.
type Prompter struct {
	svc *Service
}

// NewPrompter returns a Prompter bound to svc.
func NewPrompter(svc *Service) *Prompter {
	return &Prompter{svc: svc}
}

// Export is a no-op: Prompter has no fixed D-Bus object of its own, only
// the per-Record Prompt objects created by Begin.
func (pr *Prompter) Export() error {
	return nil
}

// Begin creates a new prompt.Record for role bound to targets, exports its
// Prompt object, and returns its D-Bus path. The round trip with the
// system prompter only starts once the client calls Prompt() on it.
func (pr *Prompter) Begin(role prompt.Role, targets []dbus.ObjectPath) (dbus.ObjectPath, error) {
	rec := prompt.NewRecord(role, targets)
	p, err := pr.svc.prompts.CreateRecordPrompt(pr.svc, rec)
	if err != nil {
		return "/", fmt.Errorf("%w: %v", xerrors.ErrBus, err)
	}
	return p.Path(), nil
}

func (pr *Prompter) systemPrompter() dbus.BusObject {
	return pr.svc.conn.Object(dbtypes.SystemPrompterService, dbtypes.SystemPrompterPath)
}

// beginPrompting calls BeginPrompting(callback), triggering the system
// prompter's first PromptReady(Empty) callback on p.
func (pr *Prompter) beginPrompting(p *Prompt) {
	call := pr.systemPrompter().Call(dbtypes.SystemPrompterInterface+".BeginPrompting", 0, p.Path())
	if call.Err != nil {
		log.Printf("prompter: BeginPrompting failed for %s: %v", p.Path(), call.Err)
	}
}

// performPrompt calls PerformPrompt(callback, "confirm", properties,
// exchange), asking the system prompter to actually show the prompt.
func (pr *Prompter) performPrompt(p *Prompt, properties map[string]dbus.Variant, exchange string) {
	call := pr.systemPrompter().Call(dbtypes.SystemPrompterInterface+".PerformPrompt", 0, p.Path(), "confirm", properties, exchange)
	if call.Err != nil {
		log.Printf("prompter: PerformPrompt failed for %s: %v", p.Path(), call.Err)
	}
}

// stopPrompting calls StopPrompting(callback) once a Record has reached a
// terminal Action, telling the system prompter to tear down its UI.
func (pr *Prompter) stopPrompting(p *Prompt) {
	call := pr.systemPrompter().Call(dbtypes.SystemPrompterInterface+".StopPrompting", 0, p.Path())
	if call.Err != nil {
		log.Printf("prompter: StopPrompting failed for %s: %v", p.Path(), call.Err)
	}
}

// propertiesFor builds the system prompt Properties dict for role,
// matching gnome/prompter.rs's Properties::for_lock/for_unlock field
// names and copy exactly (kebab-case keys per the GNOME Prompter D-Bus
// interface).
func propertiesFor(role prompt.Role) map[string]dbus.Variant {
	switch role {
	case prompt.RoleLock:
		return map[string]dbus.Variant{
			"title":             dbus.MakeVariant("Lock Keyring"),
			"description":       dbus.MakeVariant("Confirm locking 'login' Keyring"),
			"message":           dbus.MakeVariant("Lock Keyring"),
			"password-new":      dbus.MakeVariant(false),
			"password-strength": dbus.MakeVariant(uint32(0)),
			"choice-chosen":     dbus.MakeVariant(false),
			"continue-label":    dbus.MakeVariant("Lock"),
			"cancel-label":      dbus.MakeVariant("Cancel"),
		}
	case prompt.RoleUnlock:
		return map[string]dbus.Variant{
			"title":             dbus.MakeVariant("Unlock Keyring"),
			"description":       dbus.MakeVariant("An application wants access to the keyring 'login', but it is locked"),
			"message":           dbus.MakeVariant("Authentication required"),
			"password-new":      dbus.MakeVariant(false),
			"password-strength": dbus.MakeVariant(uint32(0)),
			"choice-chosen":     dbus.MakeVariant(false),
			"continue-label":    dbus.MakeVariant("Unlock"),
			"cancel-label":      dbus.MakeVariant("Cancel"),
		}
	default:
		return map[string]dbus.Variant{}
	}
}
