// Package quickfix holds the canned per-platform fix catalog.
//
// Quick fixes are pre-authored remediation plans the user can trigger
// without a diagnosis. Commands are opaque descriptors handed to the
// sidecar; WAIT:n pseudo-commands and {ssid} placeholders are resolved
// there, never here.
package quickfix

import (
	"fmt"
	"runtime"

	"github.com/fixmate-app/fixmate/internal/domain"
)

// Fix is one canned remediation plan.
type Fix struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Commands   []string `json:"commands"`
	NeedsAdmin bool     `json:"needs_admin"`
}

// Steps expands the fix into remediation steps for the orchestrator.
func (f Fix) Steps() []domain.RemediationStep {
	steps := make([]domain.RemediationStep, 0, len(f.Commands))
	for _, cmd := range f.Commands {
		steps = append(steps, domain.RemediationStep{
			Description:    fmt.Sprintf("%s - %s", f.Label, cmd),
			Command:        cmd,
			NeedsPrivilege: f.NeedsAdmin,
		})
	}
	return steps
}

var darwinFixes = []Fix{
	{
		ID:    "toggle_wifi",
		Label: "Toggle Wi-Fi Off/On",
		Commands: []string{
			"networksetup -setairportpower en0 off",
			"WAIT:3",
			"networksetup -setairportpower en0 on",
		},
	},
	{
		ID:    "flush_dns",
		Label: "Flush DNS Cache",
		Commands: []string{
			"sudo dscacheutil -flushcache",
			"sudo killall -HUP mDNSResponder",
		},
		NeedsAdmin: true,
	},
	{
		ID:    "restart_network",
		Label: "Full Network Reset",
		Commands: []string{
			"networksetup -setairportpower en0 off",
			"sudo dscacheutil -flushcache",
			"sudo killall -HUP mDNSResponder",
			"WAIT:3",
			"networksetup -setairportpower en0 on",
		},
		NeedsAdmin: true,
	},
	{
		ID:       "open_credential_manager",
		Label:    "Open Keychain Access",
		Commands: []string{"open -a 'Keychain Access'"},
	},
}

var windowsFixes = []Fix{
	{
		ID:    "toggle_wifi",
		Label: "Toggle Wi-Fi Off/On",
		Commands: []string{
			"netsh wlan disconnect",
			"WAIT:3",
			"netsh wlan connect name={ssid}",
		},
	},
	{
		ID:         "flush_dns",
		Label:      "Flush DNS Cache",
		Commands:   []string{"ipconfig /flushdns"},
		NeedsAdmin: true,
	},
	{
		ID:    "restart_network",
		Label: "Full Network Reset",
		Commands: []string{
			"netsh wlan disconnect",
			"ipconfig /flushdns",
			"ipconfig /release",
			"ipconfig /renew",
			"WAIT:3",
			"netsh wlan connect name={ssid}",
		},
		NeedsAdmin: true,
	},
	{
		ID:       "open_credential_manager",
		Label:    "Open Credential Manager",
		Commands: []string{"rundll32.exe keymgr.dll,KRShowKeyMgr"},
	},
}

var linuxFixes = []Fix{
	{
		ID:    "toggle_wifi",
		Label: "Toggle Wi-Fi Off/On",
		Commands: []string{
			"nmcli radio wifi off",
			"WAIT:3",
			"nmcli radio wifi on",
		},
	},
	{
		ID:         "flush_dns",
		Label:      "Flush DNS Cache",
		Commands:   []string{"resolvectl flush-caches"},
		NeedsAdmin: true,
	},
	{
		ID:    "restart_network",
		Label: "Full Network Reset",
		Commands: []string{
			"nmcli networking off",
			"resolvectl flush-caches",
			"WAIT:3",
			"nmcli networking on",
		},
		NeedsAdmin: true,
	},
}

func catalogFor(goos string) []Fix {
	switch goos {
	case "darwin":
		return darwinFixes
	case "windows":
		return windowsFixes
	default:
		return linuxFixes
	}
}

// Available returns the fix catalog for the current platform.
func Available() []Fix {
	return catalogFor(runtime.GOOS)
}

// Lookup finds a fix by ID in the current platform's catalog.
func Lookup(id string) (Fix, bool) {
	for _, f := range Available() {
		if f.ID == id {
			return f, true
		}
	}
	return Fix{}, false
}
